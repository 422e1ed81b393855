package handlers

import (
	"fmt"

	"docflow/internal/dto"
	"docflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BatchHandler struct {
	batches       *service.BatchService
	consolidation *service.ConsolidationService
	audit         *service.AuditService
	logger        *zap.Logger
}

func NewBatchHandler(
	batches *service.BatchService,
	consolidation *service.ConsolidationService,
	audit *service.AuditService,
	logger *zap.Logger,
) *BatchHandler {
	return &BatchHandler{
		batches:       batches,
		consolidation: consolidation,
		audit:         audit,
		logger:        logger,
	}
}

// Create godoc
// @Summary Create a batch
// @Description Groups extracted, unbatched documents into a batch
// @Tags batches
// @Accept json
// @Produce json
// @Param request body dto.CreateBatchRequest true "Document ids"
// @Security Bearer
// @Success 201 {object} dto.BatchResponse
// @Failure 409 {object} map[string]string
// @Router /api/batches [post]
func (h *BatchHandler) Create(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req dto.CreateBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	ids, err := parseUUIDs(req.DocumentIDs)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid document id in list"})
	}

	batch, err := h.batches.Create(c.Context(), ids, userID)
	if err != nil {
		return errorResponse(c, err)
	}

	h.audit.Record(c.Context(), userID, getUserEmail(c), "batches.create",
		fmt.Sprintf("%s with %d documents", batch.ID, len(batch.DocumentIDs)))
	return c.Status(fiber.StatusCreated).JSON(dto.ToBatchResponse(batch))
}

// List godoc
// @Summary List batches
// @Tags batches
// @Produce json
// @Security Bearer
// @Success 200 {array} dto.BatchResponse
// @Router /api/batches [get]
func (h *BatchHandler) List(c *fiber.Ctx) error {
	batches, err := h.batches.List(c.Context())
	if err != nil {
		h.logger.Error("failed to list batches", zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(dto.ToBatchResponses(batches))
}

// Get godoc
// @Summary Get one batch
// @Tags batches
// @Produce json
// @Param id path string true "Batch ID"
// @Security Bearer
// @Success 200 {object} dto.BatchResponse
// @Failure 404 {object} map[string]string
// @Router /api/batches/{id} [get]
func (h *BatchHandler) Get(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid batch id"})
	}

	batch, err := h.batches.Get(c.Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(dto.ToBatchResponse(batch))
}

// AddMember godoc
// @Summary Add a document to a batch
// @Tags batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param request body dto.BatchMemberRequest true "Document id"
// @Security Bearer
// @Success 200 {object} dto.BatchResponse
// @Failure 409 {object} map[string]string
// @Router /api/batches/{id}/members [post]
func (h *BatchHandler) AddMember(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	batchID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid batch id"})
	}

	var req dto.BatchMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	documentID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid document id"})
	}

	batch, err := h.batches.AddMember(c.Context(), batchID, documentID)
	if err != nil {
		return errorResponse(c, err)
	}

	h.audit.Record(c.Context(), userID, getUserEmail(c), "batches.add_member",
		fmt.Sprintf("%s += %s", batchID, documentID))
	return c.JSON(dto.ToBatchResponse(batch))
}

// RemoveMember godoc
// @Summary Remove a document from a batch
// @Tags batches
// @Produce json
// @Param id path string true "Batch ID"
// @Param documentId path string true "Document ID"
// @Security Bearer
// @Success 200 {object} dto.BatchResponse
// @Failure 409 {object} map[string]string
// @Router /api/batches/{id}/members/{documentId} [delete]
func (h *BatchHandler) RemoveMember(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	batchID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid batch id"})
	}
	documentID, err := parseIDParam(c, "documentId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid document id"})
	}

	batch, err := h.batches.RemoveMember(c.Context(), batchID, documentID)
	if err != nil {
		return errorResponse(c, err)
	}

	h.audit.Record(c.Context(), userID, getUserEmail(c), "batches.remove_member",
		fmt.Sprintf("%s -= %s", batchID, documentID))
	return c.JSON(dto.ToBatchResponse(batch))
}

// GeneratePDF godoc
// @Summary Consolidate a batch into one PDF
// @Tags batches
// @Produce json
// @Param id path string true "Batch ID"
// @Security Bearer
// @Success 201 {object} dto.ArtifactResponse
// @Failure 409 {object} map[string]string
// @Router /api/batches/{id}/generate-pdf [post]
func (h *BatchHandler) GeneratePDF(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	batchID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid batch id"})
	}

	artifact, err := h.consolidation.Generate(c.Context(), batchID, userID)
	if err != nil {
		h.logger.Error("consolidation failed",
			zap.String("batch_id", batchID.String()),
			zap.Error(err),
		)
		return errorResponse(c, err)
	}

	h.audit.Record(c.Context(), userID, getUserEmail(c), "batches.generate_pdf",
		fmt.Sprintf("%s -> %s", batchID, artifact.Filename))
	return c.Status(fiber.StatusCreated).JSON(dto.ToArtifactResponse(artifact))
}

// RegeneratePDF godoc
// @Summary Rebuild a batch's consolidated PDF
// @Tags batches
// @Produce json
// @Param id path string true "Batch ID"
// @Security Bearer
// @Success 201 {object} dto.ArtifactResponse
// @Failure 409 {object} map[string]string
// @Router /api/batches/{id}/regenerate-pdf [post]
func (h *BatchHandler) RegeneratePDF(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	batchID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid batch id"})
	}

	artifact, err := h.consolidation.Regenerate(c.Context(), batchID, userID)
	if err != nil {
		return errorResponse(c, err)
	}

	h.audit.Record(c.Context(), userID, getUserEmail(c), "batches.regenerate_pdf",
		fmt.Sprintf("%s -> %s", batchID, artifact.Filename))
	return c.Status(fiber.StatusCreated).JSON(dto.ToArtifactResponse(artifact))
}

// ListArtifacts godoc
// @Summary List consolidated PDFs
// @Tags batches
// @Produce json
// @Security Bearer
// @Success 200 {array} dto.ArtifactResponse
// @Router /api/pdfs [get]
func (h *BatchHandler) ListArtifacts(c *fiber.Ctx) error {
	artifacts, err := h.consolidation.ListArtifacts(c.Context())
	if err != nil {
		h.logger.Error("failed to list artifacts", zap.Error(err))
		return errorResponse(c, err)
	}

	out := make([]dto.ArtifactResponse, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, dto.ToArtifactResponse(a))
	}
	return c.JSON(out)
}

// DownloadArtifact godoc
// @Summary Download a consolidated PDF
// @Tags batches
// @Produce application/pdf
// @Param id path string true "Artifact ID"
// @Security Bearer
// @Success 200
// @Failure 404 {object} map[string]string
// @Router /api/pdfs/{id}/download [get]
func (h *BatchHandler) DownloadArtifact(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid artifact id"})
	}

	artifact, err := h.consolidation.GetArtifact(c.Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, artifact.Filename))
	return c.Send(artifact.Payload)
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
