package handlers

import (
	"fmt"
	"io"
	"mime/multipart"

	"docflow/internal/dto"
	"docflow/internal/models"
	"docflow/internal/repository"
	"docflow/internal/service"
	"docflow/pkg/config"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type DocumentHandler struct {
	lifecycle   *service.LifecycleService
	correlation *service.CorrelationService
	audit       *service.AuditService
	uploadCfg   config.UploadConfig
	logger      *zap.Logger
}

func NewDocumentHandler(
	lifecycle *service.LifecycleService,
	correlation *service.CorrelationService,
	audit *service.AuditService,
	uploadCfg config.UploadConfig,
	logger *zap.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		lifecycle:   lifecycle,
		correlation: correlation,
		audit:       audit,
		uploadCfg:   uploadCfg,
		logger:      logger,
	}
}

// Upload godoc
// @Summary Upload documents
// @Description Upload up to 20 PDF or image files. Per-file failures are reported individually.
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Document files"
// @Param type formData string false "Document type: comprobante_egreso, cuenta_por_pagar, factura, soporte_pago"
// @Security Bearer
// @Success 201 {object} dto.UploadResponse
// @Failure 400 {object} map[string]string
// @Router /api/documents/upload [post]
func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Multipart form is required",
		})
	}
	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one file is required",
		})
	}
	if len(files) > h.uploadCfg.MaxFiles {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Too many files, maximum is %d", h.uploadCfg.MaxFiles),
		})
	}

	var totalSize int64
	for _, file := range files {
		if file.Size > h.uploadCfg.MaxFileSize {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("File %q exceeds the %d byte limit", file.Filename, h.uploadCfg.MaxFileSize),
			})
		}
		totalSize += file.Size
	}
	if totalSize > h.uploadCfg.MaxTotalSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Upload exceeds the %d byte total limit", h.uploadCfg.MaxTotalSize),
		})
	}

	docType := c.FormValue("type")

	resp := dto.UploadResponse{}
	for _, file := range files {
		data, rerr := readUpload(file)
		if rerr != nil {
			resp.Errors = append(resp.Errors, dto.UploadError{Filename: file.Filename, Error: "Failed to read file"})
			continue
		}

		doc, uerr := h.lifecycle.Upload(c.Context(), file.Filename, file.Header.Get("Content-Type"), data, docType, userID)
		if uerr != nil {
			resp.Errors = append(resp.Errors, dto.UploadError{Filename: file.Filename, Error: uerr.Error()})
			continue
		}
		resp.Documents = append(resp.Documents, dto.ToDocumentResponse(doc))
	}

	if len(resp.Documents) > 0 {
		h.audit.Record(c.Context(), userID, getUserEmail(c), "documents.upload",
			fmt.Sprintf("%d files", len(resp.Documents)))
	}

	status := fiber.StatusCreated
	if len(resp.Documents) == 0 {
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(resp)
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

// List godoc
// @Summary List documents
// @Tags documents
// @Produce json
// @Param state query string false "Filter by state"
// @Param unbatched query bool false "Only documents outside any batch"
// @Security Bearer
// @Success 200 {array} dto.DocumentResponse
// @Router /api/documents [get]
func (h *DocumentHandler) List(c *fiber.Ctx) error {
	filters := repository.DocumentFilters{
		State:     models.DocumentState(c.Query("state")),
		Unbatched: c.QueryBool("unbatched"),
	}

	docs, err := h.lifecycle.List(c.Context(), filters)
	if err != nil {
		h.logger.Error("failed to list documents", zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(dto.ToDocumentResponses(docs))
}

// Get godoc
// @Summary Get one document
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Security Bearer
// @Success 200 {object} dto.DocumentResponse
// @Failure 404 {object} map[string]string
// @Router /api/documents/{id} [get]
func (h *DocumentHandler) Get(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid document id"})
	}

	doc, err := h.lifecycle.Get(c.Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(dto.ToDocumentResponse(doc))
}

// Download godoc
// @Summary Download the stored payload
// @Tags documents
// @Produce application/octet-stream
// @Param id path string true "Document ID"
// @Security Bearer
// @Success 200
// @Failure 404 {object} map[string]string
// @Router /api/documents/{id}/download [get]
func (h *DocumentHandler) Download(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid document id"})
	}

	doc, err := h.lifecycle.Get(c.Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, doc.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, doc.Filename))
	return c.Send(doc.RawBytes)
}

// Analyze godoc
// @Summary Analyze one document
// @Description Validates, splits multipage PDFs and extracts fields
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Security Bearer
// @Success 200 {object} dto.DocumentResponse
// @Failure 409 {object} map[string]string
// @Router /api/documents/{id}/analyze [post]
func (h *DocumentHandler) Analyze(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid document id"})
	}

	doc, err := h.lifecycle.Process(c.Context(), id)
	if err != nil {
		h.logger.Error("failed to analyze document",
			zap.String("document_id", id.String()),
			zap.Error(err),
		)
		return errorResponse(c, err)
	}

	h.audit.Record(c.Context(), userID, getUserEmail(c), "documents.analyze", id.String())
	return c.JSON(dto.ToDocumentResponse(doc))
}

// AnalyzeAll godoc
// @Summary Analyze pending documents
// @Description Processes a bounded batch of pending documents and reports the remainder
// @Tags documents
// @Produce json
// @Security Bearer
// @Success 200 {object} service.BulkSummary
// @Router /api/documents/analyze-all [post]
func (h *DocumentHandler) AnalyzeAll(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	summary, err := h.lifecycle.AnalyzeAll(c.Context())
	if err != nil {
		h.logger.Error("bulk analysis failed", zap.Error(err))
		return errorResponse(c, err)
	}

	h.audit.Record(c.Context(), userID, getUserEmail(c), "documents.analyze_all",
		fmt.Sprintf("%d processed, %d remaining", len(summary.Processed), summary.Remaining))
	return c.JSON(summary)
}

// Replace godoc
// @Summary Replace a document's file
// @Description Swaps the payload and resets the document to intake
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Document ID"
// @Param file formData file true "Replacement file"
// @Security Bearer
// @Success 200 {object} dto.DocumentResponse
// @Failure 409 {object} map[string]string
// @Router /api/documents/{id}/replace [put]
func (h *DocumentHandler) Replace(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid document id"})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File is required"})
	}
	if file.Size > h.uploadCfg.MaxFileSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File exceeds the %d byte limit", h.uploadCfg.MaxFileSize),
		})
	}
	data, err := readUpload(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to read file"})
	}

	doc, err := h.lifecycle.Replace(c.Context(), id, file.Filename, file.Header.Get("Content-Type"), data)
	if err != nil {
		return errorResponse(c, err)
	}

	h.audit.Record(c.Context(), userID, getUserEmail(c), "documents.replace", id.String())
	return c.JSON(dto.ToDocumentResponse(doc))
}

// Delete godoc
// @Summary Delete a document
// @Tags documents
// @Param id path string true "Document ID"
// @Security Bearer
// @Success 204
// @Failure 409 {object} map[string]string
// @Router /api/documents/{id} [delete]
func (h *DocumentHandler) Delete(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid document id"})
	}

	if err := h.lifecycle.Delete(c.Context(), id); err != nil {
		return errorResponse(c, err)
	}

	h.audit.Record(c.Context(), userID, getUserEmail(c), "documents.delete", id.String())
	return c.SendStatus(fiber.StatusNoContent)
}

// SuggestBatches godoc
// @Summary Suggest batch groupings
// @Description Proposes groupings over extracted, unbatched documents. Nothing is persisted.
// @Tags documents
// @Produce json
// @Security Bearer
// @Success 200 {array} dto.SuggestionResponse
// @Router /api/documents/suggest-batches [get]
func (h *DocumentHandler) SuggestBatches(c *fiber.Ctx) error {
	suggestions, err := h.correlation.SuggestBatches(c.Context())
	if err != nil {
		h.logger.Error("correlation failed", zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(dto.ToSuggestionResponses(suggestions))
}
