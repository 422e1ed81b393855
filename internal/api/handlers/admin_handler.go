package handlers

import (
	"fmt"
	"time"

	"docflow/internal/dto"
	"docflow/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AdminHandler struct {
	authService *service.AuthService
	audit       *service.AuditService
	stats       *service.StatsService
	logger      *zap.Logger
}

func NewAdminHandler(
	authService *service.AuthService,
	audit *service.AuditService,
	stats *service.StatsService,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		authService: authService,
		audit:       audit,
		stats:       stats,
		logger:      logger,
	}
}

// CreateUser godoc
// @Summary Create a user account
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.CreateUserRequest true "New user"
// @Security Bearer
// @Success 201 {object} dto.UserResponse
// @Failure 409 {object} map[string]string
// @Router /api/admin/users [post]
func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	user, err := h.authService.CreateUser(c.Context(), req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		if err == service.ErrEmailTaken {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Email already registered"})
		}
		return errorResponse(c, err)
	}

	h.audit.Record(c.Context(), actorID, getUserEmail(c), "admin.create_user", user.Email)
	return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
}

// ListUsers godoc
// @Summary List user accounts
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {array} dto.UserResponse
// @Router /api/admin/users [get]
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.authService.ListUsers(c.Context())
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		return errorResponse(c, err)
	}

	out := make([]dto.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return c.JSON(out)
}

// SetUserActive godoc
// @Summary Activate or deactivate an account
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body dto.SetActiveRequest true "Active flag"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/admin/users/{id}/active [put]
func (h *AdminHandler) SetUserActive(c *fiber.Ctx) error {
	actorID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	userID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	var req dto.SetActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.authService.SetActive(c.Context(), userID, req.IsActive); err != nil {
		return errorResponse(c, err)
	}

	h.audit.Record(c.Context(), actorID, getUserEmail(c), "admin.set_user_active",
		fmt.Sprintf("%s active=%t", userID, req.IsActive))
	return c.SendStatus(fiber.StatusNoContent)
}

// AuditLogs godoc
// @Summary Recent audit log entries
// @Tags admin
// @Produce json
// @Param limit query int false "Maximum entries, default 100"
// @Security Bearer
// @Success 200 {array} dto.AuditLogResponse
// @Router /api/admin/audit [get]
func (h *AdminHandler) AuditLogs(c *fiber.Ctx) error {
	entries, err := h.audit.ListRecent(c.Context(), c.QueryInt("limit"))
	if err != nil {
		h.logger.Error("failed to list audit logs", zap.Error(err))
		return errorResponse(c, err)
	}

	out := make([]dto.AuditLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.AuditLogResponse{
			ID:         e.ID.String(),
			ActorEmail: e.ActorEmail,
			Action:     e.Action,
			Detail:     e.Detail,
			Timestamp:  e.Timestamp.Format(time.RFC3339),
		})
	}
	return c.JSON(out)
}

// Dashboard godoc
// @Summary Pipeline statistics
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {object} service.DashboardStats
// @Router /api/admin/dashboard [get]
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	stats, err := h.stats.Dashboard(c.Context())
	if err != nil {
		h.logger.Error("failed to build dashboard stats", zap.Error(err))
		return errorResponse(c, err)
	}
	return c.JSON(stats)
}
