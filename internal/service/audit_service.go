package service

import (
	"context"
	"fmt"
	"time"

	"docflow/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditService records mutating operations. Recording never fails the
// caller; a lost audit row is logged and swallowed.
type AuditService struct {
	store  AuditStore
	logger *zap.Logger
}

func NewAuditService(store AuditStore, logger *zap.Logger) *AuditService {
	return &AuditService{store: store, logger: logger}
}

func (s *AuditService) Record(ctx context.Context, actorID uuid.UUID, actorEmail, action, detail string) {
	entry := &models.AuditLog{
		ID:         uuid.New(),
		ActorID:    actorID,
		ActorEmail: actorEmail,
		Action:     action,
		Detail:     detail,
		Timestamp:  time.Now(),
	}
	if err := s.store.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (s *AuditService) ListRecent(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}
