package dto

import (
	"time"

	"docflow/internal/models"
)

type CreateBatchRequest struct {
	DocumentIDs []string `json:"document_ids" validate:"required,min=1"`
}

type BatchMemberRequest struct {
	DocumentID string `json:"document_id" validate:"required"`
}

type BatchResponse struct {
	ID                string   `json:"id"`
	State             string   `json:"state"`
	DocumentIDs       []string `json:"document_ids"`
	ArtifactID        string   `json:"artifact_id,omitempty"`
	NeedsRegeneration bool     `json:"needs_regeneration"`
	CreatedBy         string   `json:"created_by"`
	CreatedAt         string   `json:"created_at"`
}

func ToBatchResponse(b *models.Batch) BatchResponse {
	resp := BatchResponse{
		ID:                b.ID.String(),
		State:             string(b.State),
		DocumentIDs:       make([]string, 0, len(b.DocumentIDs)),
		NeedsRegeneration: b.NeedsRegeneration,
		CreatedBy:         b.CreatedBy.String(),
		CreatedAt:         b.CreatedAt.Format(time.RFC3339),
	}
	for _, id := range b.DocumentIDs {
		resp.DocumentIDs = append(resp.DocumentIDs, id.String())
	}
	if b.ArtifactID != nil {
		resp.ArtifactID = b.ArtifactID.String()
	}
	return resp
}

func ToBatchResponses(batches []*models.Batch) []BatchResponse {
	out := make([]BatchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, ToBatchResponse(b))
	}
	return out
}

type ArtifactResponse struct {
	ID        string `json:"id"`
	BatchID   string `json:"batch_id"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"file_size"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

func ToArtifactResponse(a *models.ConsolidatedArtifact) ArtifactResponse {
	return ArtifactResponse{
		ID:        a.ID.String(),
		BatchID:   a.BatchID.String(),
		Filename:  a.Filename,
		FileSize:  a.FileSize,
		CreatedBy: a.CreatedBy.String(),
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

type SuggestionResponse struct {
	GroupLabel      string   `json:"group_label"`
	DocumentIDs     []string `json:"document_ids"`
	Confidence      string   `json:"confidence"`
	CorrelationType string   `json:"correlation_type"`
	Rationale       string   `json:"rationale"`
}

func ToSuggestionResponses(suggestions []models.CorrelationSuggestion) []SuggestionResponse {
	out := make([]SuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		ids := make([]string, 0, len(s.DocumentIDs))
		for _, id := range s.DocumentIDs {
			ids = append(ids, id.String())
		}
		out = append(out, SuggestionResponse{
			GroupLabel:      s.GroupLabel,
			DocumentIDs:     ids,
			Confidence:      string(s.Confidence),
			CorrelationType: s.CorrelationType,
			Rationale:       s.Rationale,
		})
	}
	return out
}

type AuditLogResponse struct {
	ID         string `json:"id"`
	ActorEmail string `json:"actor_email"`
	Action     string `json:"action"`
	Detail     string `json:"detail"`
	Timestamp  string `json:"timestamp"`
}
