package dto

import (
	"time"

	"docflow/internal/models"
)

// DocumentResponse never carries raw bytes; payloads travel only
// through the dedicated download endpoints.
type DocumentResponse struct {
	ID             string   `json:"id"`
	Filename       string   `json:"filename"`
	Type           string   `json:"type,omitempty"`
	State          string   `json:"state"`
	MimeType       string   `json:"mime_type"`
	FileSize       int64    `json:"file_size"`
	UploadedBy     string   `json:"uploaded_by"`
	UploadedAt     string   `json:"uploaded_at"`
	ParentID       string   `json:"parent_id,omitempty"`
	PageNumber     *int     `json:"page_number,omitempty"`
	SplitInto      []string `json:"split_into,omitempty"`
	BatchID        string   `json:"batch_id,omitempty"`
	Amount         *float64 `json:"amount,omitempty"`
	Date           string   `json:"date,omitempty"`
	Concept        string   `json:"concept,omitempty"`
	Counterparty   string   `json:"counterparty,omitempty"`
	TaxID          string   `json:"tax_id,omitempty"`
	BankReference  string   `json:"bank_reference,omitempty"`
	BankName       string   `json:"bank_name,omitempty"`
	DocumentNumber string   `json:"document_number,omitempty"`
	LastError      string   `json:"last_error,omitempty"`
}

func ToDocumentResponse(d *models.Document) DocumentResponse {
	resp := DocumentResponse{
		ID:         d.ID.String(),
		Filename:   d.Filename,
		Type:       string(d.Type),
		State:      string(d.EffectiveState()),
		MimeType:   d.MimeType,
		FileSize:   d.FileSize,
		UploadedBy: d.UploadedBy.String(),
		UploadedAt: d.UploadedAt.Format(time.RFC3339),
		PageNumber: d.PageNumber,
		Amount:     d.Amount,
	}
	if d.ParentID != nil {
		resp.ParentID = d.ParentID.String()
	}
	if d.BatchID != nil {
		resp.BatchID = d.BatchID.String()
	}
	for _, id := range d.SplitInto {
		resp.SplitInto = append(resp.SplitInto, id.String())
	}
	if d.Date != nil {
		resp.Date = *d.Date
	}
	if d.Concept != nil {
		resp.Concept = *d.Concept
	}
	if d.Counterparty != nil {
		resp.Counterparty = *d.Counterparty
	}
	if d.TaxID != nil {
		resp.TaxID = *d.TaxID
	}
	if d.BankReference != nil {
		resp.BankReference = *d.BankReference
	}
	if d.BankName != nil {
		resp.BankName = *d.BankName
	}
	if d.DocumentNumber != nil {
		resp.DocumentNumber = *d.DocumentNumber
	}
	if d.LastError != nil {
		resp.LastError = *d.LastError
	}
	return resp
}

func ToDocumentResponses(docs []*models.Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, ToDocumentResponse(d))
	}
	return out
}

type UploadResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Errors    []UploadError      `json:"errors,omitempty"`
}

type UploadError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}
