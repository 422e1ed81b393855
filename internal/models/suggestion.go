package models

import "github.com/google/uuid"

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// CorrelationSuggestion is an ephemeral proposed grouping. It is never
// persisted; batches are only created by explicit operator action.
type CorrelationSuggestion struct {
	GroupLabel      string      `json:"group_label"`
	DocumentIDs     []uuid.UUID `json:"document_ids"`
	Confidence      Confidence  `json:"confidence"`
	CorrelationType string      `json:"correlation_type"`
	Rationale       string      `json:"rationale"`
}

// DocumentProjection is the sanitized view of a document handed to the
// correlation capability. No raw bytes, no operator identity.
type DocumentProjection struct {
	ID             uuid.UUID    `json:"id"`
	Type           DocumentType `json:"type"`
	Counterparty   string       `json:"counterparty,omitempty"`
	Amount         *float64     `json:"amount,omitempty"`
	TaxID          string       `json:"tax_id,omitempty"`
	Date           string       `json:"date,omitempty"`
	DocumentNumber string       `json:"document_number,omitempty"`
	BankReference  string       `json:"bank_reference,omitempty"`
}

// ProjectDocument builds the correlation projection for one document.
func ProjectDocument(d *Document) DocumentProjection {
	p := DocumentProjection{ID: d.ID, Type: d.Type, Amount: d.Amount}
	if d.Counterparty != nil {
		p.Counterparty = *d.Counterparty
	}
	if d.TaxID != nil {
		p.TaxID = *d.TaxID
	}
	if d.Date != nil {
		p.Date = *d.Date
	}
	if d.DocumentNumber != nil {
		p.DocumentNumber = *d.DocumentNumber
	}
	if d.BankReference != nil {
		p.BankReference = *d.BankReference
	}
	return p
}
