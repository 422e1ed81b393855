package models

import (
	"time"

	"github.com/google/uuid"
)

type DocumentType string

const (
	DocumentTypeExpenseVoucher DocumentType = "comprobante_egreso"
	DocumentTypePayableAccount DocumentType = "cuenta_por_pagar"
	DocumentTypeInvoice        DocumentType = "factura"
	DocumentTypePaymentProof   DocumentType = "soporte_pago"
)

// ParseDocumentType validates an incoming type string.
func ParseDocumentType(s string) (DocumentType, bool) {
	switch DocumentType(s) {
	case DocumentTypeExpenseVoucher, DocumentTypePayableAccount, DocumentTypeInvoice, DocumentTypePaymentProof:
		return DocumentType(s), true
	}
	return "", false
}

type DocumentState string

const (
	StateIntake       DocumentState = "intake"
	StateValidating   DocumentState = "validating"
	StateValidated    DocumentState = "validated"
	StateSplit        DocumentState = "split"
	StateExtracting   DocumentState = "extracting"
	StateExtracted    DocumentState = "extracted"
	StateInBatch      DocumentState = "in_batch"
	StateConsolidated DocumentState = "consolidated"
	StateNeedsReview  DocumentState = "needs_review"
)

// Document is a single uploaded file plus the fields extracted from it.
// ParentID/PageNumber are set on documents produced by splitting a
// multipage PDF; SplitInto is set on the parent, in original page order.
type Document struct {
	ID         uuid.UUID     `db:"id"`
	Filename   string        `db:"filename"`
	Type       DocumentType  `db:"type"`
	State      DocumentState `db:"state"`
	MimeType   string        `db:"mime_type"`
	FileSize   int64         `db:"file_size"`
	RawBytes   []byte        `db:"raw_bytes"`
	UploadedBy uuid.UUID     `db:"uploaded_by"`
	UploadedAt time.Time     `db:"uploaded_at"`
	UpdatedAt  time.Time     `db:"updated_at"`

	ParentID   *uuid.UUID  `db:"parent_id"`
	PageNumber *int        `db:"page_number"`
	SplitInto  []uuid.UUID `db:"split_into"`
	BatchID    *uuid.UUID  `db:"batch_id"`

	// Extracted fields, normalized. Nil means not present.
	Amount         *float64 `db:"amount"`
	Date           *string  `db:"date"`
	Concept        *string  `db:"concept"`
	Counterparty   *string  `db:"counterparty"`
	TaxID          *string  `db:"tax_id"`
	BankReference  *string  `db:"bank_reference"`
	BankName       *string  `db:"bank_name"`
	DocumentNumber *string  `db:"document_number"`
	RawExtraction  []byte   `db:"raw_extraction"`
	LastError      *string  `db:"last_error"`
}

// EffectiveState is the state shown to operators: a batched document
// reads as in_batch until its batch is consolidated.
func (d *Document) EffectiveState() DocumentState {
	if d.BatchID != nil && d.State == StateExtracted {
		return StateInBatch
	}
	return d.State
}

// IsSplitChild reports whether this document came from splitting a
// multipage PDF. Children are never themselves split.
func (d *Document) IsSplitChild() bool {
	return d.ParentID != nil
}

// ClearExtraction drops everything a previous extraction produced.
// Used when a document's payload is replaced.
func (d *Document) ClearExtraction() {
	d.Amount = nil
	d.Date = nil
	d.Concept = nil
	d.Counterparty = nil
	d.TaxID = nil
	d.BankReference = nil
	d.BankName = nil
	d.DocumentNumber = nil
	d.RawExtraction = nil
	d.LastError = nil
}
