package models

import (
	"time"

	"github.com/google/uuid"
)

type BatchState string

const (
	BatchStateBuilding     BatchState = "building"
	BatchStateConsolidated BatchState = "consolidated"
)

// Batch groups correlated documents destined for one consolidated PDF.
// DocumentIDs keeps operator input order; membership is maintained
// exclusively by BatchService so that each member's BatchID always
// points back here.
type Batch struct {
	ID                uuid.UUID   `db:"id"`
	CreatedBy         uuid.UUID   `db:"created_by"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
	State             BatchState  `db:"state"`
	DocumentIDs       []uuid.UUID `db:"document_ids"`
	ArtifactID        *uuid.UUID  `db:"artifact_id"`
	NeedsRegeneration bool        `db:"needs_regeneration"`
}

// ConsolidatedArtifact is the merged PDF produced for a batch. The
// filename is deterministic but not guaranteed globally unique.
type ConsolidatedArtifact struct {
	ID        uuid.UUID `db:"id"`
	BatchID   uuid.UUID `db:"batch_id"`
	Filename  string    `db:"filename"`
	CreatedBy uuid.UUID `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
	FileSize  int64     `db:"file_size"`
	Payload   []byte    `db:"payload"`
}
