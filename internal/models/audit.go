package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog records one mutating operation. Written after every
// successful mutation; reads are not audited.
type AuditLog struct {
	ID         uuid.UUID `db:"id"`
	ActorID    uuid.UUID `db:"actor_id"`
	ActorEmail string    `db:"actor_email"`
	Action     string    `db:"action"`
	Detail     string    `db:"detail"`
	Timestamp  time.Time `db:"timestamp"`
}
