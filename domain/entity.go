package domain

import (
	"errors"
	"time"
)

// ErrValidation marks a record that failed a write-time check. Callers wrap it
// with the offending field so the message stays useful.
var ErrValidation = errors.New("validation failed")

type SyncStatus string

const (
	SyncSynced   SyncStatus = "synced"
	SyncPending  SyncStatus = "pending"
	SyncConflict SyncStatus = "conflict"
)

type EntityStatus string

const (
	StatusActive   EntityStatus = "active"
	StatusInactive EntityStatus = "inactive"
)

func (s EntityStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Envelope is embedded by every persisted entity.
type Envelope struct {
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	SyncStatus SyncStatus `json:"sync_status"`
}

// Touch marks the record as locally modified at now.
func (e *Envelope) Touch(now time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.SyncStatus = SyncPending
}

func (e Envelope) Pending() bool {
	return e.SyncStatus == SyncPending
}
