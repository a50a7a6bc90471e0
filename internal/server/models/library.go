// Package models defines server-side data models persisted in the database
// or exchanged between the sync engine and its callers.
package models

import (
	"fmt"
	"time"
)

// Library is one user's synchronized document library.
type Library struct {
	ID      string
	OwnerID string
	Name    string
	// StorageUsedBytes caches object store usage. Push adjusts it
	// incrementally, Overwrite resets it to the exact uploaded total.
	StorageUsedBytes int64
	// Version increments on every metadata write.
	Version   int64
	LinkedAt  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	// PurgedAt is set once the object store prefix of a deleted library
	// has been removed.
	PurgedAt *time.Time
}

// SyncToken lets a client detect whether its local copy still matches the
// catalog record it last synchronized against.
type SyncToken struct {
	LinkedAt time.Time `json:"linked_at"`
	Version  int64     `json:"version"`
}

func (t SyncToken) String() string {
	return fmt.Sprintf("%d.%d", t.LinkedAt.UnixMilli(), t.Version)
}

// Token returns the current sync token of the library.
func (l *Library) Token() SyncToken {
	return SyncToken{LinkedAt: l.LinkedAt, Version: l.Version}
}
