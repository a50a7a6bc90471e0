// Package common defines shared constants and sentinel errors used across
// the library sync server. Callers should use errors.Is to match these values;
// the typed errors below carry the numbers a client needs to render an
// actionable message.
package common

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrDuplicateName   = errors.New("duplicate name")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrLimitExceeded  = errors.New("limit exceeded")
	ErrOversizedInput = errors.New("oversized input")
	ErrInvalidPath    = errors.New("invalid path")
	ErrInvalidName    = errors.New("invalid library name")
	ErrPushFirst      = errors.New("file is not in the private branch, push it to private first")
	ErrPrefixConflict = errors.New("storage prefix already in use, retry")
	// ErrCleanupPending means the delete took effect but its objects are
	// left for the sweeper. Retrying the delete is not needed.
	ErrCleanupPending = errors.New("library deleted, storage cleanup pending")

	// Object store errors.
	ErrSyncFailed       = errors.New("sync failed")
	ErrStoreUnavailable = errors.New("object store unavailable")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// LimitExceededError reports a quota breach. Current, Limit, Requested and
// Shortfall share the unit of Resource (a count for libraries, bytes for storage).
type LimitExceededError struct {
	Resource  string
	Plan      string
	Current   int64
	Limit     int64
	Requested int64
	Shortfall int64
}

const (
	ResourceLibraries = "libraries"
	ResourceStorage   = "storage"
)

func (e *LimitExceededError) Error() string {
	if e.Resource == ResourceStorage {
		return fmt.Sprintf("storage limit exceeded on plan %s: used %s of %s, upload needs %s, short by %s",
			e.Plan,
			humanize.IBytes(uint64(e.Current)),
			humanize.IBytes(uint64(e.Limit)),
			humanize.IBytes(uint64(e.Requested)),
			humanize.IBytes(uint64(e.Shortfall)))
	}
	return fmt.Sprintf("library limit exceeded on plan %s: %d of %d in use", e.Plan, e.Current, e.Limit)
}

func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// OversizedInputError reports a per-file or per-batch size cap breach.
type OversizedInputError struct {
	Scope string // "file" or "batch"
	Path  string
	Size  int64
	Max   int64
}

func (e *OversizedInputError) Error() string {
	if e.Scope == "file" {
		return fmt.Sprintf("file %s is %s, the per-file maximum is %s",
			e.Path, humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Max)))
	}
	return fmt.Sprintf("batch is %s, the per-request maximum is %s",
		humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Max)))
}

func (e *OversizedInputError) Is(target error) bool {
	return target == ErrOversizedInput
}

// SyncFailedError wraps an object store failure that aborted a push or an
// overwrite. The original cause stays reachable through errors.Unwrap.
type SyncFailedError struct {
	Op   string
	Path string
	Err  error
}

func (e *SyncFailedError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("sync failed during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sync failed during %s of %s: %v", e.Op, e.Path, e.Err)
}

func (e *SyncFailedError) Is(target error) bool {
	return target == ErrSyncFailed
}

func (e *SyncFailedError) Unwrap() error {
	return e.Err
}
