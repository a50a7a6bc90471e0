package models

import (
	"io"
	"time"
)

// FileUpload is one file of a sync batch. Open is called once, by the worker
// that streams the file to the object store.
type FileUpload struct {
	RelativePath string
	Size         int64
	ContentType  string
	Open         func() (io.ReadCloser, error)
}

// SyncBatch is the client's complete diff since its last successful sync.
type SyncBatch struct {
	Uploads   []FileUpload
	Deletions []string
}

// TotalUploadBytes sums the declared sizes of all uploads.
func (b SyncBatch) TotalUploadBytes() int64 {
	var total int64
	for _, u := range b.Uploads {
		total += u.Size
	}
	return total
}

// SyncSummary is returned to the client after a push or an overwrite.
type SyncSummary struct {
	LibraryID        string    `json:"library_id"`
	FilesUploaded    int       `json:"files_uploaded"`
	FilesDeleted     int       `json:"files_deleted"`
	UploadedBytes    int64     `json:"uploaded_bytes"`
	FreedBytes       int64     `json:"freed_bytes"`
	StorageUsedBytes int64     `json:"storage_used_bytes"`
	StorageUsed      string    `json:"storage_used"`
	Version          int64     `json:"version"`
	SyncedAt         time.Time `json:"synced_at"`
}
