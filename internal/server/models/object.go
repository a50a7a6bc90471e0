package models

import "time"

// TreeNode is one entry of a single-level branch listing.
type TreeNode struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	IsDir        bool      `json:"is_dir"`
	Size         int64     `json:"size,omitempty"`
	LastModified time.Time `json:"last_modified,omitzero"`
}

// SignedFile is a time-limited read link for one object.
type SignedFile struct {
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expires_at"`
	ContentType string    `json:"content_type"`
	FileName    string    `json:"file_name"`
}
