package models

import "time"

// PublishMetadata is supplied by the caller when promoting a file to the
// published branch. Empty fields keep the stored value on re-publish.
type PublishMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Document is the catalog record of a published file.
type Document struct {
	ID            string
	OwnerID       string
	LibraryID     string
	PublishedPath string
	Title         string
	Description   string
	Slug          string
	BookmarkCount int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// PublishResult describes a completed publish.
type PublishResult struct {
	DocumentID    string    `json:"document_id"`
	LibraryID     string    `json:"library_id"`
	PublishedPath string    `json:"published_path"`
	PublishedAt   time.Time `json:"published_at"`
}
