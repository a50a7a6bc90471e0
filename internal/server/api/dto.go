package api

import (
	"time"

	"github.com/dmitrijs2005/libsync/internal/server/models"
)

type libraryResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	StorageUsedBytes int64     `json:"storage_used_bytes"`
	Version          int64     `json:"version"`
	SyncToken        string    `json:"sync_token"`
	LinkedAt         time.Time `json:"linked_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toLibraryResponse(l *models.Library) libraryResponse {
	return libraryResponse{
		ID:               l.ID,
		Name:             l.Name,
		StorageUsedBytes: l.StorageUsedBytes,
		Version:          l.Version,
		SyncToken:        l.Token().String(),
		LinkedAt:         l.LinkedAt,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

type documentResponse struct {
	ID            string    `json:"id"`
	PublishedPath string    `json:"published_path"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Slug          string    `json:"slug"`
	BookmarkCount int64     `json:"bookmark_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type createLibraryRequest struct {
	Name string `json:"name"`
}

type renameLibraryRequest struct {
	Name    string `json:"name"`
	Version int64  `json:"version"`
}

type publishRequest struct {
	Path string `json:"path"`
	models.PublishMetadata
}
