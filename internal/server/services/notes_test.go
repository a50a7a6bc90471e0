package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitleFromPath(t *testing.T) {
	tests := map[string]string{
		"notes/weekly-review.md": "weekly-review",
		"a.tar.gz":               "a.tar",
		"README":                 "README",
		".hidden":                ".hidden",
	}
	for in, want := range tests {
		assert.Equal(t, want, TitleFromPath(in), in)
	}
}

func TestNoteCatalog_UpsertDefaultsTitleAndSlug(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	docs := &fakeDocRepo{}
	n := NewNoteCatalog(db, &fakeRepoManager{docs: docs})
	n.newID = func() string { return "new-id" }

	id, err := n.UpsertPublishedDocument(context.Background(), "u1", "l1", "notes/My Notes.md", models.PublishMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)

	require.Len(t, docs.upserts, 1)
	p := docs.upserts[0]
	assert.Equal(t, "new-id", p.ID)
	assert.Equal(t, "", p.Title)
	assert.Equal(t, "My Notes", p.FallbackTitle)
	assert.Equal(t, "my-notes", p.Slug)
	assert.Equal(t, []string{"upsert"}, docs.steps, "tags untouched when none are given")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteCatalog_UpsertReplacesTags(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	docs := &fakeDocRepo{}
	n := NewNoteCatalog(db, &fakeRepoManager{docs: docs})

	_, err := n.UpsertPublishedDocument(context.Background(), "u1", "l1", "a.md", models.PublishMetadata{
		Title: "Hello World",
		Tags:  []string{"Go", " go ", "", "sync"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello-world", docs.upserts[0].Slug)
	assert.Equal(t, [][]string{{"go", "sync"}}, docs.tags)
}

func TestNoteCatalog_RollsBackOnTagFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	docs := &fakeDocRepo{failStep: "tags"}
	n := NewNoteCatalog(db, &fakeRepoManager{docs: docs})

	_, err := n.UpsertPublishedDocument(context.Background(), "u1", "l1", "a.md", models.PublishMetadata{Tags: []string{}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
