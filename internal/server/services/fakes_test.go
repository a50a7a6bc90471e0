package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/libsync/internal/common"
	"github.com/dmitrijs2005/libsync/internal/logging"
	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/dmitrijs2005/libsync/internal/server/storage"
	"github.com/dmitrijs2005/libsync/internal/server/storage/storagetest"
)

// memCatalog is an in-memory LibraryCatalog with the same semantics as the
// Postgres one: versions bump on every write, usage is clamped at zero and
// names are unique among live libraries of an owner.
type memCatalog struct {
	mu      sync.Mutex
	libs    map[string]*models.Library
	docs    map[string][]*models.Document
	seq     int
	now     time.Time
	calls   map[string]int
	failOn  map[string]error
	nextIDs []string
	// attempted holds the sequence number of each library's last failed purge.
	attempted map[string]int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		libs:   map[string]*models.Library{},
		docs:   map[string][]*models.Document{},
		now:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		calls:  map[string]int{},
		failOn: map[string]error{},

		attempted: map[string]int{},
	}
}

func (m *memCatalog) enter(op string) error {
	m.calls[op]++
	return m.failOn[op]
}

func (m *memCatalog) live(id string) (*models.Library, error) {
	lib, ok := m.libs[id]
	if !ok || lib.DeletedAt != nil {
		return nil, common.ErrorNotFound
	}
	return lib, nil
}

func clone(l *models.Library) *models.Library {
	c := *l
	return &c
}

func (m *memCatalog) Create(ctx context.Context, ownerID, name string) (*models.Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("create"); err != nil {
		return nil, err
	}
	for _, l := range m.libs {
		if l.OwnerID == ownerID && l.Name == name && l.DeletedAt == nil {
			return nil, common.ErrDuplicateName
		}
	}
	m.seq++
	id := fmt.Sprintf("lib-%d", m.seq)
	if len(m.nextIDs) > 0 {
		id, m.nextIDs = m.nextIDs[0], m.nextIDs[1:]
	}
	lib := &models.Library{ID: id, OwnerID: ownerID, Name: name, Version: 1, LinkedAt: m.now, CreatedAt: m.now, UpdatedAt: m.now}
	m.libs[id] = lib
	return clone(lib), nil
}

func (m *memCatalog) Get(ctx context.Context, id string) (*models.Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("get"); err != nil {
		return nil, err
	}
	lib, err := m.live(id)
	if err != nil {
		return nil, err
	}
	return clone(lib), nil
}

func (m *memCatalog) List(ctx context.Context, ownerID string) ([]*models.Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Library
	for _, l := range m.libs {
		if l.OwnerID == ownerID && l.DeletedAt == nil {
			out = append(out, clone(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memCatalog) Rename(ctx context.Context, id, newName string, expectedVersion int64) (*models.Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lib, err := m.live(id)
	if err != nil {
		return nil, err
	}
	if lib.Version != expectedVersion {
		return nil, common.ErrVersionConflict
	}
	lib.Name = newName
	lib.Version++
	return clone(lib), nil
}

func (m *memCatalog) Link(ctx context.Context, id string, at time.Time) (*models.Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lib, err := m.live(id)
	if err != nil {
		return nil, err
	}
	lib.LinkedAt = at
	lib.Version++
	return clone(lib), nil
}

func (m *memCatalog) AdjustStorageUsed(ctx context.Context, id string, delta int64) (*models.Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("adjust"); err != nil {
		return nil, err
	}
	lib, err := m.live(id)
	if err != nil {
		return nil, err
	}
	lib.StorageUsedBytes = max(lib.StorageUsedBytes+delta, 0)
	lib.Version++
	return clone(lib), nil
}

func (m *memCatalog) SetStorageUsed(ctx context.Context, id string, bytes int64) (*models.Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("set"); err != nil {
		return nil, err
	}
	lib, err := m.live(id)
	if err != nil {
		return nil, err
	}
	lib.StorageUsedBytes = max(bytes, 0)
	lib.Version++
	return clone(lib), nil
}

func (m *memCatalog) SoftDeleteCascade(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("cascade"); err != nil {
		return err
	}
	lib, err := m.live(id)
	if err != nil {
		return err
	}
	now := m.now
	for _, d := range m.docs[id] {
		d.DeletedAt = &now
	}
	lib.DeletedAt = &now
	lib.Version++
	return nil
}

func (m *memCatalog) Discard(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["discard"]++
	delete(m.libs, id)
	return nil
}

func (m *memCatalog) MarkPurged(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("purged"); err != nil {
		return err
	}
	lib, ok := m.libs[id]
	if !ok || lib.DeletedAt == nil || lib.PurgedAt != nil {
		return common.ErrorNotFound
	}
	now := m.now
	lib.PurgedAt = &now
	return nil
}

func (m *memCatalog) MarkPurgeAttempted(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("attempted"); err != nil {
		return err
	}
	lib, ok := m.libs[id]
	if !ok || lib.DeletedAt == nil || lib.PurgedAt != nil {
		return common.ErrorNotFound
	}
	m.seq++
	m.attempted[id] = m.seq
	return nil
}

func (m *memCatalog) PendingPurge(ctx context.Context, limit int) ([]*models.Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("pending"); err != nil {
		return nil, err
	}
	var out []*models.Library
	for _, l := range m.libs {
		if l.DeletedAt != nil && l.PurgedAt == nil {
			out = append(out, clone(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := m.attempted[out[i].ID], m.attempted[out[j].ID]
		if ai != aj {
			return ai < aj
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memCatalog) Usage(ctx context.Context, ownerID string) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("usage"); err != nil {
		return 0, 0, err
	}
	var n, used int64
	for _, l := range m.libs {
		if l.OwnerID == ownerID && l.DeletedAt == nil {
			n++
			used += l.StorageUsedBytes
		}
	}
	return n, used, nil
}

func (m *memCatalog) Documents(ctx context.Context, libraryID string) ([]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Document
	for _, d := range m.docs[libraryID] {
		if d.DeletedAt == nil {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memCatalog) usage(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.libs[id].StorageUsedBytes
}

// memDocuments is a DocumentCatalog keyed by (owner, library, path), sharing
// the document list with memCatalog so cascades reach it.
type memDocuments struct {
	cat *memCatalog
	err error
	seq int
}

func (d *memDocuments) UpsertPublishedDocument(ctx context.Context, ownerID, libraryID, publishedPath string, meta models.PublishMetadata) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	d.cat.mu.Lock()
	defer d.cat.mu.Unlock()
	for _, doc := range d.cat.docs[libraryID] {
		if doc.OwnerID == ownerID && doc.PublishedPath == publishedPath {
			if meta.Title != "" {
				doc.Title = meta.Title
			}
			if meta.Description != "" {
				doc.Description = meta.Description
			}
			doc.DeletedAt = nil
			return doc.ID, nil
		}
	}
	d.seq++
	title := meta.Title
	if title == "" {
		title = TitleFromPath(publishedPath)
	}
	doc := &models.Document{
		ID:            fmt.Sprintf("doc-%d", d.seq),
		OwnerID:       ownerID,
		LibraryID:     libraryID,
		PublishedPath: publishedPath,
		Title:         title,
		Description:   meta.Description,
	}
	d.cat.docs[libraryID] = append(d.cat.docs[libraryID], doc)
	return doc.ID, nil
}

type staticPlans struct {
	plan *models.Plan
	err  error
}

func (p staticPlans) PlanFor(ctx context.Context, userID string) (*models.Plan, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.plan, nil
}

func limit(n int64) *int64 { return &n }

const (
	kib = int64(1024)
	mib = 1024 * kib
)

func freePlan() *models.Plan {
	return &models.Plan{Name: "FREE", LibraryLimit: limit(1), StorageLimitBytes: 500 * mib}
}

type harness struct {
	svc     *LibraryService
	catalog *memCatalog
	docs    *memDocuments
	store   *storagetest.MemoryStore
	layout  storage.Layout
}

func newHarness(plan *models.Plan) *harness {
	cat := newMemCatalog()
	store := storagetest.New()
	layout := storage.NewLayout("root")
	docs := &memDocuments{cat: cat}
	quota := NewQuotaPolicy(staticPlans{plan: plan}, cat, 10*mib, 50*mib)

	svc := NewLibraryService(LibraryServiceDeps{
		Catalog:     cat,
		Quota:       quota,
		Store:       store,
		Layout:      layout,
		Signer:      NewSignedAccessIssuer(store, layout, 15*time.Minute),
		Documents:   docs,
		MaxParallel: 4,
		Log:         logging.Discard(),
	})
	svc.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

	return &harness{svc: svc, catalog: cat, docs: docs, store: store, layout: layout}
}

func file(rel string, content string) models.FileUpload {
	return models.FileUpload{
		RelativePath: rel,
		Size:         int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

// sized declares size bytes without producing them; the memory store keeps
// whatever the reader yields.
func sized(rel string, size int64) models.FileUpload {
	return models.FileUpload{
		RelativePath: rel,
		Size:         size,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("x")), nil
		},
	}
}

func (h *harness) privateKey(owner, lib, rel string) string {
	k, _ := h.layout.ObjectKey(owner, lib, storage.BranchPrivate, rel)
	return k
}

func (h *harness) publishedKey(owner, lib, rel string) string {
	k, _ := h.layout.ObjectKey(owner, lib, storage.BranchPublished, rel)
	return k
}

var freePlanUnlimited = models.Plan{Name: "PRO", StorageLimitBytes: 500 * mib}
