// Package storagetest provides an in-memory storage.ObjectStore for tests.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/libsync/internal/common"
	"github.com/dmitrijs2005/libsync/internal/server/storage"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStore keeps objects in a map. Failures can be injected per operation
// and key through FailOn.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]object
	fail    map[string]error
	calls   map[string]int

	Now func() time.Time
}

var _ storage.ObjectStore = (*MemoryStore)(nil)

// ErrInjected is the default failure returned by FailOn.
var ErrInjected = errors.New("injected store failure")

// New returns an empty store with a fixed clock.
func New() *MemoryStore {
	return &MemoryStore{
		objects: map[string]object{},
		fail:    map[string]error{},
		calls:   map[string]int{},
		Now:     func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

// FailOn makes op fail for key. An empty key matches every key. A nil err
// means ErrInjected. Failures are reported as store unavailability.
func (m *MemoryStore) FailOn(op, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	m.fail[op+"|"+key] = err
}

// Calls reports how many times op was invoked.
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Seed stores data under key without counting a call.
func (m *MemoryStore) Seed(key string, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: []byte(data), contentType: storage.ContentTypeFor(key), modified: m.Now()}
}

// Content returns the stored bytes of key.
func (m *MemoryStore) Content(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return string(o.data), ok
}

// Keys returns every stored key under prefix, sorted.
func (m *MemoryStore) Keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keysLocked(prefix)
}

func (m *MemoryStore) keysLocked(prefix string) []string {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// enter counts the call and returns an injected failure, if any. Must be
// called with mu held.
func (m *MemoryStore) enter(op, key string) error {
	m.calls[op]++
	err, ok := m.fail[op+"|"+key]
	if !ok {
		err, ok = m.fail[op+"|"]
	}
	if !ok {
		return nil
	}
	return fmt.Errorf("%s %s: %w: %w", op, key, common.ErrStoreUnavailable, err)
}

func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("put", key); err != nil {
		return err
	}
	m.objects[key] = object{data: data, contentType: contentType, modified: m.Now()}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("get", key); err != nil {
		return nil, err
	}
	o, ok := m.objects[key]
	if !ok {
		return nil, &storage.NotFoundError{Key: key}
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (m *MemoryStore) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("stat", key); err != nil {
		return storage.ObjectInfo{}, err
	}
	o, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, &storage.NotFoundError{Key: key}
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(o.data)), ContentType: o.contentType, LastModified: o.modified}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete", key); err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete_prefix", prefix); err != nil {
		return 0, err
	}
	keys := m.keysLocked(prefix)
	for _, k := range keys {
		delete(m.objects, k)
	}
	return len(keys), nil
}

func (m *MemoryStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("copy", srcKey); err != nil {
		return err
	}
	o, ok := m.objects[srcKey]
	if !ok {
		return &storage.NotFoundError{Key: srcKey}
	}
	o.data = append([]byte(nil), o.data...)
	o.modified = m.Now()
	m.objects[dstKey] = o
	return nil
}

func (m *MemoryStore) HasPrefix(ctx context.Context, prefix string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("has_prefix", prefix); err != nil {
		return false, err
	}
	return len(m.keysLocked(prefix)) > 0, nil
}

func (m *MemoryStore) ListTree(ctx context.Context, prefix string) ([]storage.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list_tree", prefix); err != nil {
		return nil, err
	}

	var entries []storage.Entry
	seen := map[string]bool{}
	for _, k := range m.keysLocked(prefix) {
		rest := strings.TrimPrefix(k, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			dir := prefix + rest[:i+1]
			if !seen[dir] {
				seen[dir] = true
				entries = append(entries, storage.Entry{Key: dir, IsPrefix: true})
			}
			continue
		}
		if rest == "" || storage.IsMarker(k) {
			continue
		}
		o := m.objects[k]
		entries = append(entries, storage.Entry{Key: k, Size: int64(len(o.data)), LastModified: o.modified})
	}
	return entries, nil
}

func (m *MemoryStore) ListAll(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list_all", prefix); err != nil {
		return nil, err
	}

	var out []storage.ObjectInfo
	for _, k := range m.keysLocked(prefix) {
		if storage.IsMarker(k) {
			continue
		}
		o := m.objects[k]
		out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(o.data)), ContentType: o.contentType, LastModified: o.modified})
	}
	return out, nil
}

func (m *MemoryStore) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (storage.SignedURL, error) {
	info, err := m.Stat(ctx, key)
	if err != nil {
		return storage.SignedURL{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("sign", key); err != nil {
		return storage.SignedURL{}, err
	}
	return storage.SignedURL{
		URL:         "memory://" + key + "?expires=" + ttl.String(),
		ExpiresAt:   m.Now().Add(ttl),
		ContentType: info.ContentType,
		FileName:    path.Base(key),
	}, nil
}

func (m *MemoryStore) ArchiveStream(ctx context.Context, prefix string) io.ReadCloser {
	return storage.NewArchiveStream(ctx, m, prefix)
}
