package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/snapshots"
)

// MemoryStore keeps objects in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	created bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) PutSnapshot(ctx context.Context, meta *snapshots.Meta, dir string, report snapshots.ProgressFunc) error {
	for _, name := range artifacts(meta) {
		f, size, err := openArtifact(dir, name)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		if int64(len(data)) != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
		}

		m.mu.Lock()
		m.objects[Key(meta.Project, meta.ID, name)] = data
		m.mu.Unlock()
		if report != nil {
			report(name, size, size)
		}
	}
	return nil
}

func (m *MemoryStore) DownloadArtifact(ctx context.Context, meta *snapshots.Meta, name, dest string) error {
	key := Key(meta.Project, meta.ID, name)
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return errs.NotFoundf("object %s not found", key)
	}
	return writeFile(dest, bytes.NewReader(data), int64(len(data)))
}

func (m *MemoryStore) DeleteSnapshot(ctx context.Context, id, project string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range snapshotKeys(id, project) {
		delete(m.objects, key)
	}
	return nil
}

func (m *MemoryStore) CreateBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.created {
		return errs.Conflictf(errs.CodeAlreadyExists, "bucket already exists")
	}
	m.created = true
	return nil
}

// Test always succeeds.
func (m *MemoryStore) Test(ctx context.Context) error {
	return nil
}
