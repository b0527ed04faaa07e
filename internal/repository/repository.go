// Package repository resolves configured repositories into their metadata
// and object stores.
package repository

import (
	"context"
	"errors"
	"io"
	"sync"

	"wpsnapshots/internal/config"
	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/snapshots"
)

// Repository binds the stores of one configured repository. The stores
// are built on first use.
type Repository struct {
	cfg  config.RepositoryConfig
	open Opener

	once  sync.Once
	db    snapshots.MetaStore
	store snapshots.ObjectStore
	err   error
}

// New returns the repository described by rc. A nil open uses OpenStores.
func New(rc config.RepositoryConfig, open Opener) *Repository {
	if open == nil {
		open = OpenStores
	}
	return &Repository{cfg: rc, open: open}
}

func (r *Repository) Name() string { return r.cfg.Repository }

// Config returns the repository's configuration entry.
func (r *Repository) Config() config.RepositoryConfig { return r.cfg }

func (r *Repository) init() {
	r.once.Do(func() {
		r.db, r.store, r.err = r.open(context.Background(), r.cfg)
		if r.err != nil {
			r.err = errs.Wrap(errs.Connectivity, errs.CodeTransport, r.err, "opening repository %s", r.cfg.Repository)
		}
	})
}

func (r *Repository) DB() (snapshots.MetaStore, error) {
	r.init()
	return r.db, r.err
}

func (r *Repository) S3() (snapshots.ObjectStore, error) {
	r.init()
	return r.store, r.err
}

// Close releases the stores if they were opened.
func (r *Repository) Close() error {
	if c, ok := r.db.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// local is the cache-only pseudo-repository of snapshots that were never
// pushed.
type local struct{}

func (local) Name() string { return config.LocalRepository }

func (local) DB() (snapshots.MetaStore, error) {
	return nil, errs.New(errs.Validation, errs.CodeNoRemote, "repository %s has no remote storage", config.LocalRepository)
}

func (local) S3() (snapshots.ObjectStore, error) {
	return nil, errs.New(errs.Validation, errs.CodeNoRemote, "repository %s has no remote storage", config.LocalRepository)
}

// Manager resolves repositories by name and memoizes them for the life
// of the process.
type Manager struct {
	cfg  *config.Config
	open Opener

	mu    sync.Mutex
	repos map[string]*Repository
}

// NewManager returns a Manager over cfg. A nil open uses OpenStores.
func NewManager(cfg *config.Config, open Opener) *Manager {
	return &Manager{cfg: cfg, open: open, repos: map[string]*Repository{}}
}

// Resolve returns the named repository. An empty name is the default: the
// first configured repository by name, or local when there is none.
func (m *Manager) Resolve(name string) (snapshots.Repository, error) {
	if name == "" {
		name = m.cfg.DefaultRepository()
	}
	if name == config.LocalRepository {
		return local{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.repos[name]; ok {
		return r, nil
	}
	rc, ok := m.cfg.Repository(name)
	if !ok {
		return nil, errs.NotFoundf("repository %s is not configured; run configure --repository %s", name, name)
	}
	r := New(rc, m.open)
	m.repos[name] = r
	return r, nil
}

// Author is the identity recorded on created snapshots.
func (m *Manager) Author() snapshots.Author {
	return snapshots.Author{Name: m.cfg.Name, Email: m.cfg.Email}
}

// Close releases every repository resolved so far.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []error
	for _, r := range m.repos {
		all = append(all, r.Close())
	}
	return errors.Join(all...)
}

// Compile-time checks.
var (
	_ snapshots.Repository = (*Repository)(nil)
	_ snapshots.Repository = local{}
	_ snapshots.Resolver   = (*Manager)(nil)
)
