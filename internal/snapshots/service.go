package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"wpsnapshots/internal/cache"
	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/wordpress"
)

// Bridge bootstraps a WordPress install and connects to its database.
type Bridge interface {
	Load(ctx context.Context, path string, overrides map[string]string) (*wordpress.Install, error)
}

// DatabaseTool exports and imports SQL dumps.
type DatabaseTool interface {
	Dump(ctx context.Context, conn wordpress.DBParams, tables []string, dest string) error
	Import(ctx context.Context, conn wordpress.DBParams, src string) error
}

// Archiver packs and unpacks the content directory.
type Archiver interface {
	Create(ctx context.Context, srcDir, dest string, excludes []string) error
	Extract(ctx context.Context, src, destDir string) error
}

// CoreInstaller fetches WordPress core files.
type CoreInstaller interface {
	Download(ctx context.Context, version, dest string) error
}

// UserScrubber writes the user tables with personal data replaced.
type UserScrubber interface {
	DumpUsers(ctx context.Context, inst *wordpress.Install, level int, dest string) error
}

// Prompter asks the operator questions. Confirm defaults to defaultYes on
// an empty answer; Ask returns def on an empty answer and repeats until
// validate accepts.
type Prompter interface {
	Confirm(question string, defaultYes bool) (bool, error)
	Ask(question, def string, validate func(string) error) (string, error)
}

// Tools are the external collaborators of the service.
type Tools struct {
	Bridge   Bridge
	DB       DatabaseTool
	Archiver Archiver
	Core     CoreInstaller
	Scrubber UserScrubber
	// Prompter may be nil, in which case every question that is not
	// answered by an option fails.
	Prompter Prompter
}

// Service runs the snapshot lifecycle against the local cache and the
// configured repositories.
type Service struct {
	repos  Resolver
	cache  *cache.Dir
	tools  Tools
	logger Logger
	clock  Clock
	ids    IDGenerator
}

// NewService creates a Service with the provided dependencies.
func NewService(repos Resolver, c *cache.Dir, tools Tools, logger Logger, clock Clock, ids IDGenerator) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &Service{
		repos:  repos,
		cache:  c,
		tools:  tools,
		logger: logger,
		clock:  clock,
		ids:    ids,
	}
}

// Cache returns the local cache the service writes to.
func (s *Service) Cache() *cache.Dir { return s.cache }

var projectSlug = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,99}$`)

func validateProject(project string) error {
	if !projectSlug.MatchString(project) {
		return errs.Validationf("invalid project slug %q: use letters, digits, dots, dashes and underscores", project)
	}
	return nil
}

func (s *Service) resolve(name string) (Repository, error) {
	repo, err := s.repos.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("resolving repository: %w", err)
	}
	return repo, nil
}

func (s *Service) remote(name string) (Repository, MetaStore, ObjectStore, error) {
	repo, err := s.resolve(name)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := repo.DB()
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := repo.S3()
	if err != nil {
		return nil, nil, nil, err
	}
	return repo, db, store, nil
}

func encodeMeta(meta *Meta) ([]byte, error) {
	data, err := json.MarshalIndent(meta, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encoding meta.json: %w", err)
	}
	return data, nil
}
