// Package app wires configuration, logging, repositories and the
// snapshot service for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"wpsnapshots/internal/archive"
	"wpsnapshots/internal/cache"
	"wpsnapshots/internal/config"
	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/mysqlcli"
	"wpsnapshots/internal/prompt"
	"wpsnapshots/internal/repository"
	"wpsnapshots/internal/scrub"
	"wpsnapshots/internal/snapshots"
	"wpsnapshots/internal/wordpress"
)

// Options tune NewApp.
type Options struct {
	Verbose bool
	// Interactive lets the service ask questions on In. Without it every
	// question no flag answers falls back to its default or fails.
	Interactive bool

	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Client binaries, "mysqldump" and "mysql" on PATH when empty.
	MySQLDump string
	MySQL     string

	// Open builds repository stores; repository.OpenStores when nil.
	Open repository.Opener
	// Tools replaces the default collaborators field by field.
	Tools snapshots.Tools
	Clock snapshots.Clock
	IDs   snapshots.IDGenerator
}

// App is the application layer between the CLI and the snapshot service.
// It owns the log file and the repository stores until Close.
type App struct {
	paths       Paths
	cfg         *config.Config
	open        repository.Opener
	repos       *repository.Manager
	service     *snapshots.Service
	prompt      *prompt.Prompter
	interactive bool
	logger      *slog.Logger
	logFile     *os.File
}

// NewApp creates a fully wired App rooted at paths. A missing config file
// yields an empty configuration with only the local repository.
// The caller must call Close when done.
func NewApp(paths Paths, opts Options) (*App, error) {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Open == nil {
		opts.Open = repository.OpenStores
	}

	cfg, err := loadConfig(paths.ConfigPath)
	if err != nil {
		return nil, err
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(paths.LogDir, opID, opts.Err, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	p := prompt.New(opts.In, opts.Out)
	runner := mysqlcli.New(opts.MySQLDump, opts.MySQL)
	tools := snapshots.Tools{
		Bridge:   wordpress.NewLoader(nil),
		DB:       runner,
		Archiver: archive.Tar{},
		Core:     wordpress.NewCoreDownloader("", 0),
		Scrubber: scrub.New(runner, adapter),
	}
	if opts.Interactive {
		tools.Prompter = p
	}
	mergeTools(&tools, opts.Tools)

	repos := repository.NewManager(cfg, opts.Open)
	svc := snapshots.NewService(repos, cache.New(paths.Root), tools, adapter, opts.Clock, opts.IDs)

	return &App{
		paths:       paths,
		cfg:         cfg,
		open:        opts.Open,
		repos:       repos,
		service:     svc,
		prompt:      p,
		interactive: opts.Interactive,
		logger:      logger,
		logFile:     logFile,
	}, nil
}

func mergeTools(dst *snapshots.Tools, src snapshots.Tools) {
	if src.Bridge != nil {
		dst.Bridge = src.Bridge
	}
	if src.DB != nil {
		dst.DB = src.DB
	}
	if src.Archiver != nil {
		dst.Archiver = src.Archiver
	}
	if src.Core != nil {
		dst.Core = src.Core
	}
	if src.Scrubber != nil {
		dst.Scrubber = src.Scrubber
	}
	if src.Prompter != nil {
		dst.Prompter = src.Prompter
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.NewConfig("", ""), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "", err, "loading configuration")
	}
	return cfg, nil
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Prompter returns the terminal prompter.
func (a *App) Prompter() *prompt.Prompter { return a.prompt }

// Interactive reports whether questions may be asked.
func (a *App) Interactive() bool { return a.interactive }

// Logger returns the command logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Service returns the snapshot service.
func (a *App) Service() *snapshots.Service { return a.service }

// Configure probes the repository described by rc and, when it is
// reachable, saves it together with the author identity. Empty name and
// email keep the stored values.
func (a *App) Configure(ctx context.Context, rc config.RepositoryConfig, name, email string) error {
	if err := rc.Validate(); err != nil {
		return errs.Validationf("%v", err)
	}

	db, store, err := a.open(ctx, rc)
	if err != nil {
		return errs.Wrap(errs.Connectivity, errs.CodeTransport, err, "opening repository %s", rc.Repository)
	}
	if c, ok := db.(io.Closer); ok {
		defer c.Close()
	}
	if err := store.Test(ctx); err != nil {
		a.logger.Debug("repository test failed", "repository", rc.Repository, "error", err)
		return describeTestFailure(rc.Repository, err)
	}

	if name != "" {
		a.cfg.Name = name
	}
	if email != "" {
		a.cfg.Email = email
	}
	a.cfg.SetRepository(rc)
	if err := config.Save(a.paths.ConfigPath, a.cfg); err != nil {
		return err
	}
	a.logger.Info("repository configured", "repository", rc.Repository, "backend", backendName(rc))
	return nil
}

func describeTestFailure(repo string, err error) error {
	switch {
	case errs.CodeOf(err) == errs.CodeAuth:
		return errs.Wrap(errs.Connectivity, errs.CodeAuth, err, "repository %s rejected the credentials", repo)
	case errs.CodeOf(err) == errs.CodeBucketNotFound:
		return errs.Wrap(errs.NotFound, errs.CodeBucketNotFound, err,
			"repository %s has no bucket; run create-repository --repository %s", repo, repo)
	default:
		return errs.Wrap(errs.Connectivity, errs.CodeOf(err), err, "repository %s is not reachable", repo)
	}
}

func backendName(rc config.RepositoryConfig) string {
	if rc.Backend == "" {
		return config.BackendAWS
	}
	return rc.Backend
}

// CreateRepository provisions the bucket and index of a configured
// repository.
func (a *App) CreateRepository(ctx context.Context, repository string) (*snapshots.RepositoryResult, error) {
	return a.service.CreateRepository(ctx, repository)
}

// Create resolves rawPath and exports the install found there.
func (a *App) Create(ctx context.Context, rawPath string, opts snapshots.CreateOptions) (*snapshots.Snapshot, error) {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	opts.Path = p
	return a.service.Create(ctx, opts)
}

// Push uploads the cached snapshot id.
func (a *App) Push(ctx context.Context, id, repository string, progress snapshots.ProgressFunc) (*snapshots.Snapshot, error) {
	snap, err := a.service.GetLocal(id, repository)
	if err != nil {
		return nil, err
	}
	if err := a.service.Push(ctx, snap, progress); err != nil {
		return snap, err
	}
	return snap, nil
}

// CreateAndPush exports the install at rawPath and pushes the result.
// The snapshot stays cached when the push fails.
func (a *App) CreateAndPush(ctx context.Context, rawPath string, opts snapshots.CreateOptions, progress snapshots.ProgressFunc) (*snapshots.Snapshot, error) {
	snap, err := a.Create(ctx, rawPath, opts)
	if err != nil {
		return nil, err
	}
	if err := a.service.Push(ctx, snap, progress); err != nil {
		return snap, err
	}
	return snap, nil
}

// Pull resolves rawPath and applies a snapshot to it.
func (a *App) Pull(ctx context.Context, rawPath string, opts snapshots.PullOptions) (*snapshots.PullResult, error) {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	opts.Path = p
	return a.service.Pull(ctx, opts)
}

// Download fetches a snapshot into the cache.
func (a *App) Download(ctx context.Context, id string, opts snapshots.DownloadOptions) (*snapshots.Snapshot, error) {
	return a.service.Download(ctx, id, opts)
}

// Search lists the snapshots of a repository matching query.
func (a *App) Search(ctx context.Context, repository, query string) ([]*snapshots.Snapshot, error) {
	return a.service.Search(ctx, repository, query)
}

// Delete removes a snapshot from a repository.
func (a *App) Delete(ctx context.Context, id, repository string) error {
	return a.service.Delete(ctx, id, repository)
}

// ListLocal lists the cached snapshots.
func (a *App) ListLocal() ([]*snapshots.Snapshot, error) {
	return a.service.ListLocal()
}

// DeleteLocal removes a cached snapshot.
func (a *App) DeleteLocal(id string) error {
	return a.service.DeleteLocal(id)
}

// Close releases the repository stores and the log file.
func (a *App) Close() error {
	err := a.repos.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}
