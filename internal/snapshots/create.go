package snapshots

import (
	"context"
	"fmt"

	"wpsnapshots/internal/archive"
	"wpsnapshots/internal/cache"
	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/scrub"
	"wpsnapshots/internal/wordpress"
)

// usersFile holds the scrubbed user tables until they are appended to the
// main dump.
const usersFile = "data-users.sql"

// CreateOptions configures Create.
type CreateOptions struct {
	Path        string
	Repository  string
	Project     string
	Description string
	// Overrides replace DB_* constants of wp-config.php.
	Overrides map[string]string

	IncludeDB    bool
	IncludeFiles bool
	// Excludes are paths relative to the content directory.
	Excludes       []string
	ExcludeUploads bool
	ScrubLevel     int
}

// Create exports the install at opts.Path into a new cached snapshot.
// Nothing is left in the cache when it fails.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (_ *Snapshot, err error) {
	if !opts.IncludeDB && !opts.IncludeFiles {
		return nil, errs.Validationf("a snapshot must contain files, the database or both")
	}
	if err := validateProject(opts.Project); err != nil {
		return nil, err
	}
	if opts.ScrubLevel < scrub.None || opts.ScrubLevel > scrub.Full {
		return nil, errs.Validationf("scrub level must be 0, 1 or 2")
	}
	if !wordpress.IsInstalled(opts.Path) {
		return nil, errs.New(errs.Validation, errs.CodeNotInstalled,
			"%s is not a WordPress install; run create from the root of one", opts.Path)
	}

	repo, err := s.resolve(opts.Repository)
	if err != nil {
		return nil, err
	}

	id := s.ids.New()
	if err := s.cache.Prepare(id, false); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rmErr := s.cache.Remove(id); rmErr != nil && !errs.Is(rmErr, errs.NotFound) {
				s.logger.Warn("failed to clean up snapshot directory", "id", id, "error", rmErr)
			}
		}
	}()

	inst, err := s.tools.Bridge.Load(ctx, opts.Path, opts.Overrides)
	if err != nil {
		return nil, err
	}
	defer inst.Close()

	meta, err := s.describe(ctx, inst)
	if err != nil {
		return nil, err
	}
	meta.ID = id
	meta.Project = opts.Project
	meta.Description = opts.Description
	meta.Author = s.repos.Author()
	meta.Repository = repo.Name()

	if opts.IncludeDB {
		s.logger.Info("exporting database", "id", id)
		if err := s.exportDB(ctx, inst, id, opts.ScrubLevel); err != nil {
			return nil, err
		}
		meta.ContainsDB = true
		meta.DBSize = s.cache.Size(id, cache.DBFile)
	}

	if opts.IncludeFiles {
		excludes := append([]string(nil), opts.Excludes...)
		if opts.ExcludeUploads {
			excludes = append(excludes, "uploads")
		}
		s.logger.Info("archiving files", "id", id, "dir", inst.ContentDir)
		if err := s.tools.Archiver.Create(ctx, inst.ContentDir, s.cache.Path(id, cache.FilesFile), excludes); err != nil {
			return nil, fmt.Errorf("archiving files: %w", err)
		}
		meta.ContainsFiles = true
		meta.FilesSize = s.cache.Size(id, cache.FilesFile)
	}

	data, err := encodeMeta(meta)
	if err != nil {
		return nil, err
	}
	if err := s.cache.WriteMeta(id, data); err != nil {
		return nil, err
	}

	s.logger.Info("snapshot created", "id", id, "project", meta.Project)
	return newLocalSnapshot(meta), nil
}

// describe reads the topology of inst.
func (s *Service) describe(ctx context.Context, inst *wordpress.Install) (*Meta, error) {
	sites, err := inst.Sites(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sites: %w", err)
	}

	meta := &Meta{
		Multisite:   inst.Multisite(),
		TablePrefix: inst.TablePrefix,
		WPVersion:   inst.Version,
	}
	if meta.Multisite {
		meta.SubdomainInstall = inst.SubdomainInstall()
		meta.DomainCurrentSite = inst.DomainCurrentSite()
		meta.PathCurrentSite = inst.PathCurrentSite()
		meta.SiteIDCurrentSite = inst.SiteIDCurrentSite()
		meta.BlogIDCurrentSite = inst.BlogIDCurrentSite()
	}
	for _, ws := range sites {
		meta.Sites = append(meta.Sites, Site(ws))
	}
	return meta, nil
}

// exportDB dumps every prefixed table into the compressed data.sql.gz.
func (s *Service) exportDB(ctx context.Context, inst *wordpress.Install, id string, level int) error {
	tables, err := inst.Tables(ctx)
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}
	tables = without(tables, scrub.ExcludedTables(inst.TablePrefix, level))
	if len(tables) == 0 {
		return errs.Validationf("no tables with prefix %q found", inst.TablePrefix)
	}

	raw := s.cache.Path(id, cache.RawDBFile)
	defer s.cache.RemoveFile(id, cache.RawDBFile)
	if err := s.tools.DB.Dump(ctx, inst.Params, tables, raw); err != nil {
		return fmt.Errorf("exporting database: %w", err)
	}

	if level > scrub.None {
		s.logger.Info("scrubbing user data", "level", level)
		users := s.cache.Path(id, usersFile)
		defer s.cache.RemoveFile(id, usersFile)
		if err := s.tools.Scrubber.DumpUsers(ctx, inst, level, users); err != nil {
			return fmt.Errorf("scrubbing users: %w", err)
		}
		if err := archive.AppendFile(raw, users); err != nil {
			return err
		}
	}

	if err := archive.CompressFile(raw, s.cache.Path(id, cache.DBFile)); err != nil {
		return fmt.Errorf("compressing database: %w", err)
	}
	return nil
}

func without(list, drop []string) []string {
	if len(drop) == 0 {
		return list
	}
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !skip[v] {
			out = append(out, v)
		}
	}
	return out
}
