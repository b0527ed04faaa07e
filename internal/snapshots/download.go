package snapshots

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"wpsnapshots/internal/cache"
	"wpsnapshots/internal/errs"
)

// DownloadOptions configures Download.
type DownloadOptions struct {
	Repository string
	SkipDB     bool
	SkipFiles  bool
	// Force discards an existing cached copy.
	Force bool
}

// Download fetches a snapshot's record and artifacts into the cache. The
// database and files artifacts are transferred concurrently; meta.json is
// only written once every requested artifact is in place.
func (s *Service) Download(ctx context.Context, id string, opts DownloadOptions) (*Snapshot, error) {
	if opts.SkipDB && opts.SkipFiles {
		return nil, errs.Validationf("nothing to download: both files and database are skipped")
	}

	repo, db, store, err := s.remote(opts.Repository)
	if err != nil {
		return nil, err
	}

	if !opts.Force && s.cache.Has(id, cache.MetaFile) {
		return nil, errs.Conflictf(errs.CodeAlreadyExists, "snapshot %s is already in the local cache", id)
	}

	meta, err := db.Get(ctx, id)
	if err != nil {
		return nil, errs.WithOp("download", err)
	}
	if meta.Project == "" {
		return nil, errs.Validationf("snapshot %s has no project", id)
	}
	if meta.Repository == "" {
		s.logger.Warn("legacy snapshot without repository", "id", id, "repository", repo.Name())
		meta.Repository = repo.Name()
	}
	meta.ID = id

	if err := s.cache.Prepare(id, opts.Force); err != nil {
		return nil, err
	}

	local := meta.Clone()
	var names []string
	if meta.ContainsDB && !opts.SkipDB {
		names = append(names, cache.DBFile)
	} else {
		local.ContainsDB = false
	}
	if meta.ContainsFiles && !opts.SkipFiles {
		names = append(names, cache.FilesFile)
	} else {
		local.ContainsFiles = false
	}
	if len(names) == 0 {
		return nil, errs.Validationf("snapshot %s has none of the requested artifacts", id)
	}

	s.logger.Info("downloading snapshot", "id", id, "repository", repo.Name(), "artifacts", strings.Join(names, ","))
	results := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = store.DownloadArtifact(ctx, meta, name, s.cache.Path(id, name))
			return results[i]
		})
	}
	g.Wait()

	if err := downloadOutcome(id, names, results); err != nil {
		for i, name := range names {
			if results[i] != nil {
				s.cache.RemoveFile(id, name)
			}
		}
		return nil, err
	}

	data, err := encodeMeta(local)
	if err != nil {
		return nil, err
	}
	if err := s.cache.WriteMeta(id, data); err != nil {
		return nil, err
	}
	return newRemoteSnapshot(local), nil
}

// downloadOutcome reports a PartialFailure when some but not all artifacts
// arrived, naming each failed one.
func downloadOutcome(id string, names []string, results []error) error {
	var failed []string
	var first error
	for i, err := range results {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		failed = append(failed, fmt.Sprintf("%s: %v", names[i], err))
	}
	switch {
	case first == nil:
		return nil
	case len(failed) == len(names):
		return errs.WithOp("download", first)
	default:
		return errs.Wrap(errs.PartialFailure, errs.CodeMissingArtifact, first,
			"snapshot %s downloaded partially (%s)", id, strings.Join(failed, "; "))
	}
}
