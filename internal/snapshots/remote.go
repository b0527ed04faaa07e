package snapshots

import (
	"context"
	"sort"
	"strings"

	"wpsnapshots/internal/errs"
)

// Search queries the repository's metadata index. Results are sorted by
// insert time, newest first.
func (s *Service) Search(ctx context.Context, repository, query string) ([]*Snapshot, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.Validationf("search query is empty; use * to list every snapshot")
	}
	repo, err := s.resolve(repository)
	if err != nil {
		return nil, err
	}
	db, err := repo.DB()
	if err != nil {
		return nil, err
	}

	metas, err := db.Search(ctx, query)
	if err != nil {
		return nil, errs.WithOp("search", err)
	}
	out := make([]*Snapshot, 0, len(metas))
	for _, m := range metas {
		if m.Repository == "" {
			m.Repository = repo.Name()
		}
		out = append(out, newRemoteSnapshot(m))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Meta.Time > out[j].Meta.Time })
	return out, nil
}

// Delete removes a snapshot's objects and then its metadata record. The
// local cache is left alone.
func (s *Service) Delete(ctx context.Context, id, repository string) error {
	repo, db, store, err := s.remote(repository)
	if err != nil {
		return err
	}

	meta, err := db.Get(ctx, id)
	if err != nil {
		return errs.WithOp("delete", err)
	}

	if err := store.DeleteSnapshot(ctx, id, meta.Project); err != nil {
		return errs.WithOp("delete", err)
	}
	if err := db.Delete(ctx, id); err != nil {
		return errs.Wrap(errs.PartialFailure, "", err,
			"objects of snapshot %s were deleted but its metadata record was not", id)
	}
	s.logger.Info("snapshot deleted", "id", id, "repository", repo.Name())
	return nil
}

// RepositoryResult reports what CreateRepository provisioned.
type RepositoryResult struct {
	BucketExisted bool
	TableExisted  bool
}

// CreateRepository provisions the bucket and the metadata index. Either
// one already existing is not an error.
func (s *Service) CreateRepository(ctx context.Context, repository string) (*RepositoryResult, error) {
	_, db, store, err := s.remote(repository)
	if err != nil {
		return nil, err
	}

	res := &RepositoryResult{}
	if err := store.CreateBucket(ctx); err != nil {
		if errs.KindOf(err) != errs.Conflict {
			return nil, errs.WithOp("create bucket", err)
		}
		res.BucketExisted = true
	}
	if err := db.CreateTables(ctx); err != nil {
		if errs.KindOf(err) != errs.Conflict {
			return nil, errs.WithOp("create table", err)
		}
		res.TableExisted = true
	}
	return res, nil
}

// TestRepository probes the repository's object store.
func (s *Service) TestRepository(ctx context.Context, repository string) error {
	repo, err := s.resolve(repository)
	if err != nil {
		return err
	}
	store, err := repo.S3()
	if err != nil {
		return err
	}
	return errs.WithOp("test", store.Test(ctx))
}
