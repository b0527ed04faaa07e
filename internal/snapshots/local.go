package snapshots

import (
	"context"
	"encoding/json"
	"sort"

	"wpsnapshots/internal/cache"
	"wpsnapshots/internal/errs"
)

// GetLocal reads a snapshot from the cache only. A cached snapshot that
// belongs to another repository is reported as not found.
func (s *Service) GetLocal(id, repository string) (*Snapshot, error) {
	repo, err := s.resolve(repository)
	if err != nil {
		return nil, err
	}
	meta, err := s.readLocal(id)
	if err != nil {
		return nil, err
	}
	if meta.Repository != repo.Name() {
		return nil, errs.NotFoundf("snapshot %s is not cached for repository %s", id, repo.Name())
	}
	return newLocalSnapshot(meta), nil
}

// Get returns the cached snapshot when there is one for this repository,
// and the remote record otherwise. The remote record is not downloaded.
func (s *Service) Get(ctx context.Context, id, repository string) (*Snapshot, error) {
	snap, err := s.GetLocal(id, repository)
	if err == nil {
		return snap, nil
	}
	if !errs.Is(err, errs.NotFound) {
		return nil, err
	}

	repo, err := s.resolve(repository)
	if err != nil {
		return nil, err
	}
	db, err := repo.DB()
	if err != nil {
		return nil, err
	}
	meta, err := db.Get(ctx, id)
	if err != nil {
		return nil, errs.WithOp("get", err)
	}
	if meta.Repository == "" {
		meta.Repository = repo.Name()
	}
	return newRemoteSnapshot(meta), nil
}

// readLocal decodes meta.json, filling fields older snapshots lack.
func (s *Service) readLocal(id string) (*Meta, error) {
	data, err := s.cache.ReadMeta(id)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(errs.Validation, "", err, "snapshot %s has an unreadable meta.json", id)
	}
	meta, err := MetaFromMap(raw)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "", err, "snapshot %s has an invalid meta.json", id)
	}
	meta.ID = id

	if _, ok := raw["contains_files"]; !ok {
		meta.ContainsFiles = s.cache.Has(id, cache.FilesFile)
	}
	if _, ok := raw["contains_db"]; !ok {
		meta.ContainsDB = s.cache.Has(id, cache.DBFile)
	}
	if meta.Repository == "" {
		def, err := s.resolve("")
		if err != nil {
			return nil, err
		}
		s.logger.Warn("legacy snapshot without repository, assuming default", "id", id, "repository", def.Name())
		meta.Repository = def.Name()
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return meta, nil
}

// ListLocal returns every readable cached snapshot, newest first. Entries
// that cannot be decoded are logged and skipped.
func (s *Service) ListLocal() ([]*Snapshot, error) {
	ids, err := s.cache.List()
	if err != nil {
		return nil, err
	}
	var out []*Snapshot
	for _, id := range ids {
		meta, err := s.readLocal(id)
		if err != nil {
			s.logger.Warn("skipping unreadable cached snapshot", "id", id, "error", err)
			continue
		}
		out = append(out, newLocalSnapshot(meta))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Meta.Time > out[j].Meta.Time })
	return out, nil
}

// DeleteLocal removes a cached snapshot and all of its artifacts.
func (s *Service) DeleteLocal(id string) error {
	if err := s.cache.Remove(id); err != nil {
		return err
	}
	s.logger.Info("local snapshot deleted", "id", id)
	return nil
}

// artifactPath returns the cached artifact name, failing when meta claims
// it but the file is missing.
func (s *Service) artifactPath(id, name string) (string, error) {
	if !s.cache.Has(id, name) {
		return "", errs.New(errs.Validation, errs.CodeMissingArtifact, "snapshot %s is missing %s in the local cache", id, name)
	}
	return s.cache.Path(id, name), nil
}
