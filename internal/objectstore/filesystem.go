package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/progress"
	"wpsnapshots/internal/snapshots"
)

// FileSystemStore keeps objects as files named by key:
//
//	<root>/
//	  objects/
//	    <project>/<id>/data.sql.gz
//	    <project>/<id>/files.tar.gz
type FileSystemStore struct {
	root       string
	objectsDir string
}

// NewFileSystemStore returns a store rooted at root. Nothing is created
// until CreateBucket.
func NewFileSystemStore(root string) *FileSystemStore {
	return &FileSystemStore{root: root, objectsDir: filepath.Join(root, "objects")}
}

func (s *FileSystemStore) path(key string) string {
	return filepath.Join(s.objectsDir, filepath.FromSlash(key))
}

func (s *FileSystemStore) PutSnapshot(ctx context.Context, meta *snapshots.Meta, dir string, report snapshots.ProgressFunc) error {
	if err := s.Test(ctx); err != nil {
		return err
	}
	for _, name := range artifacts(meta) {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.Connectivity, errs.CodeCancelled, err, "upload cancelled")
		}
		if err := s.put(dir, name, Key(meta.Project, meta.ID, name), report); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSystemStore) put(dir, name, key string, report snapshots.ProgressFunc) error {
	f, size, err := openArtifact(dir, name)
	if err != nil {
		return err
	}
	defer f.Close()

	r := progress.NewReader(f, size, func(done, total int64) {
		if report != nil {
			report(name, done, total)
		}
	})
	return writeFile(s.path(key), r, size)
}

func (s *FileSystemStore) DownloadArtifact(ctx context.Context, meta *snapshots.Meta, name, dest string) error {
	key := Key(meta.Project, meta.ID, name)
	f, err := os.Open(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return errs.NotFoundf("object %s not found", key)
	}
	if err != nil {
		return fmt.Errorf("failed to open object: %w", err)
	}
	defer f.Close()
	return writeFile(dest, f, -1)
}

// DeleteSnapshot removes every known key and the snapshot's directory
// once it is empty.
func (s *FileSystemStore) DeleteSnapshot(ctx context.Context, id, project string) error {
	for _, key := range snapshotKeys(id, project) {
		if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
	}
	for _, dir := range []string{s.path(project + "/" + id), s.path(id)} {
		// Fails harmlessly when the directory is missing or not empty.
		os.Remove(dir)
	}
	return nil
}

func (s *FileSystemStore) CreateBucket(ctx context.Context) error {
	if info, err := os.Stat(s.objectsDir); err == nil && info.IsDir() {
		return errs.Conflictf(errs.CodeAlreadyExists, "%s already exists", s.objectsDir)
	}
	if err := os.MkdirAll(s.objectsDir, 0755); err != nil {
		return fmt.Errorf("failed to create objects directory: %w", err)
	}
	return nil
}

// Test verifies that the objects directory exists and is writable.
func (s *FileSystemStore) Test(ctx context.Context) error {
	info, err := os.Stat(s.objectsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return errs.New(errs.NotFound, errs.CodeBucketNotFound, "%s does not exist; run create-repository", s.objectsDir)
	}
	if err != nil {
		return errs.Wrap(errs.Connectivity, errs.CodeTransport, err, "repository root not accessible")
	}
	if !info.IsDir() {
		return errs.Validationf("%s is not a directory", s.objectsDir)
	}
	probe, err := os.CreateTemp(s.objectsDir, ".probe-*")
	if err != nil {
		return errs.Wrap(errs.Connectivity, errs.CodeAuth, err, "repository root is not writable")
	}
	probe.Close()
	return os.Remove(probe.Name())
}
