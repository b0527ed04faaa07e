// Package cache manages the local snapshot cache:
//
//	<root>/
//	  <id>/
//	    meta.json
//	    data.sql.gz
//	    files.tar.gz
//
// Two operations on the same ID at the same time are not coordinated.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"wpsnapshots/internal/errs"
)

// Artifact file names.
const (
	MetaFile  = "meta.json"
	DBFile    = "data.sql.gz"
	FilesFile = "files.tar.gz"
	// RawDBFile is the uncompressed dump; it only exists while a create or
	// pull is running.
	RawDBFile = "data.sql"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Dir is a cache rooted at a directory.
type Dir struct {
	root string
}

// New returns a cache rooted at root. The directory is created lazily.
func New(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the cache root.
func (d *Dir) Root() string { return d.root }

// Path returns the path of the snapshot directory, or of a file inside it.
func (d *Dir) Path(id string, name ...string) string {
	return filepath.Join(append([]string{d.root, id}, name...)...)
}

func checkID(id string) error {
	if !validID.MatchString(id) {
		return errs.Validationf("invalid snapshot id %q", id)
	}
	return nil
}

// Prepare creates the snapshot directory. With reset, any existing content
// is removed first.
func (d *Dir) Prepare(id string, reset bool) error {
	if err := checkID(id); err != nil {
		return err
	}
	dir := d.Path(id)
	if reset {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("resetting cache directory: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errs.Wrap(errs.Validation, "", err, "cache directory %s is not writable", dir)
	}

	probe, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return errs.Wrap(errs.Validation, "", err, "cache directory %s is not writable", dir)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// WriteMeta writes meta.json for id. It fails if the file already exists.
func (d *Dir) WriteMeta(id string, data []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	path := d.Path(id, MetaFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return errs.Conflictf(errs.CodeAlreadyExists, "meta.json already exists for snapshot %s", id)
		}
		return fmt.Errorf("creating meta.json: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing meta.json: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing meta.json: %w", err)
	}
	return nil
}

// ReadMeta returns the raw meta.json for id.
func (d *Dir) ReadMeta(id string) ([]byte, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.Path(id, MetaFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NotFoundf("snapshot %s is not in the local cache", id)
		}
		return nil, fmt.Errorf("reading meta.json: %w", err)
	}
	return data, nil
}

// Has reports whether the named artifact exists for id.
func (d *Dir) Has(id, name string) bool {
	info, err := os.Stat(d.Path(id, name))
	return err == nil && info.Mode().IsRegular()
}

// Size returns the size of the named artifact, or 0 if it is absent.
func (d *Dir) Size(id, name string) int64 {
	info, err := os.Stat(d.Path(id, name))
	if err != nil {
		return 0
	}
	return info.Size()
}

// Remove deletes every artifact for id together with its directory.
func (d *Dir) Remove(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	dir := d.Path(id)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return errs.NotFoundf("snapshot %s is not in the local cache", id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing cache directory: %w", err)
	}
	return nil
}

// RemoveFile deletes one intermediate file, ignoring absence.
func (d *Dir) RemoveFile(id, name string) error {
	if err := os.Remove(d.Path(id, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}

// List returns the IDs of cached snapshots that have a meta.json, sorted.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache root: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() || !validID.MatchString(e.Name()) {
			continue
		}
		if d.Has(e.Name(), MetaFile) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
