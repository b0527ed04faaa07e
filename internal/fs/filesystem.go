// Package fs walks and clears directory trees for the archive and pull
// steps, applying exclude patterns.
package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WalkFunc receives each non-excluded entry below the root. rel uses
// forward slashes and has no "./" prefix.
type WalkFunc func(path, rel string, d fs.DirEntry) error

// Walk visits every entry below root in lexical order, skipping excluded
// paths (and, for directories, their contents) as well as devices, named
// pipes and sockets.
func Walk(root string, excludes *ExcludeMatcher, fn WalkFunc) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", root)
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("calculating relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		if excludes.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		mode := d.Type()
		if mode&(os.ModeDevice|os.ModeNamedPipe|os.ModeSocket|os.ModeCharDevice) != 0 {
			return nil
		}
		return fn(p, rel, d)
	})
}

// Size returns the total size of the regular files below root.
func Size(root string) (int64, error) {
	var total int64
	err := Walk(root, nil, func(p, rel string, d fs.DirEntry) error {
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// ClearDir removes everything inside dir, keeping dir itself. A missing
// dir is created.
func ClearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return os.MkdirAll(dir, 0755)
		}
		return fmt.Errorf("reading directory: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return nil
}

// RemoveExcept removes everything inside dir except the named entries.
func RemoveExcept(dir string, keep ...string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	for _, e := range entries {
		if kept[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return nil
}
