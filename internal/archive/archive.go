// Package archive writes and reads the snapshot artifacts: gzip-compressed
// tarballs of the content directory and gzip-compressed SQL dumps.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"wpsnapshots/internal/fs"
)

// Tar creates and extracts tar.gz archives in-process.
type Tar struct{}

// Create archives the contents of srcDir into dest. Member names are
// relative to srcDir with a "./" prefix. Paths matching excludes are left
// out.
func (Tar) Create(ctx context.Context, srcDir, dest string, excludes []string) (err error) {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing archive: %w", cerr)
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	walkErr := fs.Walk(srcDir, fs.NewExcludeMatcher(excludes), func(p, rel string, d iofs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return addEntry(tw, p, "./"+rel, d)
	})
	if walkErr != nil {
		return fmt.Errorf("archiving %s: %w", srcDir, walkErr)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finishing tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finishing gzip stream: %w", err)
	}
	return nil
}

func addEntry(tw *tar.Writer, path, name string, d iofs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Extract unpacks the tar.gz at src into destDir.
func (Tar) Extract(ctx context.Context, src, destDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()
	return ExtractReader(ctx, f, destDir, "")
}

// ExtractReader unpacks a tar.gz stream into destDir. Member names have
// stripPrefix removed first; members outside it are skipped. Members that
// would land outside destDir are rejected.
func ExtractReader(ctx context.Context, r io.Reader, destDir, stripPrefix string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", destDir, err)
	}
	root, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if stripPrefix != "" {
			if !strings.HasPrefix(name, stripPrefix) {
				continue
			}
			name = strings.TrimPrefix(name, stripPrefix)
		}
		name = strings.TrimSuffix(name, "/")
		if name == "" || name == "." {
			continue
		}

		target := filepath.Join(root, filepath.FromSlash(name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive member %q escapes %s", hdr.Name, destDir)
		}

		if err := extractEntry(tr, hdr, root, target); err != nil {
			return fmt.Errorf("extracting %s: %w", name, err)
		}
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, root, target string) error {
	mode := os.FileMode(hdr.Mode).Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, mode|0700)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode|0600)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		os.Remove(target)
		return os.Symlink(hdr.Linkname, target)
	case tar.TypeLink:
		source := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(hdr.Linkname, "./")))
		if !strings.HasPrefix(source, root+string(os.PathSeparator)) {
			return fmt.Errorf("hard link target %q escapes the archive root", hdr.Linkname)
		}
		os.Remove(target)
		return os.Link(source, target)
	default:
		// Devices, fifos and the like are not restored.
		return nil
	}
}
