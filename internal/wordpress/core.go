package wordpress

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"wpsnapshots/internal/archive"
	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/fs"
)

// DefaultCoreURL is the download location of release tarballs; %s is the
// version.
const DefaultCoreURL = "https://wordpress.org/wordpress-%s.tar.gz"

// DefaultDownloadTimeout bounds a core download.
const DefaultDownloadTimeout = 10 * time.Minute

// CoreDownloader fetches WordPress release tarballs.
type CoreDownloader struct {
	client *http.Client
	url    string
}

// NewCoreDownloader returns a downloader for urlFormat (DefaultCoreURL when
// empty) with the given timeout (DefaultDownloadTimeout when zero).
func NewCoreDownloader(urlFormat string, timeout time.Duration) *CoreDownloader {
	if urlFormat == "" {
		urlFormat = DefaultCoreURL
	}
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	return &CoreDownloader{client: &http.Client{Timeout: timeout}, url: urlFormat}
}

// Download extracts the given release into dest, dropping the tarball's
// "wordpress/" directory.
func (c *CoreDownloader) Download(ctx context.Context, version, dest string) error {
	url := fmt.Sprintf(c.url, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.Connectivity, errs.CodeTransport, err, "downloading WordPress %s", version)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errs.NotFoundf("WordPress %s is not available at %s", version, url)
	}
	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.Connectivity, errs.CodeTransport, "downloading WordPress %s: %s", version, resp.Status)
	}

	if err := archive.ExtractReader(ctx, resp.Body, dest, "wordpress/"); err != nil {
		return fmt.Errorf("extracting WordPress %s: %w", version, err)
	}
	return nil
}

// RemoveCore deletes the core files of the install at path, keeping
// wp-config.php and the wp-content directory.
func RemoveCore(path string) error {
	return fs.RemoveExcept(path, ConfigFileName, "wp-content")
}
