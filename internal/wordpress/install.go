// Package wordpress reads and modifies a WordPress install without running
// PHP: constants come from wp-config.php, everything else from the database.
package wordpress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/sqldb"
)

var versionRe = regexp.MustCompile(`\$wp_version\s*=\s*['"]([^'"]+)['"]`)

// Install is a bootstrapped WordPress install with a live database handle.
type Install struct {
	Path        string
	ConfigPath  string
	ContentDir  string
	Version     string
	TablePrefix string
	Config      *ConfigFile
	Params      DBParams

	DB      *sql.DB
	Dialect sqldb.Dialect
}

// Close releases the database handle.
func (i *Install) Close() error {
	if i.DB == nil {
		return nil
	}
	return i.DB.Close()
}

func (i *Install) Multisite() bool           { return i.Config.Bool("MULTISITE") }
func (i *Install) SubdomainInstall() bool    { return i.Config.Bool("SUBDOMAIN_INSTALL") }
func (i *Install) DomainCurrentSite() string { return i.Config.String("DOMAIN_CURRENT_SITE") }
func (i *Install) PathCurrentSite() string   { return i.Config.String("PATH_CURRENT_SITE") }

// SiteIDCurrentSite returns SITE_ID_CURRENT_SITE, defaulting to 1.
func (i *Install) SiteIDCurrentSite() int64 {
	if n := i.Config.Int("SITE_ID_CURRENT_SITE"); n > 0 {
		return n
	}
	return 1
}

// BlogIDCurrentSite returns BLOG_ID_CURRENT_SITE, defaulting to 1.
func (i *Install) BlogIDCurrentSite() int64 {
	if n := i.Config.Int("BLOG_ID_CURRENT_SITE"); n > 0 {
		return n
	}
	return 1
}

// IsInstalled reports whether path holds WordPress core files.
func IsInstalled(path string) bool {
	for _, name := range []string{"wp-settings.php", filepath.Join("wp-includes", "version.php")} {
		if info, err := os.Stat(filepath.Join(path, name)); err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// FindConfig returns the wp-config.php for an install at path. Like
// WordPress, it also looks one directory up.
func FindConfig(path string) (string, bool) {
	for _, candidate := range []string{
		filepath.Join(path, ConfigFileName),
		filepath.Join(filepath.Dir(filepath.Clean(path)), ConfigFileName),
	} {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}

// ReadVersion returns $wp_version from wp-includes/version.php.
func ReadVersion(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(path, "wp-includes", "version.php"))
	if err != nil {
		return "", fmt.Errorf("reading version.php: %w", err)
	}
	m := versionRe.FindSubmatch(data)
	if m == nil {
		return "", fmt.Errorf("no $wp_version in version.php")
	}
	return string(m[1]), nil
}

// OpenFunc opens the database described by p.
type OpenFunc func(p DBParams) (*sql.DB, sqldb.Dialect, error)

// OpenMySQL opens a MySQL connection pool.
func OpenMySQL(p DBParams) (*sql.DB, sqldb.Dialect, error) {
	db, err := sql.Open("mysql", p.DSN())
	if err != nil {
		return nil, nil, err
	}
	return db, sqldb.MySQL{}, nil
}

// Loader bootstraps installs.
type Loader struct {
	open OpenFunc
}

// NewLoader returns a Loader connecting through open, or MySQL when nil.
func NewLoader(open OpenFunc) *Loader {
	if open == nil {
		open = OpenMySQL
	}
	return &Loader{open: open}
}

// Load reads the install at path, applies the DB_* overrides and connects
// to its database.
func (l *Loader) Load(ctx context.Context, path string, overrides map[string]string) (*Install, error) {
	if !IsInstalled(path) {
		return nil, errs.New(errs.Validation, errs.CodeNotInstalled, "%s is not a WordPress install", path)
	}

	configPath, ok := FindConfig(path)
	if !ok {
		return nil, errs.Validationf("no %s found for %s", ConfigFileName, path)
	}
	src, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}
	cfg := ParseConfig(src)

	version, err := ReadVersion(path)
	if err != nil {
		return nil, err
	}

	params := cfg.DBParams()
	for name, value := range overrides {
		switch name {
		case "DB_HOST":
			params.Host = value
		case "DB_NAME":
			params.Name = value
		case "DB_USER":
			params.User = value
		case "DB_PASSWORD":
			params.Password = value
		case "DB_CHARSET":
			params.Charset = value
		}
	}

	contentDir := filepath.Join(path, "wp-content")
	if dir := cfg.String("WP_CONTENT_DIR"); dir != "" && filepath.IsAbs(dir) {
		contentDir = dir
	}
	if info, err := os.Stat(contentDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checking content directory: %w", err)
	} else if err == nil && !info.IsDir() {
		return nil, errs.Validationf("content directory %s is not a directory", contentDir)
	}

	db, dialect, err := l.open(params)
	if err != nil {
		return nil, errs.Wrap(errs.Connectivity, errs.CodeTransport, err, "connecting to database %s", params.Name)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.Connectivity, errs.CodeTransport, err, "connecting to database %s", params.Name)
	}

	return &Install{
		Path:        path,
		ConfigPath:  configPath,
		ContentDir:  contentDir,
		Version:     version,
		TablePrefix: cfg.TablePrefix(),
		Config:      cfg,
		Params:      params,
		DB:          db,
		Dialect:     dialect,
	}, nil
}
