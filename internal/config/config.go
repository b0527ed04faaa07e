package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// CurrentVersion is the schema version written by this package.
const CurrentVersion = "2"

// LocalRepository is the reserved cache-only repository name.
const LocalRepository = "local"

// Backend names for RepositoryConfig.Backend.
const (
	BackendAWS        = "aws"
	BackendFilesystem = "filesystem"
	BackendMemory     = "memory" // process memory only, for tests and dry runs
)

var repositoryName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,40}$`)

// Config is the persisted config.json.
type Config struct {
	Version      string                      `json:"version"`
	Name         string                      `json:"name"`
	Email        string                      `json:"email"`
	Repositories map[string]RepositoryConfig `json:"repositories"`
}

// RepositoryConfig describes one remote repository.
// Backend, Root, Endpoint and TimeoutSeconds are optional extensions.
type RepositoryConfig struct {
	Repository      string `json:"repository"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`

	Backend        string `json:"backend,omitempty"`         // "aws" (default), "filesystem" or "memory"
	Root           string `json:"root,omitempty"`            // only used for backend=filesystem
	Endpoint       string `json:"endpoint,omitempty"`        // S3/DynamoDB-compatible endpoint override
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` // network timeout, default 300
}

// Validate checks the fields required by the configured backend.
func (rc RepositoryConfig) Validate() error {
	if err := ValidateRepositoryName(rc.Repository); err != nil {
		return err
	}
	switch rc.Backend {
	case "", BackendAWS:
		if rc.Region == "" {
			return fmt.Errorf("repository %s: region is required", rc.Repository)
		}
	case BackendFilesystem:
		if rc.Root == "" {
			return fmt.Errorf("repository %s: root is required for the filesystem backend", rc.Repository)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("repository %s: unknown backend %q", rc.Repository, rc.Backend)
	}
	if rc.TimeoutSeconds < 0 {
		return fmt.Errorf("repository %s: timeout_seconds must not be negative", rc.Repository)
	}
	return nil
}

// ValidateRepositoryName checks that name can be used as a repository name.
func ValidateRepositoryName(name string) error {
	if !repositoryName.MatchString(name) {
		return fmt.Errorf("invalid repository name %q: use lowercase letters, digits and dashes", name)
	}
	if name == LocalRepository {
		return fmt.Errorf("repository name %q is reserved", LocalRepository)
	}
	return nil
}

// NewConfig returns an empty current-version Config.
func NewConfig(name, email string) *Config {
	return &Config{
		Version:      CurrentVersion,
		Name:         name,
		Email:        email,
		Repositories: map[string]RepositoryConfig{},
	}
}

// Repository returns the named repository entry.
func (c *Config) Repository(name string) (RepositoryConfig, bool) {
	rc, ok := c.Repositories[name]
	return rc, ok
}

// SetRepository adds or replaces an entry keyed by rc.Repository.
func (c *Config) SetRepository(rc RepositoryConfig) {
	if c.Repositories == nil {
		c.Repositories = map[string]RepositoryConfig{}
	}
	c.Repositories[rc.Repository] = rc
}

// RepositoryNames returns the configured names in sorted order.
func (c *Config) RepositoryNames() []string {
	names := make([]string, 0, len(c.Repositories))
	for name := range c.Repositories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRepository returns the first non-local repository by name, or
// LocalRepository when none is configured.
func (c *Config) DefaultRepository() string {
	for _, name := range c.RepositoryNames() {
		if name != LocalRepository {
			return name
		}
	}
	return LocalRepository
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a current-version Config from r.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %q", cfg.Version)
	}
	if cfg.Repositories == nil {
		cfg.Repositories = map[string]RepositoryConfig{}
	}
	return &cfg, nil
}

// Write encodes cfg to w in canonical form: tab-indented, sorted keys,
// trailing newline.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "\t")
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Load reads the config file at path, migrating and rewriting it first if
// it uses the legacy schema.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	migrated, changed, err := Migrate(raw)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if changed {
		if err := writeFile(path, migrated); err != nil {
			return nil, fmt.Errorf("writing migrated config: %w", err)
		}
	}

	m := &Manager{}
	cfg, err := m.Read(bytes.NewReader(migrated))
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, cfg); err != nil {
		return err
	}
	if err := writeFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// writeFile replaces path atomically (temp file + rename). The file holds
// credentials so it is created 0600.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}
