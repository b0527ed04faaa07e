package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// legacyConfig is the flat single-repository schema (v1).
type legacyConfig struct {
	Repository      string `json:"repository"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
	Name            string `json:"name"`
	Email           string `json:"email"`
}

// Migrate converts a v1 document to canonical v2 bytes. A document that
// is already v2 is returned as is with changed=false, so migrating twice
// yields the same bytes as migrating once.
func Migrate(raw []byte) (out []byte, changed bool, err error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false, fmt.Errorf("failed to decode config: %w", err)
	}

	if v, ok := probe["version"]; ok {
		var version string
		if err := json.Unmarshal(v, &version); err == nil && version == CurrentVersion {
			return raw, false, nil
		}
		if _, hasRepos := probe["repositories"]; hasRepos {
			return nil, false, fmt.Errorf("unsupported config version %s", string(v))
		}
	}

	var legacy legacyConfig
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, false, fmt.Errorf("failed to decode legacy config: %w", err)
	}

	cfg := NewConfig(legacy.Name, legacy.Email)
	if legacy.Repository != "" {
		cfg.SetRepository(RepositoryConfig{
			Repository:      legacy.Repository,
			AccessKeyID:     legacy.AccessKeyID,
			SecretAccessKey: legacy.SecretAccessKey,
			Region:          legacy.Region,
		})
	}

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, cfg); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}
