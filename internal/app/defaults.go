package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Paths are the locations the application reads and writes.
type Paths struct {
	Root       string // snapshot cache root
	ConfigPath string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - WPSNAPSHOTS_DIR: cache root holding config.json and snapshots (default: ~/.wpsnapshots)
func GetDefaults() (Paths, error) {
	root, err := getRoot()
	if err != nil {
		return Paths{}, err
	}
	return PathsFor(root), nil
}

// PathsFor returns the paths under an explicit cache root.
func PathsFor(root string) Paths {
	return Paths{
		Root:       root,
		ConfigPath: filepath.Join(root, "config.json"),
		LogDir:     filepath.Join(root, "log"),
	}
}

func getRoot() (string, error) {
	if path := os.Getenv("WPSNAPSHOTS_DIR"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".wpsnapshots"), nil
}

// LoadEnv loads .env.local and then .env from dir into the environment.
// Variables that are already set win, and missing files are skipped.
func LoadEnv(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}
