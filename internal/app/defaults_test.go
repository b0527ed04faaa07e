package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("WPSNAPSHOTS_DIR", "/custom/snapshots")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults.Root != "/custom/snapshots" {
			t.Errorf("Root = %q, want %q", defaults.Root, "/custom/snapshots")
		}
		if defaults.ConfigPath != "/custom/snapshots/config.json" {
			t.Errorf("ConfigPath = %q, want %q", defaults.ConfigPath, "/custom/snapshots/config.json")
		}
		if defaults.LogDir != "/custom/snapshots/log" {
			t.Errorf("LogDir = %q, want %q", defaults.LogDir, "/custom/snapshots/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("WPSNAPSHOTS_DIR", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()
		wantRoot := filepath.Join(homeDir, ".wpsnapshots")
		if defaults.Root != wantRoot {
			t.Errorf("Root = %q, want %q", defaults.Root, wantRoot)
		}
		if want := filepath.Join(wantRoot, "config.json"); defaults.ConfigPath != want {
			t.Errorf("ConfigPath = %q, want %q", defaults.ConfigPath, want)
		}
	})
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("WPSNAPSHOTS_TEST_A=local\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WPSNAPSHOTS_TEST_A=env\nWPSNAPSHOTS_TEST_B=env\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WPSNAPSHOTS_TEST_A", "")
	t.Setenv("WPSNAPSHOTS_TEST_B", "")
	os.Unsetenv("WPSNAPSHOTS_TEST_A")
	os.Unsetenv("WPSNAPSHOTS_TEST_B")

	if err := LoadEnv(dir); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := os.Getenv("WPSNAPSHOTS_TEST_A"); got != "local" {
		t.Errorf("WPSNAPSHOTS_TEST_A = %q, want local", got)
	}
	if got := os.Getenv("WPSNAPSHOTS_TEST_B"); got != "env" {
		t.Errorf("WPSNAPSHOTS_TEST_B = %q, want env", got)
	}
}

func TestLoadEnv_NoFiles(t *testing.T) {
	if err := LoadEnv(t.TempDir()); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
}
