package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// CreateSiteTables creates the per-blog and user tables of a WordPress
// install under prefix, in SQLite syntax.
func CreateSiteTables(t *testing.T, db *sql.DB, prefix string) {
	t.Helper()
	MustExec(t, db,
		fmt.Sprintf(`CREATE TABLE %soptions (option_id INTEGER PRIMARY KEY AUTOINCREMENT, option_name VARCHAR(191) NOT NULL UNIQUE, option_value LONGTEXT NOT NULL DEFAULT '', autoload VARCHAR(20) NOT NULL DEFAULT 'yes')`, prefix),
		fmt.Sprintf(`CREATE TABLE %sposts (ID INTEGER PRIMARY KEY AUTOINCREMENT, post_content LONGTEXT NOT NULL DEFAULT '', guid VARCHAR(255) NOT NULL DEFAULT '')`, prefix),
	)
	CreateUserTables(t, db, prefix)
}

// CreateUserTables creates the users and usermeta tables under prefix.
func CreateUserTables(t *testing.T, db *sql.DB, prefix string) {
	t.Helper()
	MustExec(t, db,
		fmt.Sprintf(`CREATE TABLE %susers (ID INTEGER PRIMARY KEY AUTOINCREMENT, user_login VARCHAR(60) NOT NULL DEFAULT '', user_pass VARCHAR(255) NOT NULL DEFAULT '', user_nicename VARCHAR(50) NOT NULL DEFAULT '', user_email VARCHAR(100) NOT NULL DEFAULT '', user_url VARCHAR(100) NOT NULL DEFAULT '', user_registered DATETIME, user_activation_key VARCHAR(255) NOT NULL DEFAULT '', user_status INT NOT NULL DEFAULT 0, display_name VARCHAR(250) NOT NULL DEFAULT '')`, prefix),
		fmt.Sprintf(`CREATE TABLE %susermeta (umeta_id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INT NOT NULL DEFAULT 0, meta_key VARCHAR(255), meta_value LONGTEXT)`, prefix),
	)
}

// CreateNetworkTables creates the multisite network tables under prefix.
func CreateNetworkTables(t *testing.T, db *sql.DB, prefix string) {
	t.Helper()
	MustExec(t, db,
		fmt.Sprintf(`CREATE TABLE %sblogs (blog_id INTEGER PRIMARY KEY AUTOINCREMENT, site_id INT NOT NULL DEFAULT 1, domain VARCHAR(200) NOT NULL DEFAULT '', path VARCHAR(100) NOT NULL DEFAULT '')`, prefix),
		fmt.Sprintf(`CREATE TABLE %ssite (id INTEGER PRIMARY KEY AUTOINCREMENT, domain VARCHAR(200) NOT NULL DEFAULT '', path VARCHAR(100) NOT NULL DEFAULT '')`, prefix),
		fmt.Sprintf(`CREATE TABLE %ssitemeta (meta_id INTEGER PRIMARY KEY AUTOINCREMENT, site_id INT NOT NULL DEFAULT 0, meta_key VARCHAR(255), meta_value LONGTEXT)`, prefix),
	)
}

// SetOption inserts or replaces an option in the table prefix+"options".
func SetOption(t *testing.T, db *sql.DB, prefix, name, value string) {
	t.Helper()
	q := fmt.Sprintf(`INSERT OR REPLACE INTO %soptions (option_name, option_value) VALUES (?, ?)`, prefix)
	if _, err := db.Exec(q, name, value); err != nil {
		t.Fatalf("setting option %s: %v", name, err)
	}
}

// WriteWordPress lays out the core files an install is recognised by, with
// the given wp-config.php content and version.
func WriteWordPress(t *testing.T, dir, config, version string) {
	t.Helper()
	files := map[string]string{
		"wp-settings.php": "<?php\n",
		filepath.Join("wp-includes", "version.php"): fmt.Sprintf("<?php\n$wp_version = '%s';\n", version),
		filepath.Join("wp-content", "index.php"):    "<?php\n// Silence is golden.\n",
	}
	if config != "" {
		files["wp-config.php"] = config
	}
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("creating %s: %v", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
}
