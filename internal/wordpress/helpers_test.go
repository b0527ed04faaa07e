package wordpress

import (
	"database/sql"
	"testing"

	"wpsnapshots/internal/sqldb"
	"wpsnapshots/internal/testutil"
)

const multisiteConfig = `<?php
define('MULTISITE', true);
define('SUBDOMAIN_INSTALL', false);
define('DOMAIN_CURRENT_SITE', 'network.test');
define('PATH_CURRENT_SITE', '/');
define('SITE_ID_CURRENT_SITE', 1);
define('BLOG_ID_CURRENT_SITE', 1);
$table_prefix = 'wp_';
`

func newTestInstall(t *testing.T, config string) (*Install, *sql.DB) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	cfg := ParseConfig([]byte(config))
	return &Install{
		TablePrefix: cfg.TablePrefix(),
		Config:      cfg,
		DB:          db,
		Dialect:     sqldb.SQLite{},
	}, db
}
