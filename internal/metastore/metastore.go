// Package metastore implements the metadata index of a repository: one
// record per pushed snapshot, keyed by id.
//
// DynamoStore is the remote index used by AWS repositories. SQLiteStore
// keeps the same records in a single SQLite file for filesystem
// repositories.
package metastore

import (
	"strings"
	"time"

	"wpsnapshots/internal/snapshots"
)

// TableName is the index name of a repository.
func TableName(repository string) string {
	return "wpsnapshots-" + repository
}

// Compile-time checks.
var (
	_ snapshots.MetaStore = (*DynamoStore)(nil)
	_ snapshots.MetaStore = (*SQLiteStore)(nil)
)

// record builds the stored form of meta. The project is kept lowercased
// for search, with the original case in project_name.
func record(meta *snapshots.Meta, now time.Time) map[string]any {
	item := meta.ToMap()
	item["project"] = strings.ToLower(meta.Project)
	item["project_name"] = meta.Project
	item["id_search"] = strings.ToLower(meta.ID)
	item["time"] = now.Unix()
	return item
}

// fromRecord decodes a stored record.
func fromRecord(item map[string]any) (*snapshots.Meta, error) {
	meta, err := snapshots.MetaFromMap(item)
	if err != nil {
		return nil, err
	}
	if name, ok := item["project_name"].(string); ok && name != "" {
		meta.Project = name
	}
	return meta, nil
}

// matches is the search predicate shared by both stores.
func matches(meta *snapshots.Meta, query string) bool {
	if query == "*" {
		return true
	}
	q := strings.ToLower(query)
	return strings.ToLower(meta.ID) == q || strings.Contains(strings.ToLower(meta.Project), q)
}
