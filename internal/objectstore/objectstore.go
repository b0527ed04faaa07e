// Package objectstore holds snapshot artifacts under {project}/{id}/.
//
// S3Store is the remote store of AWS repositories, FileSystemStore keeps
// the same key layout in a directory and MemoryStore keeps it in memory.
package objectstore

import (
	"wpsnapshots/internal/cache"
	"wpsnapshots/internal/snapshots"
)

// BucketName is the bucket of a repository.
func BucketName(repository string) string {
	return "wpsnapshots-" + repository
}

// Key is the object key of one artifact.
func Key(project, id, name string) string {
	return project + "/" + id + "/" + name
}

// snapshotKeys lists every key a snapshot may have been stored under,
// current and legacy.
func snapshotKeys(id, project string) []string {
	return []string{
		Key(project, id, cache.DBFile),
		Key(project, id, cache.FilesFile),
		Key(project, id, "data.sql"),
		id + "/data.sql",
		id + "/" + cache.FilesFile,
	}
}

// artifacts are the artifact names meta says exist, largest first.
func artifacts(meta *snapshots.Meta) []string {
	var names []string
	if meta.ContainsFiles {
		names = append(names, cache.FilesFile)
	}
	if meta.ContainsDB {
		names = append(names, cache.DBFile)
	}
	return names
}

// Compile-time checks.
var (
	_ snapshots.ObjectStore = (*S3Store)(nil)
	_ snapshots.ObjectStore = (*FileSystemStore)(nil)
	_ snapshots.ObjectStore = (*MemoryStore)(nil)
)
