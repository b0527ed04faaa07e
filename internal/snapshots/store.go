package snapshots

import "context"

// ProgressFunc receives transfer progress for one artifact.
type ProgressFunc func(name string, done, total int64)

// MetaStore is the metadata index of a repository.
type MetaStore interface {
	// Search returns every record when query is "*", otherwise the records
	// whose project contains query or whose id equals it.
	Search(ctx context.Context, query string) ([]*Meta, error)

	// Insert writes a new record and returns it with Time stamped.
	Insert(ctx context.Context, meta *Meta) (*Meta, error)

	// Get is a consistent point read. A missing record is errs.NotFound.
	Get(ctx context.Context, id string) (*Meta, error)

	Delete(ctx context.Context, id string) error

	// CreateTables provisions the index and waits until it is ready. An
	// existing index is an errs.Conflict with code already_exists.
	CreateTables(ctx context.Context) error
}

// ObjectStore holds the artifacts of a repository under {project}/{id}/.
type ObjectStore interface {
	// PutSnapshot uploads the artifacts that meta says dir contains.
	PutSnapshot(ctx context.Context, meta *Meta, dir string, progress ProgressFunc) error

	// DownloadArtifact fetches one artifact (cache.DBFile or
	// cache.FilesFile) of meta to dest.
	DownloadArtifact(ctx context.Context, meta *Meta, name, dest string) error

	// DeleteSnapshot removes every known key of the snapshot, current and
	// legacy. Keys that never existed are not an error.
	DeleteSnapshot(ctx context.Context, id, project string) error

	// CreateBucket provisions storage. A bucket already owned by the
	// caller is an errs.Conflict with code already_exists.
	CreateBucket(ctx context.Context) error

	// Test probes connectivity and authorization.
	Test(ctx context.Context) error
}

// Repository binds a metadata store and an object store under a name.
type Repository interface {
	Name() string
	DB() (MetaStore, error)
	S3() (ObjectStore, error)
}

// Resolver finds repositories by name. An empty name resolves the default
// repository.
type Resolver interface {
	Resolve(name string) (Repository, error)
	Author() Author
}
