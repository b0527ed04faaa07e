package snapshots

// State is the lifecycle position of a Snapshot.
type State int

const (
	// Building means the snapshot is being exported.
	Building State = iota
	// LocalReady means meta.json and the artifacts are in the cache.
	LocalReady
	// Remote means the metadata record exists in the repository.
	Remote
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case LocalReady:
		return "local"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// Snapshot is a Meta bound to a repository.
type Snapshot struct {
	ID         string
	Repository string
	Meta       *Meta
	// Remote guards against pushing twice.
	Remote bool
	State  State
}

func newLocalSnapshot(meta *Meta) *Snapshot {
	return &Snapshot{ID: meta.ID, Repository: meta.Repository, Meta: meta, State: LocalReady}
}

func newRemoteSnapshot(meta *Meta) *Snapshot {
	return &Snapshot{ID: meta.ID, Repository: meta.Repository, Meta: meta, Remote: true, State: Remote}
}
