package snapshots

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts snapshot ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random 32-character hex IDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
