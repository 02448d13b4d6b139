package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)

	now = time.Now
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// It is used for message UUIDs published onto record and artifact topics.
func CreateULID() string {
	return newULID().String()
}

// NewRunID identifies one stream run. Run IDs sort by start time, so reports
// from a batch can be ordered without extra bookkeeping.
func NewRunID() string {
	return "run_" + newULID().String()
}

// RunStartedAt recovers the start time encoded in a run ID.
func RunStartedAt(runID string) (time.Time, bool) {
	if len(runID) != len("run_")+ulid.EncodedSize || runID[:4] != "run_" {
		return time.Time{}, false
	}
	id, err := ulid.ParseStrict(runID[4:])
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()), true
}

func newULID() ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(now()), entropy)
}
