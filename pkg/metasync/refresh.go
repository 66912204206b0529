package metasync

import (
	"time"

	"github.com/google/uuid"
)

// RefreshRun groups every chunk emitted by one crawl invocation. The
// ID is stable for the invocation's lifetime so the registry can tell
// "still streaming" from "refresh complete".
type RefreshRun struct {
	ID        string
	StartedAt time.Time
}

// NewRefreshRun creates a run with a fresh identifier
func NewRefreshRun() *RefreshRun {
	return &RefreshRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}
