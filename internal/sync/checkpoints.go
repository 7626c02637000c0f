package sync

import (
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/msgsync/internal/store"
	"github.com/matheus3301/msgsync/internal/target"
)

// Checkpoints records when each target last synced successfully.
type Checkpoints struct {
	db *store.DB
}

// NewCheckpoints creates a checkpoint store.
func NewCheckpoints(db *store.DB) *Checkpoints {
	return &Checkpoints{db: db}
}

func checkpointKey(t target.Target) string {
	return "sync.last:" + t.String()
}

// MarkSynced stores at as the last successful sync of t.
func (c *Checkpoints) MarkSynced(t target.Target, at time.Time) error {
	return c.db.SetSyncState(checkpointKey(t), strconv.FormatInt(at.UnixMilli(), 10))
}

// LastSync returns the last successful sync of t, or the zero time.
func (c *Checkpoints) LastSync(t target.Target) (time.Time, error) {
	raw, ok, err := c.db.SyncState(checkpointKey(t))
	if err != nil || !ok {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt checkpoint for %s: %w", t, err)
	}
	return time.UnixMilli(ms), nil
}
