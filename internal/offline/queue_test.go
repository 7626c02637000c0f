package offline

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/msgsync/internal/remote"
	"github.com/matheus3301/msgsync/internal/session"
	"github.com/matheus3301/msgsync/internal/store"
	"github.com/matheus3301/msgsync/internal/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNet struct{ offline atomic.Bool }

func (f *fakeNet) IsOnline() bool { return !f.offline.Load() }

func testQueue(t *testing.T, net Connectivity, clock func() time.Time) *Queue {
	t.Helper()
	db, _, err := store.OpenMigrated(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, session.Session{SiteID: "main", UserID: 1}, net, zap.NewNop(), WithClock(clock))
}

func stepClock(start int64) func() time.Time {
	var n atomic.Int64
	n.Store(start)
	return func() time.Time {
		return time.UnixMilli(n.Add(100) - 100)
	}
}

func TestEnqueueAndList(t *testing.T) {
	q := testQueue(t, &fakeNet{}, stepClock(100))
	conv := target.ForConversation(7)

	a, err := q.Enqueue(conv, "a", &Snapshot{Name: "Team"})
	require.NoError(t, err)
	b, err := q.Enqueue(conv, "b", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(100), a.CreatedAt)
	assert.Equal(t, int64(200), b.CreatedAt)
	assert.False(t, a.DeviceOffline)

	got, err := q.List(conv)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, "Team", got[0].Snapshot.Name)
	assert.Equal(t, int64(1), got[0].SenderID)
	assert.Equal(t, conv, got[1].Target)
}

func TestSnapshotKeepsConversationType(t *testing.T) {
	q := testQueue(t, &fakeNet{}, stepClock(100))
	self := target.ForConversation(3)

	_, err := q.Enqueue(self, "note", &Snapshot{Name: "Me", Type: remote.Self})
	require.NoError(t, err)

	got, err := q.List(self)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Snapshot)
	assert.Equal(t, remote.Self, got[0].Snapshot.Type)
}

func TestEnqueueRecordsOfflineState(t *testing.T) {
	net := &fakeNet{}
	net.offline.Store(true)
	q := testQueue(t, net, stepClock(100))

	m, err := q.Enqueue(target.ForUser(42), "hi", nil)
	require.NoError(t, err)
	assert.True(t, m.DeviceOffline)
	assert.Nil(t, m.Snapshot)

	all, err := q.ListAllDeviceOffline()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, target.ForUser(42), all[0].Target)
}

func TestEnqueueRejectsInvalidTarget(t *testing.T) {
	q := testQueue(t, &fakeNet{}, stepClock(100))
	_, err := q.Enqueue(target.ForConversation(0), "x", nil)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = q.List(target.Target{})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestHasMessagesAndDelete(t *testing.T) {
	q := testQueue(t, &fakeNet{}, stepClock(100))
	peer := target.ForUser(42)

	has, err := q.HasMessages(peer)
	require.NoError(t, err)
	assert.False(t, has)

	m, err := q.Enqueue(peer, "hi", nil)
	require.NoError(t, err)
	has, _ = q.HasMessages(peer)
	assert.True(t, has)

	require.NoError(t, q.Delete(m))
	has, _ = q.HasMessages(peer)
	assert.False(t, has)
}

func TestSetDeviceOfflineAcrossQueues(t *testing.T) {
	q := testQueue(t, &fakeNet{}, stepClock(100))
	m1, _ := q.Enqueue(target.ForConversation(7), "a", nil)
	m2, _ := q.Enqueue(target.ForUser(42), "b", nil)
	_, _ = q.Enqueue(target.ForUser(43), "c", nil)

	require.NoError(t, q.SetDeviceOffline([]Message{m1, m2}, true))

	flagged, err := q.ListAllDeviceOffline()
	require.NoError(t, err)
	assert.Equal(t, []target.Target{target.ForConversation(7), target.ForUser(42)}, Targets(flagged))

	all, err := q.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTargetsDeduplicates(t *testing.T) {
	msgs := []Message{
		{Target: target.ForUser(1)},
		{Target: target.ForConversation(2)},
		{Target: target.ForUser(1)},
	}
	assert.Equal(t, []target.Target{target.ForUser(1), target.ForConversation(2)}, Targets(msgs))
}
