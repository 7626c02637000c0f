package discussion

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/msgsync/internal/bus"
	"github.com/matheus3301/msgsync/internal/offline"
	"github.com/matheus3301/msgsync/internal/outbox"
	"github.com/matheus3301/msgsync/internal/remote"
	"github.com/matheus3301/msgsync/internal/remote/remotetest"
	"github.com/matheus3301/msgsync/internal/session"
	"github.com/matheus3301/msgsync/internal/status"
	"github.com/matheus3301/msgsync/internal/store"
	intsync "github.com/matheus3301/msgsync/internal/sync"
	"github.com/matheus3301/msgsync/internal/target"
	"github.com/matheus3301/msgsync/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const me = 1

var conv = target.ForConversation(7)

type fixture struct {
	api    *remotetest.Fake
	queue  *offline.Queue
	net    *status.Monitor
	bus    *bus.Bus
	engine *intsync.Engine
	deps   Deps
	cfg    Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, _, err := store.OpenMigrated(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	b := bus.New()
	net := status.NewMonitor(b, "", 0, 0, logger)
	q := offline.New(db, session.Session{SiteID: "main", UserID: me}, net, logger)
	api := remotetest.New(me)
	api.SetConversation(&remote.Conversation{
		ID: 7, Type: remote.Group, Name: "Team",
		Members: []remote.Member{{ID: me, FullName: "Me"}, {ID: 5, FullName: "Ann"}},
	})
	engine := intsync.NewEngine(q, api, net, b, intsync.NewCheckpoints(db), intsync.Config{}, logger)
	sender := outbox.NewSender(q, api, net, b, logger)

	return &fixture{
		api: api, queue: q, net: net, bus: b, engine: engine,
		deps: Deps{
			Session: session.Session{SiteID: "main", UserID: me}, API: api, Queue: q, Syncer: engine, Sender: sender,
			Bus: b, Logger: logger,
		},
		cfg: Config{PageSize: 50, PollInterval: 20 * time.Millisecond, FetchWaitStep: 5 * time.Millisecond, Location: time.UTC},
	}
}

func (f *fixture) open(t *testing.T, tgt target.Target) *Discussion {
	t.Helper()
	d := New(tgt, f.deps, f.cfg)
	require.NoError(t, d.Open(context.Background()))
	t.Cleanup(d.Close)
	return d
}

func texts(msgs []transcript.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestOpenLoadsFirstPageAndQueued(t *testing.T) {
	f := newFixture(t)
	f.api.AddMessage(conv, 5, "a", 1000)
	f.api.AddMessage(conv, 5, "b", 2000)
	f.api.AddMessage(conv, me, "c", 3000)
	_, err := f.queue.Enqueue(conv, "queued", nil)
	require.NoError(t, err)
	f.cfg.PageSize = 2

	d := f.open(t, conv)
	v := d.View()

	assert.Equal(t, "Team", v.Title)
	assert.True(t, v.IsGroup)
	assert.True(t, v.CanLoadMore)
	assert.Equal(t, []string{"b", "c", "queued"}, texts(v.Messages))
	assert.True(t, v.Messages[2].Pending)
	assert.Equal(t, "Ann", v.Members[5])
}

func TestLoadPreviousAddsOlderPage(t *testing.T) {
	f := newFixture(t)
	f.api.AddMessage(conv, 5, "a", 1000)
	f.api.AddMessage(conv, 5, "b", 2000)
	f.api.AddMessage(conv, 5, "c", 3000)
	f.cfg.PageSize = 2

	d := f.open(t, conv)
	d.AcknowledgeNew()
	require.NoError(t, d.LoadPrevious(context.Background()))

	v := d.View()
	assert.Equal(t, []string{"a", "b", "c"}, texts(v.Messages))
	assert.False(t, v.CanLoadMore)
	assert.Equal(t, 0, v.NewMessages, "older history does not count as new")

	fetches := f.api.Fetches()
	last := fetches[len(fetches)-1]
	assert.Equal(t, 2, last.Offset)
	assert.Equal(t, 2, last.Limit)
}

func TestSubmitOnlineReplacesOptimisticEntry(t *testing.T) {
	f := newFixture(t)
	f.api.AddMessage(conv, 5, "a", 1000)
	f.api.AddMessage(conv, me, "b", 2000)
	d := f.open(t, conv)

	res, err := d.Submit(context.Background(), "c")
	require.NoError(t, err)
	assert.True(t, res.Sent)

	msgs := d.View().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "<p>c</p>", msgs[2].Text)
	assert.Positive(t, msgs[2].ID)
	assert.False(t, msgs[2].Pending)
}

func TestSubmitOfflineKeepsOnePendingEntry(t *testing.T) {
	f := newFixture(t)
	f.api.AddMessage(conv, 5, "a", 1000)
	d := f.open(t, conv)
	f.net.SetOnline(false)

	res, err := d.Submit(context.Background(), "later")
	require.NoError(t, err)
	require.False(t, res.Sent)
	require.NotNil(t, res.Queued)
	assert.Empty(t, f.api.Sends())
	require.NotNil(t, res.Queued.Snapshot)
	assert.Equal(t, "Team", res.Queued.Snapshot.Name)
	assert.Equal(t, remote.Group, res.Queued.Snapshot.Type)

	msgs := d.View().Messages
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Pending)
	assert.False(t, msgs[1].Sending)
	assert.Equal(t, res.Queued.CreatedAt, msgs[1].CreatedAt)

	// The next merge swaps the optimistic entry for the queued record.
	require.NoError(t, d.Fetch(context.Background(), true))
	msgs = d.View().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(0), msgs[1].ID)
	assert.Equal(t, "later", msgs[1].Text)
}

func TestSubmitBusinessErrorRemovesEntry(t *testing.T) {
	f := newFixture(t)
	f.api.SendHook = func(context.Context, target.Target, string) error {
		return &remote.Error{Code: "notmember", Message: "Not a member"}
	}
	d := f.open(t, conv)

	_, err := d.Submit(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, remote.IsBusinessError(err))
	assert.Empty(t, d.View().Messages)
}

func TestSubmitRejectsEmptyText(t *testing.T) {
	f := newFixture(t)
	d := f.open(t, conv)
	_, err := d.Submit(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestFetchSkippedWhileSending(t *testing.T) {
	f := newFixture(t)
	d := f.open(t, conv)

	release := make(chan struct{})
	f.api.SendHook = func(context.Context, target.Target, string) error {
		<-release
		return nil
	}
	done := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), "hi")
		done <- err
	}()
	require.Eventually(t, func() bool { return len(f.api.Sends()) == 1 }, time.Second, time.Millisecond)

	before := len(f.api.Fetches())
	require.NoError(t, d.Fetch(context.Background(), true))
	assert.Equal(t, before, len(f.api.Fetches()), "no fetch while a send is in flight")

	msgs := d.View().Messages
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Sending)

	close(release)
	require.NoError(t, <-done)
}

func TestCloseStopsEverything(t *testing.T) {
	f := newFixture(t)
	d := f.open(t, conv)
	d.SetForeground(true)
	d.Close()
	d.Close()

	assert.False(t, d.View().Polling)
	before := len(f.api.Fetches())
	require.NoError(t, d.Fetch(context.Background(), true))
	assert.Equal(t, before, len(f.api.Fetches()))

	_, err := d.Submit(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, d.LoadPrevious(context.Background()), ErrClosed)

	d.SetForeground(true)
	assert.False(t, d.View().Polling, "a closed view never polls")
}

func TestPollingPicksUpNewMessages(t *testing.T) {
	f := newFixture(t)
	d := f.open(t, conv)
	ch, unsub := f.bus.SubscribeTarget(conv, bus.KindNewMessages, 10)
	defer unsub()

	d.SetForeground(true)
	assert.True(t, d.View().Polling)
	f.api.AddMessage(conv, 5, "ping", 5000)

	select {
	case evt := <-ch:
		assert.Equal(t, 1, evt.Payload.(bus.NewMessages).Delta)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not report the new message")
	}
	assert.Equal(t, 1, d.View().NewMessages)

	d.SetForeground(false)
	assert.False(t, d.View().Polling)
}

func TestOpenMarksUnreadAndPlacesWatermark(t *testing.T) {
	f := newFixture(t)
	f.api.SetConversation(&remote.Conversation{ID: 7, Type: remote.Group, Name: "Team", UnreadCount: 2})
	f.api.AddMessage(conv, 5, "a", 1000)
	second := f.api.AddMessage(conv, 5, "b", 2000)
	f.api.AddMessage(conv, 5, "c", 3000)

	d := f.open(t, conv)

	assert.Equal(t, second.ID, d.View().UnreadFrom)
	assert.Equal(t, []target.Target{conv}, f.api.MarkReads())

	// Unread count was consumed; a plain refresh does not mark again.
	require.NoError(t, d.Fetch(context.Background(), true))
	assert.Len(t, f.api.MarkReads(), 1)

	// Sending hides the label.
	_, err := d.Submit(context.Background(), "reply")
	require.NoError(t, err)
	assert.Equal(t, transcript.WatermarkNone, d.View().UnreadFrom)
}

func TestOpenPeerLabelsFirstUnread(t *testing.T) {
	f := newFixture(t)
	peer := target.ForUser(42)
	f.api.SetUserName(42, "Bob")
	old := f.api.AddMessage(peer, 42, "old", 1000)
	f.api.AddMessage(peer, me, "reply", 1500)
	first := f.api.AddMessage(peer, 42, "new", 2000)
	f.api.AddMessage(peer, 42, "newer", 3000)
	f.api.SetRead(peer, old.ID)

	d := f.open(t, peer)

	assert.Equal(t, first.ID, d.View().UnreadFrom)
	assert.Equal(t, []target.Target{peer}, f.api.MarkReads())

	require.NoError(t, d.Fetch(context.Background(), true))
	assert.Len(t, f.api.MarkReads(), 1, "read messages are not marked again")
}

func TestOpenPeerAlreadyReadLeavesNoLabel(t *testing.T) {
	f := newFixture(t)
	peer := target.ForUser(42)
	f.api.SetUserName(42, "Bob")
	a := f.api.AddMessage(peer, 42, "a", 1000)
	b := f.api.AddMessage(peer, 42, "b", 2000)
	f.api.AddMessage(peer, me, "c", 3000)
	f.api.SetRead(peer, a.ID, b.ID)

	d := f.open(t, peer)

	assert.Equal(t, transcript.WatermarkUnset, d.View().UnreadFrom)
	assert.Empty(t, f.api.MarkReads())
	assert.Equal(t, []string{"a", "b", "c"}, texts(d.View().Messages))
}

func TestOpenOfflineShowsQueuedOnly(t *testing.T) {
	f := newFixture(t)
	peer := target.ForUser(42)
	f.api.SetUserName(42, "Bob")
	_, err := f.queue.Enqueue(peer, "queued", nil)
	require.NoError(t, err)
	f.api.FetchHook = func(context.Context, target.Target, remote.FetchOptions) error {
		return errors.New("no route to host")
	}

	d := f.open(t, peer)
	v := d.View()
	assert.Equal(t, "Bob", v.Title)
	assert.Equal(t, []string{"queued"}, texts(v.Messages))
	assert.False(t, v.CanLoadMore)
}

func TestAutoSyncRefreshesTranscript(t *testing.T) {
	f := newFixture(t)
	d := f.open(t, conv)
	_, err := f.queue.Enqueue(conv, "queued", nil)
	require.NoError(t, err)

	_, err = f.engine.SyncAll(context.Background(), false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := d.View().Messages
		return len(msgs) == 1 && msgs[0].Text == "<p>queued</p>" && !msgs[0].Pending
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManager(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.deps, f.cfg)

	handle, d, err := m.Open(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, conv, d.Target())

	got, err := m.Get(handle)
	require.NoError(t, err)
	assert.Same(t, d, got)
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.Close(handle))
	assert.Error(t, m.Close(handle))
	_, err = m.Get(handle)
	assert.Error(t, err)

	_, _, err = m.Open(context.Background(), target.ForConversation(99))
	assert.True(t, remote.IsBusinessError(err), "unknown conversation is rejected by the server")
	assert.Equal(t, 0, m.Len())
}
