package sync

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/msgsync/internal/bus"
	"github.com/matheus3301/msgsync/internal/offline"
	"github.com/matheus3301/msgsync/internal/remote"
	"github.com/matheus3301/msgsync/internal/remote/remotetest"
	"github.com/matheus3301/msgsync/internal/session"
	"github.com/matheus3301/msgsync/internal/status"
	"github.com/matheus3301/msgsync/internal/store"
	"github.com/matheus3301/msgsync/internal/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	engine *Engine
	queue  *offline.Queue
	api    *remotetest.Fake
	net    *status.Monitor
	bus    *bus.Bus
	clock  *atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, _, err := store.OpenMigrated(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	b := bus.New()
	net := status.NewMonitor(b, "", 0, 0, logger)
	clock := &atomic.Int64{}
	clock.Store(100_000)
	q := offline.New(db, session.Session{SiteID: "main", UserID: 1}, net, logger, offline.WithClock(func() time.Time {
		return time.UnixMilli(clock.Load())
	}))
	api := remotetest.New(1)
	e := NewEngine(q, api, net, b, NewCheckpoints(db), Config{}, logger)
	return &fixture{engine: e, queue: q, api: api, net: net, bus: b, clock: clock}
}

// enqueueAt queues text for tgt stamped at ms.
func (f *fixture) enqueueAt(t *testing.T, tgt target.Target, text string, ms int64) offline.Message {
	t.Helper()
	f.clock.Store(ms)
	m, err := f.queue.Enqueue(tgt, text, &offline.Snapshot{Name: "Team"})
	require.NoError(t, err)
	return m
}

func sentTexts(calls []remotetest.SendCall) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.Text)
	}
	return out
}

func TestSyncEmptyQueueIsNoop(t *testing.T) {
	f := newFixture(t)
	f.net.SetOnline(false) // an empty queue succeeds even offline

	res, err := f.engine.SyncTarget(context.Background(), target.ForConversation(7))
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, f.api.Fetches())
	assert.Empty(t, f.api.Sends())
}

func TestSyncPreservesOrder(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)
	f.enqueueAt(t, conv, "b", 200_000)
	f.enqueueAt(t, conv, "a", 100_000)

	res, err := f.engine.SyncTarget(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, []string{"a", "b"}, sentTexts(f.api.Sends()))

	has, _ := f.queue.HasMessages(conv)
	assert.False(t, has)

	last, err := f.engine.LastSync(conv)
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)
	f.enqueueAt(t, conv, "a", 100_000)

	_, err := f.engine.SyncTarget(context.Background(), conv)
	require.NoError(t, err)
	_, err = f.engine.SyncTarget(context.Background(), conv)
	require.NoError(t, err)
	assert.Len(t, f.api.Sends(), 1)
}

func TestSyncSuppressesDuplicates(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)
	f.enqueueAt(t, conv, "a", 100_000)
	f.enqueueAt(t, conv, "b", 200_000)
	// "a" already reached the server after a client-side timeout.
	f.api.AddMessage(conv, 1, "<p>a</p>", 120_000)

	res, err := f.engine.SyncTarget(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, sentTexts(f.api.Sends()))
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Sent)

	has, _ := f.queue.HasMessages(conv)
	assert.False(t, has, "the suppressed message is removed too")

	fetches := f.api.Fetches()
	require.Len(t, fetches, 1)
	assert.True(t, fetches[0].OnlyFromMe)
	assert.Equal(t, int64(100_000)-DefaultSafetyMargin.Milliseconds(), fetches[0].TimeFrom)
}

func TestSyncOneServerCopyCoversIdenticalTexts(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)
	f.enqueueAt(t, conv, "ok", 100_000)
	f.enqueueAt(t, conv, "ok", 110_000)
	f.api.AddMessage(conv, 1, "<p>ok</p>", 120_000)

	res, err := f.engine.SyncTarget(context.Background(), conv)
	require.NoError(t, err)
	assert.Empty(t, f.api.Sends())
	assert.Equal(t, 2, res.Skipped)

	has, _ := f.queue.HasMessages(conv)
	assert.False(t, has)
}

func TestSyncIgnoresCopiesOutsideWindow(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)
	f.enqueueAt(t, conv, "ok", 100_000)
	f.api.AddMessage(conv, 1, "<p>ok</p>", 1_000)

	_, err := f.engine.SyncTarget(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, sentTexts(f.api.Sends()))
}

func TestSyncOnlyMatchesOwnMessages(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)
	f.enqueueAt(t, conv, "ok", 100_000)
	f.api.AddMessage(conv, 2, "<p>ok</p>", 100_500)

	_, err := f.engine.SyncTarget(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, sentTexts(f.api.Sends()))
}

func TestSyncInvalidResponseMeansNoMessages(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)
	f.enqueueAt(t, conv, "a", 100_000)
	f.api.FetchHook = func(context.Context, target.Target, remote.FetchOptions) error {
		return &remote.Error{Code: remote.CodeInvalidResponse, Message: "Invalid response value"}
	}

	_, err := f.engine.SyncTarget(context.Background(), conv)
	require.NoError(t, err)
	assert.Len(t, f.api.Sends(), 1)
}

func TestSyncLookaheadFailureAbortsBeforeSending(t *testing.T) {
	f := newFixture(t)
	peer := target.ForUser(42)
	f.enqueueAt(t, peer, "a", 100_000)
	f.api.FetchHook = func(context.Context, target.Target, remote.FetchOptions) error {
		return errors.New("timeout")
	}

	_, err := f.engine.SyncTarget(context.Background(), peer)
	require.Error(t, err)
	assert.Empty(t, f.api.Sends())
	has, _ := f.queue.HasMessages(peer)
	assert.True(t, has)
}

func TestSyncOfflineFlagsMessages(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)
	f.enqueueAt(t, conv, "a", 100_000)
	f.net.SetOnline(false)

	_, err := f.engine.SyncTarget(context.Background(), conv)
	require.ErrorIs(t, err, ErrOffline)
	assert.Empty(t, f.api.Sends())

	flagged, err := f.queue.ListAllDeviceOffline()
	require.NoError(t, err)
	assert.Len(t, flagged, 1)
}

func TestSyncTransportErrorStopsBatch(t *testing.T) {
	f := newFixture(t)
	peer := target.ForUser(42)
	f.enqueueAt(t, peer, "a", 100_000)
	f.enqueueAt(t, peer, "b", 200_000)
	f.net.SetOnline(false)
	_, _ = f.engine.SyncTarget(context.Background(), peer) // flags both offline
	f.net.SetOnline(true)

	f.api.SendHook = func(_ context.Context, _ target.Target, text string) error {
		return errors.New("connection reset")
	}

	_, err := f.engine.SyncTarget(context.Background(), peer)
	require.Error(t, err)
	assert.False(t, remote.IsBusinessError(err))
	assert.Equal(t, []string{"a"}, sentTexts(f.api.Sends()), "b must not be attempted")

	queued, _ := f.queue.List(peer)
	require.Len(t, queued, 2)
	for _, m := range queued {
		assert.False(t, m.DeviceOffline, "still online, so the flag is cleared")
	}
}

func TestSyncBusinessErrorBecomesWarning(t *testing.T) {
	f := newFixture(t)
	peer := target.ForUser(42)
	f.api.SetUserName(42, "Bob")
	f.enqueueAt(t, peer, "a", 100_000)
	f.enqueueAt(t, peer, "b", 200_000)
	f.enqueueAt(t, peer, "c", 300_000)
	f.api.SendHook = func(_ context.Context, _ target.Target, text string) error {
		if text == "c" {
			return nil
		}
		return &remote.Error{Code: "blocked", Message: "User is blocked"}
	}

	res, err := f.engine.SyncTarget(context.Background(), peer)
	require.NoError(t, err)
	assert.Equal(t, []string{"Message to Bob not sent: User is blocked (blocked)"}, res.Warnings)
	assert.Equal(t, 1, res.Sent)

	has, _ := f.queue.HasMessages(peer)
	assert.False(t, has, "rejected messages are dropped")
}

func TestSyncConversationWarningUsesSnapshotName(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)
	f.enqueueAt(t, conv, "a", 100_000)
	f.api.SendHook = func(context.Context, target.Target, string) error {
		return &remote.Error{Message: "Not a member"}
	}

	res, err := f.engine.SyncTarget(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, []string{"Message to conversation Team not sent: Not a member"}, res.Warnings)
}

func TestSyncAllPublishesBatchWarnings(t *testing.T) {
	f := newFixture(t)
	f.api.SetUserName(42, "Bob")
	f.enqueueAt(t, target.ForConversation(7), "a", 100_000)
	f.enqueueAt(t, target.ForUser(42), "b", 100_000)
	f.enqueueAt(t, target.ForConversation(8), "c", 100_000)
	f.api.SendHook = func(_ context.Context, tgt target.Target, _ string) error {
		if tgt == target.ForConversation(8) {
			return nil
		}
		return &remote.Error{Message: "Not allowed"}
	}
	ch, unsub := f.bus.Subscribe(bus.KindSyncWarnings, 10)
	defer unsub()

	_, err := f.engine.SyncAll(context.Background(), false)
	require.NoError(t, err)

	select {
	case evt := <-ch:
		assert.True(t, evt.Target.IsZero())
		p, ok := evt.Payload.(bus.SyncWarnings)
		require.True(t, ok)
		assert.ElementsMatch(t, []string{
			"Message to conversation Team not sent: Not allowed",
			"Message to Bob not sent: Not allowed",
		}, p.Warnings)
	case <-time.After(time.Second):
		t.Fatal("no sync-warnings event")
	}
	select {
	case evt := <-ch:
		t.Fatalf("unexpected second event %+v", evt)
	default:
	}
}

func TestConcurrentSyncSharesResult(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)
	f.enqueueAt(t, conv, "a", 100_000)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.api.SendHook = func(context.Context, target.Target, string) error {
		entered <- struct{}{}
		<-release
		return nil
	}

	var wg gosync.WaitGroup
	results := make([]*Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := f.engine.SyncTarget(context.Background(), conv)
		assert.NoError(t, err)
		results[0] = res
	}()
	<-entered
	assert.True(t, f.engine.IsSyncing(conv))

	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := f.engine.SyncTarget(context.Background(), conv)
		assert.NoError(t, err)
		results[1] = res
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Len(t, f.api.Sends(), 1)
	assert.Len(t, f.api.Fetches(), 1)
	assert.Same(t, results[0], results[1])
}

func TestWaitFor(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)

	res, err := f.engine.WaitFor(context.Background(), conv)
	require.NoError(t, err)
	assert.Nil(t, res, "nothing running")

	f.enqueueAt(t, conv, "a", 100_000)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.api.SendHook = func(context.Context, target.Target, string) error {
		entered <- struct{}{}
		<-release
		return nil
	}
	go func() { _, _ = f.engine.SyncTarget(context.Background(), conv) }()
	<-entered

	done := make(chan *Result, 1)
	go func() {
		res, _ := f.engine.WaitFor(context.Background(), conv)
		done <- res
	}()
	close(release)

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.Equal(t, 1, res.Sent)
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return")
	}
}

func TestSyncAllCombinesErrorsAndPublishes(t *testing.T) {
	f := newFixture(t)
	ok := target.ForConversation(7)
	bad := target.ForUser(42)
	f.enqueueAt(t, ok, "a", 100_000)
	f.enqueueAt(t, bad, "b", 100_000)
	f.api.SendHook = func(_ context.Context, tgt target.Target, _ string) error {
		if tgt == bad {
			return errors.New("timeout")
		}
		return nil
	}
	ch, unsub := f.bus.Subscribe(bus.KindAutoSynced, 10)
	defer unsub()

	results, err := f.engine.SyncAll(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user:42")
	require.Len(t, results, 1)
	assert.Equal(t, ok, results[0].Target)

	select {
	case evt := <-ch:
		assert.Equal(t, ok, evt.Target)
	case <-time.After(time.Second):
		t.Fatal("no auto-synced event")
	}
}

func TestSyncAllOnlyDeviceOffline(t *testing.T) {
	f := newFixture(t)
	f.net.SetOnline(false)
	f.enqueueAt(t, target.ForConversation(7), "offline", 100_000)
	f.net.SetOnline(true)
	f.enqueueAt(t, target.ForConversation(8), "online", 100_000)

	results, err := f.engine.SyncAll(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, target.ForConversation(7), results[0].Target)
	assert.Equal(t, []string{"offline"}, sentTexts(f.api.Sends()))
}

func TestStartSyncsWhenNetworkReturns(t *testing.T) {
	f := newFixture(t)
	f.net.SetOnline(false)
	f.enqueueAt(t, target.ForUser(42), "hi", 100_000)

	f.engine.Start(context.Background())
	defer f.engine.Stop()

	// Let the initial run fail offline, then reconnect.
	time.Sleep(20 * time.Millisecond)
	f.net.SetOnline(true)

	require.Eventually(t, func() bool {
		has, _ := f.queue.HasMessages(target.ForUser(42))
		return !has
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, f.api.Sends(), 1)
}

func TestNormalizeBody(t *testing.T) {
	assert.Equal(t, "<p>hi</p>", NormalizeBody("hi"))
	assert.Equal(t, "<p>hi</p>", NormalizeBody("<p>hi</p>"))
	assert.Equal(t, "<b>x</b>", NormalizeBody("<b>x</b>"))
}
