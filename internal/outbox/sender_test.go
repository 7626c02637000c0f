package outbox

import (
	"context"
	"errors"
	"path/filepath"
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
	db     *store.DB
	sender *Sender
	queue  *offline.Queue
	api    *remotetest.Fake
	net    *status.Monitor
	bus    *bus.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, _, err := store.OpenMigrated(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	b := bus.New()
	net := status.NewMonitor(b, "", 0, 0, logger)
	q := offline.New(db, session.Session{SiteID: "main", UserID: 1}, net, logger)
	api := remotetest.New(1)
	return &fixture{
		db:     db,
		sender: NewSender(q, api, net, b, logger),
		queue:  q,
		api:    api,
		net:    net,
		bus:    b,
	}
}

func TestSubmitOnlineSends(t *testing.T) {
	f := newFixture(t)
	ch, unsub := f.bus.Subscribe("message.", 10)
	defer unsub()
	conv := target.ForConversation(7)

	res, err := f.sender.Submit(context.Background(), conv, "hi", nil)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	require.NotNil(t, res.Message)
	assert.Nil(t, res.Queued)
	assert.NotEmpty(t, res.ClientID)
	assert.Len(t, f.api.Messages(conv), 1)

	select {
	case evt := <-ch:
		assert.Equal(t, bus.KindMessageSent, evt.Kind)
		assert.Equal(t, conv, evt.Target)
	case <-time.After(time.Second):
		t.Fatal("no message.sent event")
	}
}

func TestSubmitOfflineQueuesWithoutNetwork(t *testing.T) {
	f := newFixture(t)
	f.net.SetOnline(false)
	peer := target.ForUser(42)

	res, err := f.sender.Submit(context.Background(), peer, "hi", nil)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	require.NotNil(t, res.Queued)
	assert.True(t, res.Queued.DeviceOffline)
	assert.Empty(t, f.api.Sends(), "offline submit must not touch the network")

	queued, err := f.queue.List(peer)
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}

func TestSubmitQueuesBehindOlderMessages(t *testing.T) {
	f := newFixture(t)
	conv := target.ForConversation(7)
	_, err := f.queue.Enqueue(conv, "older", nil)
	require.NoError(t, err)

	res, err := f.sender.Submit(context.Background(), conv, "newer", &offline.Snapshot{Name: "Team"})
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Empty(t, f.api.Sends())

	queued, _ := f.queue.List(conv)
	require.Len(t, queued, 2)
	assert.Equal(t, "newer", queued[1].Text)
	assert.Equal(t, "Team", queued[1].Snapshot.Name)
}

func TestSubmitTransportErrorQueues(t *testing.T) {
	f := newFixture(t)
	f.api.SendHook = func(context.Context, target.Target, string) error {
		return errors.New("connection reset")
	}
	peer := target.ForUser(42)

	res, err := f.sender.Submit(context.Background(), peer, "hi", nil)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	require.NotNil(t, res.Queued)
	assert.False(t, res.Queued.DeviceOffline)
	assert.Len(t, f.api.Sends(), 1)
}

func TestSubmitBusinessErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	f.api.SendHook = func(context.Context, target.Target, string) error {
		return &remote.Error{Code: "messagingdisabled", Message: "Messaging is disabled"}
	}
	peer := target.ForUser(42)

	res, err := f.sender.Submit(context.Background(), peer, "hi", nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, remote.IsBusinessError(err))

	has, _ := f.queue.HasMessages(peer)
	assert.False(t, has, "rejected message must not be queued")
}

func TestSubmitInvalidTarget(t *testing.T) {
	f := newFixture(t)
	_, err := f.sender.Submit(context.Background(), target.ForUser(0), "hi", nil)
	assert.Error(t, err)
}

func TestSubmitFailsWhenQueueUnreadable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Close())

	res, err := f.sender.Submit(context.Background(), target.ForConversation(7), "hi", nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Empty(t, f.api.Sends(), "nothing is sent past a failed queue check")
}
