// Package outbox decides, for each message the user submits, whether it is
// sent right away or parked in the offline queue.
package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/msgsync/internal/bus"
	"github.com/matheus3301/msgsync/internal/logging"
	"github.com/matheus3301/msgsync/internal/offline"
	"github.com/matheus3301/msgsync/internal/remote"
	"github.com/matheus3301/msgsync/internal/target"
	"go.uber.org/zap"
)

// Connectivity reports whether the device currently has network.
type Connectivity interface {
	IsOnline() bool
}

// Result describes what happened to a submitted message. Exactly one of
// Message and Queued is set.
type Result struct {
	ClientID string
	Sent     bool
	Message  *remote.Message
	Queued   *offline.Message
}

// Sender routes submitted messages.
type Sender struct {
	queue  *offline.Queue
	api    remote.API
	net    Connectivity
	bus    *bus.Bus
	logger *zap.Logger
}

// NewSender creates a new sender.
func NewSender(queue *offline.Queue, api remote.API, net Connectivity, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		queue:  queue,
		api:    api,
		net:    net,
		bus:    b,
		logger: logging.OrNop(logger),
	}
}

// Submit sends text to t, or queues it when the device is offline, when
// older messages for t are still queued (to keep order), or when the send
// fails for a transport reason. A business error from the server is
// returned and nothing is queued. snap is stored with queued conversation
// messages.
func (s *Sender) Submit(ctx context.Context, t target.Target, text string, snap *offline.Snapshot) (*Result, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("submit: invalid target %s", t)
	}
	clientID := uuid.NewString()
	log := s.logger.With(zap.String("client_msg_id", clientID), zap.Stringer("target", t))

	if !s.net.IsOnline() {
		return s.store(log, clientID, t, text, snap, "offline")
	}

	has, err := s.queue.HasMessages(t)
	if err != nil {
		return nil, fmt.Errorf("submit: check queue: %w", err)
	}
	if has {
		return s.store(log, clientID, t, text, snap, "older messages queued")
	}

	msg, err := s.api.Send(ctx, t, text)
	if err != nil {
		if remote.IsBusinessError(err) {
			log.Warn("message rejected", zap.Error(err))
			return nil, err
		}
		log.Info("send failed, queueing", zap.Error(err))
		return s.store(log, clientID, t, text, snap, "transport error")
	}

	log.Info("message sent", zap.Int64("message_id", msg.ID))
	if s.bus != nil {
		s.bus.Publish(t, bus.MessageSent{MessageID: msg.ID, Text: text})
	}
	return &Result{ClientID: clientID, Sent: true, Message: msg}, nil
}

func (s *Sender) store(log *zap.Logger, clientID string, t target.Target, text string, snap *offline.Snapshot, reason string) (*Result, error) {
	m, err := s.queue.Enqueue(t, text, snap)
	if err != nil {
		return nil, err
	}
	log.Info("message queued", zap.String("reason", reason), zap.Int64("created_at", m.CreatedAt))
	if s.bus != nil {
		s.bus.Publish(t, bus.MessageQueued{Text: text, Timestamp: m.CreatedAt})
	}
	return &Result{ClientID: clientID, Queued: &m}, nil
}
