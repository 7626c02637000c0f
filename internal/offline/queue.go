// Package offline persists messages that could not be delivered yet, one
// queue for peer users and one for conversations.
package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/msgsync/internal/logging"
	"github.com/matheus3301/msgsync/internal/session"
	"github.com/matheus3301/msgsync/internal/store"
	"github.com/matheus3301/msgsync/internal/target"
	"go.uber.org/zap"
)

// ErrInvalidTarget is returned for targets without a server id.
var ErrInvalidTarget = errors.New("offline: invalid target")

// Connectivity reports whether the device currently has network.
type Connectivity interface {
	IsOnline() bool
}

// Queue is the offline message store of one site.
type Queue struct {
	db     *store.DB
	userID int64
	net    Connectivity
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock replaces the clock used to stamp enqueued messages.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates the queue of sess. Messages are stamped as sent by sess.UserID.
func New(db *store.DB, sess session.Session, net Connectivity, logger *zap.Logger, opts ...Option) *Queue {
	q := &Queue{db: db, userID: sess.UserID, net: net, now: time.Now, logger: logging.OrNop(logger)}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue stores text for t, stamped with the current time. DeviceOffline
// records whether the device was offline at that moment. snap is ignored
// for user targets. A message with the same identity key already queued is
// kept as is and returned.
func (q *Queue) Enqueue(t target.Target, text string, snap *Snapshot) (Message, error) {
	if !t.Valid() {
		return Message{}, fmt.Errorf("%w: %s", ErrInvalidTarget, t)
	}
	m := Message{
		Target:        t,
		SenderID:      q.userID,
		Text:          text,
		CreatedAt:     q.now().UnixMilli(),
		DeviceOffline: q.net != nil && !q.net.IsOnline(),
	}

	var inserted bool
	var err error
	switch t.Kind {
	case target.Conversation:
		if snap == nil {
			snap = &Snapshot{}
		}
		m.Snapshot = snap
		raw, jerr := json.Marshal(snap)
		if jerr != nil {
			return Message{}, fmt.Errorf("encode snapshot: %w", jerr)
		}
		inserted, err = q.db.InsertConversationMessage(&store.ConversationMessage{
			ConversationID: t.ID,
			FromUserID:     m.SenderID,
			Body:           text,
			CreatedAt:      m.CreatedAt,
			DeviceOffline:  m.DeviceOffline,
			Conversation:   string(raw),
		})
	default:
		inserted, err = q.db.InsertDirectMessage(&store.DirectMessage{
			ToUserID:      t.ID,
			FromUserID:    m.SenderID,
			Body:          text,
			CreatedAt:     m.CreatedAt,
			DeviceOffline: m.DeviceOffline,
		})
	}
	if err != nil {
		return Message{}, fmt.Errorf("enqueue %s: %w", t, err)
	}
	if !inserted {
		q.logger.Warn("queued message with same identity already exists",
			zap.Stringer("target", t), zap.Int64("created_at", m.CreatedAt))
	}
	return m, nil
}

// List returns the messages queued for t in insertion order.
func (q *Queue) List(t target.Target) ([]Message, error) {
	var out []Message
	switch t.Kind {
	case target.Conversation:
		rows, err := q.db.ConversationMessages(t.ID)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", t, err)
		}
		for _, r := range rows {
			out = append(out, fromConversation(r))
		}
	case target.User:
		rows, err := q.db.DirectMessages(t.ID)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", t, err)
		}
		for _, r := range rows {
			out = append(out, fromDirect(r))
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, t)
	}
	return out, nil
}

// ListAll returns every queued message, conversations first.
func (q *Queue) ListAll() ([]Message, error) {
	return q.listAll(false)
}

// ListAllDeviceOffline returns every message that was queued, or failed to
// sync, while the device was offline.
func (q *Queue) ListAllDeviceOffline() ([]Message, error) {
	return q.listAll(true)
}

func (q *Queue) listAll(onlyDeviceOffline bool) ([]Message, error) {
	convs, err := q.db.AllConversationMessages(onlyDeviceOffline)
	if err != nil {
		return nil, fmt.Errorf("list conversation queue: %w", err)
	}
	direct, err := q.db.AllDirectMessages(onlyDeviceOffline)
	if err != nil {
		return nil, fmt.Errorf("list direct queue: %w", err)
	}
	out := make([]Message, 0, len(convs)+len(direct))
	for _, r := range convs {
		out = append(out, fromConversation(r))
	}
	for _, r := range direct {
		out = append(out, fromDirect(r))
	}
	return out, nil
}

// HasMessages reports whether anything is queued for t.
func (q *Queue) HasMessages(t target.Target) (bool, error) {
	var n int
	var err error
	switch t.Kind {
	case target.Conversation:
		n, err = q.db.CountConversationMessages(t.ID)
	case target.User:
		n, err = q.db.CountDirectMessages(t.ID)
	default:
		return false, fmt.Errorf("%w: %s", ErrInvalidTarget, t)
	}
	if err != nil {
		return false, fmt.Errorf("count %s: %w", t, err)
	}
	return n > 0, nil
}

// Delete removes m from its queue.
func (q *Queue) Delete(m Message) error {
	var err error
	if m.Target.IsConversation() {
		err = q.db.DeleteConversationMessage(m.Key())
	} else {
		err = q.db.DeleteDirectMessage(m.Key())
	}
	if err != nil {
		return fmt.Errorf("delete queued message for %s: %w", m.Target, err)
	}
	return nil
}

// SetDeviceOffline flags or unflags msgs in bulk.
func (q *Queue) SetDeviceOffline(msgs []Message, value bool) error {
	var convKeys, directKeys []store.MessageKey
	for _, m := range msgs {
		if m.Target.IsConversation() {
			convKeys = append(convKeys, m.Key())
		} else {
			directKeys = append(directKeys, m.Key())
		}
	}
	if err := q.db.SetConversationDeviceOffline(convKeys, value); err != nil {
		return fmt.Errorf("flag conversation messages: %w", err)
	}
	if err := q.db.SetDirectDeviceOffline(directKeys, value); err != nil {
		return fmt.Errorf("flag direct messages: %w", err)
	}
	return nil
}

// Targets returns the distinct targets of msgs in first-seen order.
func Targets(msgs []Message) []target.Target {
	seen := make(map[target.Target]bool)
	var out []target.Target
	for _, m := range msgs {
		if seen[m.Target] {
			continue
		}
		seen[m.Target] = true
		out = append(out, m.Target)
	}
	return out
}
