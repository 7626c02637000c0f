// Package remotetest provides an in-memory remote.API for tests.
package remotetest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/msgsync/internal/remote"
	"github.com/matheus3301/msgsync/internal/target"
)

// SendCall records one Send invocation.
type SendCall struct {
	Target target.Target
	Text   string
}

// Fake is a scriptable in-memory server. The zero value is not usable; use New.
type Fake struct {
	mu            sync.Mutex
	userID        int64
	nextID        int64
	messages      map[target.Target][]remote.Message
	conversations map[int64]*remote.Conversation
	names         map[int64]string

	sends     []SendCall
	fetches   []remote.FetchOptions
	markReads []target.Target

	// SendHook, when set, runs before a send is accepted. A non-nil error
	// is returned to the caller and the message is not stored.
	SendHook func(ctx context.Context, t target.Target, text string) error
	// FetchHook is the FetchMessages equivalent of SendHook.
	FetchHook func(ctx context.Context, t target.Target, opts remote.FetchOptions) error
	// Now stamps sent messages.
	Now func() time.Time
}

// New creates a fake server acting for userID.
func New(userID int64) *Fake {
	return &Fake{
		userID:        userID,
		nextID:        1000,
		messages:      make(map[target.Target][]remote.Message),
		conversations: make(map[int64]*remote.Conversation),
		names:         make(map[int64]string),
		Now:           time.Now,
	}
}

var _ remote.API = (*Fake)(nil)

// AddMessage seeds a confirmed message and returns it.
func (f *Fake) AddMessage(t target.Target, senderID int64, text string, createdAt int64) remote.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := remote.Message{ID: f.nextID, SenderID: senderID, Text: text, CreatedAt: createdAt}
	if t.IsConversation() {
		m.ConversationID = t.ID
	}
	f.messages[t] = append(f.messages[t], m)
	return m
}

// SetRead flags the stored messages of t with the given ids as read.
func (f *Fake) SetRead(t target.Target, ids ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setRead(t, func(m remote.Message) bool { return slices.Contains(ids, m.ID) })
}

func (f *Fake) setRead(t target.Target, match func(remote.Message) bool) {
	msgs := f.messages[t]
	for i := range msgs {
		if match(msgs[i]) {
			msgs[i].Read = true
		}
	}
}

// SetConversation registers a conversation for FetchConversation.
func (f *Fake) SetConversation(c *remote.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[c.ID] = c
}

// SetUserName registers a user's full name.
func (f *Fake) SetUserName(id int64, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names[id] = name
}

// Messages returns the stored messages of t in insertion order.
func (f *Fake) Messages(t target.Target) []remote.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Message(nil), f.messages[t]...)
}

// Sends returns every Send call, including rejected ones.
func (f *Fake) Sends() []SendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SendCall(nil), f.sends...)
}

// Fetches returns the options of every FetchMessages call.
func (f *Fake) Fetches() []remote.FetchOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.FetchOptions(nil), f.fetches...)
}

// MarkReads returns the targets passed to MarkRead.
func (f *Fake) MarkReads() []target.Target {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]target.Target(nil), f.markReads...)
}

// Send implements remote.API.
func (f *Fake) Send(ctx context.Context, t target.Target, text string) (*remote.Message, error) {
	f.mu.Lock()
	f.sends = append(f.sends, SendCall{Target: t, Text: text})
	hook := f.SendHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, t, text); err != nil {
			return nil, err
		}
	}
	// The server stores plain text as a paragraph.
	stored := text
	if !strings.HasPrefix(text, "<") {
		stored = "<p>" + text + "</p>"
	}
	m := f.AddMessage(t, f.userID, stored, f.Now().UnixMilli())
	return &m, nil
}

// FetchMessages implements remote.API.
func (f *Fake) FetchMessages(ctx context.Context, t target.Target, opts remote.FetchOptions) (*remote.Page, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, opts)
	hook := f.FetchHook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, t, opts); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var all []remote.Message
	for _, m := range f.messages[t] {
		if opts.TimeFrom > 0 && m.CreatedAt < opts.TimeFrom {
			continue
		}
		if opts.OnlyFromMe && m.SenderID != f.userID {
			continue
		}
		all = append(all, m)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt != all[j].CreatedAt {
			return all[i].CreatedAt > all[j].CreatedAt
		}
		return all[i].ID > all[j].ID
	})

	page := &remote.Page{}
	if opts.Offset < len(all) {
		all = all[opts.Offset:]
	} else {
		all = nil
	}
	if opts.Limit > 0 && len(all) > opts.Limit {
		page.CanLoadMore = true
		all = all[:opts.Limit]
	}
	page.Messages = all
	if c, ok := f.conversations[t.ID]; ok && t.IsConversation() {
		page.Members = c.Members
	}
	return page, nil
}

// FetchConversation implements remote.API.
func (f *Fake) FetchConversation(_ context.Context, id int64) (*remote.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, &remote.Error{Code: "invalidconversation", Message: fmt.Sprintf("conversation %d not found", id)}
	}
	cp := *c
	return &cp, nil
}

// FetchUserName implements remote.API.
func (f *Fake) FetchUserName(_ context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.names[userID]
	if !ok {
		return "", &remote.Error{Code: "invaliduser", Message: "user not found"}
	}
	return name, nil
}

// MarkRead implements remote.API.
func (f *Fake) MarkRead(_ context.Context, t target.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, t)
	f.setRead(t, func(m remote.Message) bool { return m.SenderID != f.userID })
	return nil
}
