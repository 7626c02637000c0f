// Package remote talks to the messaging server.
package remote

import (
	"context"

	"github.com/matheus3301/msgsync/internal/target"
)

// Message is a message confirmed by the server.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Text           string
	CreatedAt      int64 // unix ms
	// Read reports whether the recipient has seen it. Only one-to-one
	// fetches fill it in; conversation history carries an unread count
	// instead.
	Read bool
}

// Member is a conversation participant.
type Member struct {
	ID       int64
	FullName string
}

// ConversationType distinguishes individual from group conversations.
type ConversationType int

const (
	Individual ConversationType = 1
	Group      ConversationType = 2
	Self       ConversationType = 3
)

// Conversation describes a conversation as the server sees it.
type Conversation struct {
	ID          int64
	Type        ConversationType
	Name        string
	Subtitle    string
	ImageURL    string
	IsFavourite bool
	IsMuted     bool
	UnreadCount int
	Members     []Member
}

// IsGroup reports whether c has more than two parties.
func (c *Conversation) IsGroup() bool {
	return c != nil && c.Type == Group
}

// FetchOptions selects a window of messages. Results are newest first.
// TimeFrom, when set, excludes messages created before it (unix ms).
type FetchOptions struct {
	Offset   int
	Limit    int
	TimeFrom int64
	// OnlyFromMe restricts the result to messages sent by the current user.
	OnlyFromMe bool
}

// Page is one window of messages, newest first.
type Page struct {
	Messages    []Message
	Members     []Member
	CanLoadMore bool
}

// API is the set of server operations the engine depends on.
type API interface {
	// Send delivers one message. A *Error return means the server rejected
	// it; any other error means it may not have arrived.
	Send(ctx context.Context, t target.Target, text string) (*Message, error)
	FetchMessages(ctx context.Context, t target.Target, opts FetchOptions) (*Page, error)
	FetchConversation(ctx context.Context, id int64) (*Conversation, error)
	FetchUserName(ctx context.Context, userID int64) (string, error)
	MarkRead(ctx context.Context, t target.Target) error
}
