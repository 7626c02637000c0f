// Package target names the unit every queue, sync and transcript operation
// works on: a conversation, or a peer user in one-to-one legacy mode.
package target

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tells which id space a Target lives in.
type Kind string

const (
	Conversation Kind = "conversation"
	User         Kind = "user"
)

// Target is comparable and can be used as a map key.
type Target struct {
	Kind Kind
	ID   int64
}

// ForConversation returns the target of a conversation.
func ForConversation(id int64) Target {
	return Target{Kind: Conversation, ID: id}
}

// ForUser returns the target of a one-to-one discussion with a peer.
func ForUser(id int64) Target {
	return Target{Kind: User, ID: id}
}

// IsZero reports whether t is unset.
func (t Target) IsZero() bool {
	return t.Kind == "" && t.ID == 0
}

// IsConversation reports whether t addresses a conversation.
func (t Target) IsConversation() bool {
	return t.Kind == Conversation
}

// Valid reports whether t has a known kind and a positive id.
func (t Target) Valid() bool {
	return (t.Kind == Conversation || t.Kind == User) && t.ID > 0
}

// String renders t as "conversation:<id>" or "user:<id>".
func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}

// Parse is the inverse of String.
func Parse(s string) (Target, error) {
	kind, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return Target{}, fmt.Errorf("invalid target %q: want kind:id", s)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target id %q: %w", rawID, err)
	}
	t := Target{Kind: Kind(kind), ID: id}
	if !t.Valid() {
		return Target{}, fmt.Errorf("invalid target %q", s)
	}
	return t, nil
}
