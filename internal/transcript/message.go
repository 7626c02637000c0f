// Package transcript keeps the ordered, de-duplicated list of messages a
// discussion view shows, merging server pages, queued messages and
// in-flight sends.
package transcript

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/matheus3301/msgsync/internal/offline"
	"github.com/matheus3301/msgsync/internal/remote"
)

// Message is one transcript entry. ID is the server id for confirmed
// messages, zero for queued ones and negative for in-flight sends.
type Message struct {
	ID        int64
	SenderID  int64
	Text      string
	CreatedAt int64 // unix ms
	Pending   bool
	Sending   bool
	// Read is only known for one-to-one history.
	Read bool

	Hash         string
	ShowDate     bool
	ShowUserData bool
	ShowTail     bool

	seq int64
}

// FromConfirmed adapts a server message.
func FromConfirmed(m remote.Message) Message {
	return Message{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		Read:      m.Read,
	}
}

// FromQueued adapts a queued message. It is pending until synced.
func FromQueued(m offline.Message) Message {
	return Message{
		SenderID:  m.SenderID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		Pending:   true,
	}
}

// Hash identifies m across merges. Server text may carry per-request noise,
// so the id is preferred and the text only used for messages without one.
func Hash(m Message) string {
	key := m.Text
	if m.ID != 0 {
		key = strconv.FormatInt(m.ID, 10)
	}
	return strconv.FormatUint(xxhash.Sum64String(key), 16) +
		"#" + strconv.FormatInt(m.CreatedAt, 10) +
		"#" + strconv.FormatInt(m.SenderID, 10)
}
