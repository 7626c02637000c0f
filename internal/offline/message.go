package offline

import (
	"encoding/json"

	"github.com/matheus3301/msgsync/internal/remote"
	"github.com/matheus3301/msgsync/internal/store"
	"github.com/matheus3301/msgsync/internal/target"
)

// Snapshot is the subset of a conversation kept with each queued message so
// listings can render it offline.
type Snapshot struct {
	Name     string `json:"name,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	ImageURL string `json:"imageurl,omitempty"`
	// Type is remote.Individual, Group or Self; zero when it was unknown
	// at queue time.
	Type        remote.ConversationType `json:"type,omitempty"`
	IsFavourite bool                    `json:"isfavourite,omitempty"`
}

// Message is a queued, not yet delivered message. Target.Kind selects the
// queue it lives in; Snapshot is only set for conversation messages.
type Message struct {
	Target        target.Target
	SenderID      int64
	Text          string
	CreatedAt     int64 // unix ms
	DeviceOffline bool
	Snapshot      *Snapshot
}

// Key returns the identity of m inside its queue.
func (m Message) Key() store.MessageKey {
	return store.MessageKey{RecipientID: m.Target.ID, Body: m.Text, CreatedAt: m.CreatedAt}
}

func fromDirect(r store.DirectMessage) Message {
	return Message{
		Target:        target.ForUser(r.ToUserID),
		SenderID:      r.FromUserID,
		Text:          r.Body,
		CreatedAt:     r.CreatedAt,
		DeviceOffline: r.DeviceOffline,
	}
}

func fromConversation(r store.ConversationMessage) Message {
	m := Message{
		Target:        target.ForConversation(r.ConversationID),
		SenderID:      r.FromUserID,
		Text:          r.Body,
		CreatedAt:     r.CreatedAt,
		DeviceOffline: r.DeviceOffline,
		Snapshot:      &Snapshot{},
	}
	// A corrupt snapshot only degrades listings; the message stays sendable.
	_ = json.Unmarshal([]byte(r.Conversation), m.Snapshot)
	return m
}
