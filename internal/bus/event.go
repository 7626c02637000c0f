package bus

import (
	"time"

	"github.com/matheus3301/msgsync/internal/target"
)

// Event kinds. Subscribers filter by prefix, e.g. "discussion.".
const (
	KindAutoSynced     = "sync.auto_synced"
	KindNewMessages    = "discussion.new_messages"
	KindLastMessage    = "discussion.last_message"
	KindReadWatermark  = "discussion.read_watermark"
	KindTranscript     = "discussion.updated"
	KindReadChanged    = "read.changed"
	KindNetworkOnline  = "network.online"
	KindNetworkOffline = "network.offline"
	KindMessageQueued  = "message.queued"
	KindMessageSent    = "message.sent"
	KindSyncWarnings   = "sync.warnings"
)

// Payload is implemented by every typed event body.
type Payload interface {
	Kind() string
}

// Event represents a domain event published on the bus.
// Target is zero for events that are not about one conversation.
type Event struct {
	Kind      string
	Target    target.Target
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload
}

// AutoSynced is published after a background sync drained a target.
type AutoSynced struct {
	Warnings []string `json:"warnings"`
}

func (AutoSynced) Kind() string { return KindAutoSynced }

// SyncWarnings carries the user-facing warnings of one sync batch.
type SyncWarnings struct {
	Warnings []string `json:"warnings"`
}

func (SyncWarnings) Kind() string { return KindSyncWarnings }

// NewMessages reports how many messages from other users a merge added.
type NewMessages struct {
	Delta int `json:"delta"`
}

func (NewMessages) Kind() string { return KindNewMessages }

// LastMessage is the newest message of a transcript after a merge.
// Text is empty and Timestamp zero when the transcript became empty.
type LastMessage struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	SenderID  int64  `json:"sender_id"`
}

func (LastMessage) Kind() string { return KindLastMessage }

// ReadWatermark carries the id of the first unread message, or -1 for none.
type ReadWatermark struct {
	MessageID int64 `json:"message_id"`
}

func (ReadWatermark) Kind() string { return KindReadWatermark }

// TranscriptUpdated tells views to re-read the transcript.
type TranscriptUpdated struct{}

func (TranscriptUpdated) Kind() string { return KindTranscript }

// ReadChanged is published after messages were marked read on the server.
type ReadChanged struct{}

func (ReadChanged) Kind() string { return KindReadChanged }

// NetworkOnline is published when connectivity is restored.
type NetworkOnline struct{}

func (NetworkOnline) Kind() string { return KindNetworkOnline }

// NetworkOffline is published when connectivity is lost.
type NetworkOffline struct{}

func (NetworkOffline) Kind() string { return KindNetworkOffline }

// MessageQueued is published when a submitted message was stored offline.
type MessageQueued struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func (MessageQueued) Kind() string { return KindMessageQueued }

// MessageSent is published when a submitted message reached the server.
type MessageSent struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

func (MessageSent) Kind() string { return KindMessageSent }
