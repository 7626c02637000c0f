package store

// DirectMessage is a queued message to a peer user.
type DirectMessage struct {
	Seq           int64
	ToUserID      int64
	FromUserID    int64
	Body          string
	CreatedAt     int64 // unix ms
	DeviceOffline bool
}

// ConversationMessage is a queued message to a conversation. Conversation
// holds the JSON snapshot of the conversation taken when the message was
// queued, so listings work without network.
type ConversationMessage struct {
	Seq            int64
	ConversationID int64
	FromUserID     int64
	Body           string
	CreatedAt      int64 // unix ms
	DeviceOffline  bool
	Conversation   string
}

// MessageKey identifies a queued message inside one queue: the recipient
// id (user or conversation), the body and the creation timestamp.
type MessageKey struct {
	RecipientID int64
	Body        string
	CreatedAt   int64
}
