package api

import (
	"strconv"

	"github.com/matheus3301/msgsync/internal/discussion"
	"github.com/matheus3301/msgsync/internal/offline"
	"github.com/matheus3301/msgsync/internal/sync"
	"github.com/matheus3301/msgsync/internal/transcript"
)

// Wire types. They travel as google.protobuf.Struct, so every field is
// plain JSON. Targets use the "conversation:7" / "user:42" form.

type StatusRequest struct{}

type TargetStatus struct {
	Target     string `json:"target"`
	Queued     int    `json:"queued"`
	Syncing    bool   `json:"syncing"`
	LastSyncMs int64  `json:"last_sync_ms,omitempty"`
}

type StatusReply struct {
	SiteID  string         `json:"site_id"`
	UserID  int64          `json:"user_id"`
	Network string         `json:"network"`
	Queued  int            `json:"queued"`
	Views   int            `json:"views"`
	Targets []TargetStatus `json:"targets,omitempty"`
}

type SubmitRequest struct {
	Target string `json:"target"`
	Text   string `json:"text"`
	// View routes the submit through an open discussion so it shows up
	// optimistically there.
	View string `json:"view,omitempty"`
}

type SubmitReply struct {
	ClientID  string `json:"client_id"`
	Sent      bool   `json:"sent"`
	MessageID int64  `json:"message_id,omitempty"`
	Queued    bool   `json:"queued"`
	CreatedAt int64  `json:"created_at"`
}

type SyncNowRequest struct {
	Target string `json:"target"`
}

type SyncAllRequest struct {
	OnlyDeviceOffline bool `json:"only_device_offline,omitempty"`
}

type SyncResult struct {
	Target   string   `json:"target"`
	Sent     int      `json:"sent"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings,omitempty"`
}

type SyncReply struct {
	Results []SyncResult `json:"results,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type ListQueuedRequest struct{}

type QueuedMessage struct {
	Target        string `json:"target"`
	Text          string `json:"text"`
	CreatedAt     int64  `json:"created_at"`
	DeviceOffline bool   `json:"device_offline"`
	Name          string `json:"name,omitempty"`
}

type ListQueuedReply struct {
	Messages []QueuedMessage `json:"messages,omitempty"`
}

type OpenDiscussionRequest struct {
	Target string `json:"target"`
}

type ViewRequest struct {
	View string `json:"view"`
	// Refresh makes FetchTranscript hit the server before answering.
	Refresh bool `json:"refresh,omitempty"`
}

type SetForegroundRequest struct {
	View       string `json:"view"`
	Foreground bool   `json:"foreground"`
}

type TranscriptMessage struct {
	ID           int64  `json:"id,omitempty"`
	SenderID     int64  `json:"sender_id"`
	Sender       string `json:"sender,omitempty"`
	Text         string `json:"text"`
	CreatedAt    int64  `json:"created_at"`
	Pending      bool   `json:"pending,omitempty"`
	Sending      bool   `json:"sending,omitempty"`
	ShowDate     bool   `json:"show_date,omitempty"`
	ShowUserData bool   `json:"show_user_data,omitempty"`
	ShowTail     bool   `json:"show_tail,omitempty"`
}

type ViewReply struct {
	View        string              `json:"view"`
	Target      string              `json:"target"`
	Title       string              `json:"title"`
	IsGroup     bool                `json:"is_group"`
	CanLoadMore bool                `json:"can_load_more"`
	NewMessages int                 `json:"new_messages"`
	UnreadFrom  int64               `json:"unread_from"`
	Polling     bool                `json:"polling"`
	Messages    []TranscriptMessage `json:"messages,omitempty"`
}

type WatchRequest struct {
	// Prefix filters event kinds, e.g. "sync." or "discussion.". Empty
	// means everything.
	Prefix string `json:"prefix,omitempty"`
	Target string `json:"target,omitempty"`
}

type Envelope struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	Target       string         `json:"target,omitempty"`
	OccurredAtMs int64          `json:"occurred_at_ms"`
	Payload      map[string]any `json:"payload,omitempty"`
}

type Empty struct{}

func syncResult(r *sync.Result) SyncResult {
	return SyncResult{
		Target:   r.Target.String(),
		Sent:     r.Sent,
		Skipped:  r.Skipped,
		Warnings: r.Warnings,
	}
}

func queuedMessage(m offline.Message) QueuedMessage {
	qm := QueuedMessage{
		Target:        m.Target.String(),
		Text:          m.Text,
		CreatedAt:     m.CreatedAt,
		DeviceOffline: m.DeviceOffline,
	}
	if m.Snapshot != nil {
		qm.Name = m.Snapshot.Name
	}
	return qm
}

func viewReply(handle string, v discussion.View) ViewReply {
	out := ViewReply{
		View:        handle,
		Target:      v.Target.String(),
		Title:       v.Title,
		IsGroup:     v.IsGroup,
		CanLoadMore: v.CanLoadMore,
		NewMessages: v.NewMessages,
		UnreadFrom:  v.UnreadFrom,
		Polling:     v.Polling,
	}
	for _, m := range v.Messages {
		out.Messages = append(out.Messages, transcriptMessage(m, v.Members))
	}
	return out
}

func transcriptMessage(m transcript.Message, members map[int64]string) TranscriptMessage {
	name := members[m.SenderID]
	if name == "" && m.ShowUserData {
		name = "#" + strconv.FormatInt(m.SenderID, 10)
	}
	return TranscriptMessage{
		ID:           m.ID,
		SenderID:     m.SenderID,
		Sender:       name,
		Text:         m.Text,
		CreatedAt:    m.CreatedAt,
		Pending:      m.Pending,
		Sending:      m.Sending,
		ShowDate:     m.ShowDate,
		ShowUserData: m.ShowUserData,
		ShowTail:     m.ShowTail,
	}
}
