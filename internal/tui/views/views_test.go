package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/msgsync/internal/api"
	"github.com/matheus3301/msgsync/internal/tui/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>Hello</p><p>world</p>", "Hello\nworld"},
		{"a<br>b<br/>c", "a\nb\nc"},
		{"Tom &amp; Jerry &lt;3", "Tom & Jerry <3"},
		{"<div><b>bold</b></div>", "bold"},
		{"👍🏻", "👍"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, plainText(tt.in), tt.in)
	}
	assert.Equal(t, "[red[]", display("[red]"))
}

func TestRenderTranscript(t *testing.T) {
	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local).UnixMilli()
	v := &api.ViewReply{
		Title:       "Team",
		IsGroup:     true,
		CanLoadMore: true,
		UnreadFrom:  11,
		Messages: []api.TranscriptMessage{
			{ID: 10, SenderID: 5, Sender: "Ann", Text: "<p>hi</p>", CreatedAt: day, ShowDate: true, ShowUserData: true, ShowTail: true},
			{ID: 11, SenderID: 5, Text: "again", CreatedAt: day + 1000},
			{SenderID: 1, Text: "on my way", CreatedAt: day + 2000, Pending: true, ShowTail: true},
		},
	}
	out := renderTranscript(ui.DefaultTheme(), v, 1)

	assert.Contains(t, out, "load earlier messages")
	assert.Contains(t, out, "Monday, 2 March 2026")
	assert.Contains(t, out, "[::b]Ann[-:-:-]")
	assert.Contains(t, out, "── unread ──")
	assert.Contains(t, out, "queued")
	assert.NotContains(t, out, "<p>")
	assert.Equal(t, 1, strings.Count(out, "Ann"))

	hi := strings.Index(out, "hi ")
	unread := strings.Index(out, "unread")
	again := strings.Index(out, "again")
	require.True(t, hi >= 0 && unread > hi && again > unread, "messages out of order:\n%s", out)
}

func TestRenderEmptyTranscript(t *testing.T) {
	out := renderTranscript(ui.DefaultTheme(), &api.ViewReply{Title: "Bob"}, 1)
	assert.Contains(t, out, "No messages yet")
}

func TestTranscriptTitle(t *testing.T) {
	assert.Equal(t, " Team (group) [+2] ", transcriptTitle(&api.ViewReply{Title: "Team", IsGroup: true, NewMessages: 2, Polling: true}))
	assert.Equal(t, " user:42 paused ", transcriptTitle(&api.ViewReply{Target: "user:42"}))
}

func TestQueueViewFilter(t *testing.T) {
	qv := NewQueueView(ui.DefaultTheme())
	qv.Update([]api.QueuedMessage{
		{Target: "conversation:7", Name: "Team", Text: "standup?"},
		{Target: "user:42", Text: "<p>lunch</p>", DeviceOffline: true},
		{Target: "user:43", Text: "hello"},
	})
	assert.Equal(t, "user:42", qv.TargetByIndex(2))
	assert.Equal(t, "", qv.TargetByIndex(4))

	qv.SetFilter("LUNCH")
	assert.Equal(t, "user:42", qv.TargetByIndex(1))
	assert.Equal(t, "", qv.TargetByIndex(2))
	assert.Contains(t, qv.GetTitle(), "(1/3)")

	qv.SetFilter("team")
	assert.Equal(t, "conversation:7", qv.TargetByIndex(1))

	qv.ClearFilter()
	assert.Equal(t, "user:43", qv.TargetByIndex(3))
	assert.Equal(t, " Queue (3) ", qv.GetTitle())
}
