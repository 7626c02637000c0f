package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/msgsync/internal/api"
	"github.com/matheus3301/msgsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// TranscriptView displays one discussion and a composer.
type TranscriptView struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	userID   int64
	view     *api.ViewReply
	onSend   func(text string)
}

// NewTranscriptView creates a new transcript view.
func NewTranscriptView(theme *ui.Theme) *TranscriptView {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	tv := &TranscriptView{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || tv.onSend == nil {
			return
		}
		if text := strings.TrimSpace(composer.GetText()); text != "" {
			tv.onSend(text)
			composer.SetText("")
		}
	})

	return tv
}

// Crumb implements Component. It names the open discussion and counts
// messages that have not reached the server yet.
func (tv *TranscriptView) Crumb() ui.Crumb {
	c := ui.Crumb{Label: "Messages"}
	if tv.view == nil {
		return c
	}
	if tv.view.Title != "" {
		c.Label = tv.view.Title
	}
	pending := 0
	for _, m := range tv.view.Messages {
		if m.Pending {
			pending++
		}
	}
	if pending > 0 {
		c.Badge = fmt.Sprintf("%d pending", pending)
	}
	return c
}

// Hints implements Component.
func (tv *TranscriptView) Hints() []ui.MenuHint {
	hints := []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "r", Description: "Refresh"},
		{Key: "s", Description: "Sync"},
	}
	if tv.view != nil && tv.view.CanLoadMore {
		hints = append(hints, ui.MenuHint{Key: "p", Description: "Earlier"})
	}
	return append(hints, ui.MenuHint{Key: "Esc", Description: "Back"})
}

// SetUserID tells the view which sender is the local user.
func (tv *TranscriptView) SetUserID(id int64) {
	tv.userID = id
}

// SetOnSend sets the callback when a message is submitted.
func (tv *TranscriptView) SetOnSend(fn func(text string)) {
	tv.onSend = fn
}

// Update renders the discussion. Nil clears the view.
func (tv *TranscriptView) Update(v *api.ViewReply) {
	tv.view = v
	tv.messages.Clear()
	if v == nil {
		tv.messages.SetTitle(" Messages ")
		return
	}
	tv.messages.SetTitle(transcriptTitle(v))
	_, _ = fmt.Fprint(tv.messages, renderTranscript(tv.theme, v, tv.userID))
	tv.messages.ScrollToEnd()
}

// Messages returns the messages text view (for focus management).
func (tv *TranscriptView) Messages() *tview.TextView {
	return tv.messages
}

// Composer returns the composer input field (for focus management).
func (tv *TranscriptView) Composer() *tview.InputField {
	return tv.composer
}

func transcriptTitle(v *api.ViewReply) string {
	title := v.Title
	if title == "" {
		title = v.Target
	}
	title = display(title)
	if v.IsGroup {
		title += " (group)"
	}
	if v.NewMessages > 0 {
		title += fmt.Sprintf(" [+%d]", v.NewMessages)
	}
	if !v.Polling {
		title += " paused"
	}
	return " " + title + " "
}

// renderTranscript lays out messages oldest first using the display flags
// computed by the daemon.
func renderTranscript(theme *ui.Theme, v *api.ViewReply, userID int64) string {
	var b strings.Builder
	dateColor := colorHex(theme.DateColor)
	pendingColor := colorHex(theme.PendingColor)
	ownColor := colorHex(theme.OwnMessageColor)

	if v.CanLoadMore {
		fmt.Fprintf(&b, "[%s]  p: load earlier messages[-]\n\n", dateColor)
	}
	if len(v.Messages) == 0 {
		fmt.Fprintf(&b, "[%s]  No messages yet[-]\n", dateColor)
		return b.String()
	}

	for _, m := range v.Messages {
		if m.ShowDate {
			fmt.Fprintf(&b, "[%s]── %s ──[-]\n", dateColor, formatDay(m.CreatedAt))
		}
		if v.UnreadFrom > 0 && m.ID == v.UnreadFrom {
			fmt.Fprintf(&b, "[%s::b]── unread ──[-:-:-]\n", pendingColor)
		}
		if m.ShowUserData {
			fmt.Fprintf(&b, "[::b]%s[-:-:-]\n", display(m.Sender))
		}

		text := display(m.Text)
		if m.SenderID == userID {
			text = fmt.Sprintf("[%s]%s[-]", ownColor, text)
		}
		fmt.Fprintf(&b, "%s [::d]%s[-:-:-]", text, formatTimestamp(m.CreatedAt))
		switch {
		case m.Sending:
			b.WriteString(" [::d]sending...[-:-:-]")
		case m.Pending:
			fmt.Fprintf(&b, " [%s]queued[-]", pendingColor)
		}
		b.WriteString("\n")
		if m.ShowTail {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func colorHex(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
