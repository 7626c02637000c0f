package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// flashTTL is how long each level stays on screen.
var flashTTL = map[FlashLevel]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

// FlashMessage is a flash notification. Repeats counts how often the same
// text came in while it was still showing, e.g. a rejection reported by
// every background sync.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Repeats int
	Expires time.Time
}

// FlashModel holds the current notification of the TUI.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	now     func() time.Time
	watchCh chan FlashMessage
}

// NewFlashModel creates a new flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		now:     time.Now,
		watchCh: make(chan FlashMessage, 8),
	}
}

// Info shows a status message.
func (f *FlashModel) Info(msg string) { f.set(msg, FlashInfo) }

// Warn shows a warning, such as a queued message the server rejected.
func (f *FlashModel) Warn(msg string) { f.set(msg, FlashWarn) }

// Err shows err. A nil error is ignored.
func (f *FlashModel) Err(err error) {
	if err == nil {
		return
	}
	f.set(err.Error(), FlashErr)
}

// set keeps messages on one line; server warnings may carry newlines.
func (f *FlashModel) set(msg string, level FlashLevel) {
	msg = strings.Join(strings.Fields(msg), " ")
	now := f.now()

	f.mu.Lock()
	fm := FlashMessage{Text: msg, Level: level, Expires: now.Add(flashTTL[level])}
	if cur := f.current; cur.Text == msg && cur.Level == level && now.Before(cur.Expires) {
		fm.Repeats = cur.Repeats + 1
	}
	f.current = fm
	f.mu.Unlock()

	select {
	case f.watchCh <- fm:
	default:
	}
}

// Get returns the current text, or "" once it expired.
func (f *FlashModel) Get() string {
	if m := f.GetMessage(); m != nil {
		return m.Text
	}
	return ""
}

// GetMessage returns the current message, or nil once it expired.
func (f *FlashModel) GetMessage() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || f.now().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Watch returns a channel that receives flash messages.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar is the bottom line showing the current flash message.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders msg, or clears the bar for nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}
	color := fb.theme.FlashInfoColor
	switch msg.Level {
	case FlashWarn:
		color = fb.theme.FlashWarnColor
	case FlashErr:
		color = fb.theme.FlashErrColor
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", colorName(color), tview.Escape(msg.Text))
	if msg.Repeats > 0 {
		_, _ = fmt.Fprintf(fb, " [%s](x%d)[-]", colorName(fb.theme.CounterColor), msg.Repeats+1)
	}
}
