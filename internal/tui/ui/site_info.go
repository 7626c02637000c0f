package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// SiteData holds what the header shows about the daemon.
type SiteData struct {
	Site    string
	UserID  int64
	Network string
	Queued  int
	Views   int
	Uptime  time.Duration
}

// SiteInfo displays site and connection state in the header.
type SiteInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSiteInfo creates a new site info panel.
func NewSiteInfo(theme *Theme) *SiteInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SiteInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the site info. A nil data means the daemon has not
// answered yet.
func (si *SiteInfo) Update(data *SiteData) {
	si.Clear()
	if data == nil {
		_, _ = fmt.Fprintf(si, "[%s]connecting...[-]", colorName(si.theme.FgColor))
		return
	}

	label := colorName(si.theme.FgColor)
	value := colorName(si.theme.CounterColor)

	netColor := colorName(si.theme.OnlineColor)
	if !strings.EqualFold(data.Network, "online") {
		netColor = colorName(si.theme.OfflineColor)
	}
	queuedColor := value
	if data.Queued > 0 {
		queuedColor = colorName(si.theme.PendingColor)
	}

	_, _ = fmt.Fprintf(si,
		"[%s::b]Site:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%d[-]\n"+
			"[%s::b]Network:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Queued:[-:-:-]  [%s]%d[-]\n"+
			"[%s::b]Views:[-:-:-]   [%s]%d[-]\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		label, value, tview.Escape(data.Site),
		label, value, data.UserID,
		label, netColor, strings.ToUpper(data.Network),
		label, queuedColor, data.Queued,
		label, value, data.Views,
		label, value, formatDuration(data.Uptime),
	)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
