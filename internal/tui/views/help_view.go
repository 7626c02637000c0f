package views

import (
	"fmt"

	"github.com/matheus3301/msgsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Crumb implements Component.
func (hv *HelpView) Crumb() ui.Crumb { return ui.Crumb{Label: "Help"} }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := colorHex(hv.theme.MenuKeyColor)
	key := func(k string) string { return fmt.Sprintf("[%s]%s[-:-:-]", kc, k) }

	help := `
  [::b]Global Keys[-:-:-]

  ` + key(":") + `      Command mode         ` + key("Esc") + `    Cancel / Go back
  ` + key("s") + `      Sync queued messages ` + key("?") + `      Help
  ` + key("q") + `      Quit                 ` + key("Ctrl-C") + ` Quit immediately

  [::b]Queue[-:-:-]

  ` + key("Enter") + `  Open the discussion  ` + key("/") + `      Filter
  ` + key("1-9") + `    Open the Nth row     ` + key("0") + `      Clear filter

  [::b]Discussion[-:-:-]

  ` + key("i") + `      Focus composer       ` + key("Enter") + `  Send (in composer)
  ` + key("r") + `      Refresh from site    ` + key("p") + `      Load earlier messages
  ` + key("Esc") + `    Leave composer or close the discussion

  Messages sent while offline are shown as [::b]queued[-:-:-] and go out on the
  next sync, automatically when the connection comes back.

  [::b]Commands (: mode)[-:-:-]

  ` + key(":open conversation:<id>") + ` / ` + key(":o c<id>") + `   Open a conversation
  ` + key(":open user:<id>") + ` / ` + key(":o u<id>") + `           Message a user directly
  ` + key(":sync") + `     Sync the open discussion, or every queue
  ` + key(":more") + `     Load earlier messages
  ` + key(":queue") + `    Back to the queue
  ` + key(":help") + ` / ` + key(":h") + `   Show this help
  ` + key(":quit") + ` / ` + key(":q") + `   Quit application
`
	_, _ = fmt.Fprint(hv, help)
}
