package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/msgsync/internal/api"
	"github.com/matheus3301/msgsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// QueueView lists the messages waiting in the offline queue.
type QueueView struct {
	*tview.Table
	theme    *ui.Theme
	messages []api.QueuedMessage
	visible  []api.QueuedMessage
	filter   string
}

// NewQueueView creates the queue table.
func NewQueueView(theme *ui.Theme) *QueueView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	qv := &QueueView{
		Table: table,
		theme: theme,
	}
	qv.render()
	return qv
}

// Crumb implements Component. The badge counts what is still queued.
func (qv *QueueView) Crumb() ui.Crumb {
	c := ui.Crumb{Label: "Queue"}
	if n := len(qv.messages); n > 0 {
		c.Badge = fmt.Sprintf("%d queued", n)
	}
	return c
}

// Hints implements Component.
func (qv *QueueView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update replaces the queued messages.
func (qv *QueueView) Update(msgs []api.QueuedMessage) {
	qv.messages = msgs
	qv.render()
}

// SetFilter sets the active filter text and re-renders.
func (qv *QueueView) SetFilter(filter string) {
	qv.filter = filter
	qv.render()
}

// ClearFilter clears the active filter.
func (qv *QueueView) ClearFilter() {
	qv.SetFilter("")
}

// Filter returns the active filter.
func (qv *QueueView) Filter() string { return qv.filter }

func (qv *QueueView) matches(m api.QueuedMessage) bool {
	if qv.filter == "" {
		return true
	}
	return containsFold(m.Target, qv.filter) ||
		containsFold(m.Name, qv.filter) ||
		containsFold(plainText(m.Text), qv.filter)
}

func (qv *QueueView) render() {
	qv.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" TARGET", 0},
		{" NAME", 1},
		{" MESSAGE", 3},
		{" QUEUED", 0},
		{" STATE", 0},
	}
	for col, h := range headers {
		qv.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(qv.theme.TableHeaderFg).
			SetBackgroundColor(qv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	qv.visible = qv.visible[:0]
	for _, m := range qv.messages {
		if !qv.matches(m) {
			continue
		}
		qv.visible = append(qv.visible, m)
		row := len(qv.visible)

		state, stateColor := "WAITING", qv.theme.FgColor
		if m.DeviceOffline {
			state, stateColor = "OFFLINE", qv.theme.PendingColor
		}
		qv.SetCell(row, 0, tview.NewTableCell(" "+m.Target).SetTextColor(qv.theme.FgColor))
		qv.SetCell(row, 1, tview.NewTableCell(" "+display(m.Name)).SetExpansion(1).SetTextColor(qv.theme.FgColor))
		qv.SetCell(row, 2, tview.NewTableCell(" "+display(m.Text)).SetExpansion(3).SetMaxWidth(60).SetTextColor(qv.theme.FgColor))
		qv.SetCell(row, 3, tview.NewTableCell(formatTimestamp(m.CreatedAt)+" ").SetAlign(tview.AlignRight).SetTextColor(qv.theme.FgColor))
		qv.SetCell(row, 4, tview.NewTableCell(state).SetAlign(tview.AlignRight).SetTextColor(stateColor))
	}

	if qv.filter != "" {
		qv.SetTitle(fmt.Sprintf(" Queue (%d/%d) filter: %s ", len(qv.visible), len(qv.messages), tview.Escape(qv.filter)))
	} else {
		qv.SetTitle(fmt.Sprintf(" Queue (%d) ", len(qv.messages)))
	}
}

// SelectedTarget returns the target of the selected row.
func (qv *QueueView) SelectedTarget() string {
	row, _ := qv.GetSelection()
	return qv.TargetByIndex(row)
}

// TargetByIndex returns the target of the Nth visible row (1-based).
func (qv *QueueView) TargetByIndex(n int) string {
	if n < 1 || n > len(qv.visible) {
		return ""
	}
	return qv.visible[n-1].Target
}
