package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Crumb is one step of the navigation trail. Badge, when set, follows the
// label, e.g. the number of messages still waiting to go out.
type Crumb struct {
	Label string
	Badge string
}

// Component is a page that names itself in the trail and lists its keys.
type Component interface {
	Crumb() Crumb
	Hints() []MenuHint
}

// Crumbs shows where the user is: the site, then one crumb per open page.
type Crumbs struct {
	*tview.TextView
	theme *Theme
	site  string
	trail []Crumb
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
	}
}

// SetSite sets the site the trail starts from. Empty hides it.
func (c *Crumbs) SetSite(site string) {
	if site == c.site {
		return
	}
	c.site = site
	c.render()
}

// Update replaces the page part of the trail; the last crumb is active.
func (c *Crumbs) Update(trail []Crumb) {
	c.trail = trail
	c.render()
}

// Plain returns the trail without color tags.
func (c *Crumbs) Plain() string {
	var parts []string
	if c.site != "" {
		parts = append(parts, c.site)
	}
	for _, cr := range c.trail {
		s := cr.Label
		if cr.Badge != "" {
			s += " (" + cr.Badge + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " › ")
}

func (c *Crumbs) render() {
	c.Clear()
	var parts []string
	if c.site != "" {
		parts = append(parts, fmt.Sprintf("[%s::b]%s[-:-:-]", colorName(c.theme.TitleColor), tview.Escape(c.site)))
	}
	for i, cr := range c.trail {
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(c.trail)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		s := fmt.Sprintf("[%s:%s:%s] %s ", colorName(fg), colorName(bg), attr, tview.Escape(cr.Label))
		if cr.Badge != "" {
			s += fmt.Sprintf("[%s:%s:]%s ", colorName(c.theme.PendingColor), colorName(bg), tview.Escape(cr.Badge))
		}
		parts = append(parts, s+"[-:-:-]")
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " › "))
}

// colorName returns a tview-compatible color name string.
func colorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
