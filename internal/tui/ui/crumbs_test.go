package ui

import (
	"strings"
	"testing"
)

func TestCrumbsTrail(t *testing.T) {
	c := NewCrumbs(DefaultTheme())
	c.Update([]Crumb{{Label: "Queue", Badge: "2 queued"}, {Label: "Team"}})
	if got := c.Plain(); got != "Queue (2 queued) › Team" {
		t.Errorf("Plain() = %q", got)
	}

	c.SetSite("main")
	if got := c.Plain(); got != "main › Queue (2 queued) › Team" {
		t.Errorf("Plain() = %q", got)
	}

	text := c.GetText(true)
	if !strings.Contains(text, "main") || !strings.Contains(text, "2 queued") {
		t.Errorf("rendered %q", text)
	}
}
