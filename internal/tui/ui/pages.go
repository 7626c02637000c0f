package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages stacks the queue, transcript and help pages. Only the top page is
// visible; onChange sees every new stack.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(stack []string)
}

// NewPages creates an empty stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange sets a callback that fires when the stack changes.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows name on top. A page already on the stack is returned to,
// dropping what was opened after it, so the trail never repeats a page.
func (p *Pages) Push(name string) {
	if i := slices.Index(p.stack, name); i >= 0 {
		if i == len(p.stack)-1 {
			return
		}
		p.show(append(p.stack[:i:i], name))
		return
	}
	p.show(append(slices.Clone(p.stack), name))
}

// Pop drops the top page and returns its name, or "" when only the root
// page or nothing is left.
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.show(p.stack[: len(p.stack)-1 : len(p.stack)-1])
	return top
}

// Current returns the top page, or "".
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Stack returns a copy of the page stack, bottom first.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

// Depth returns the current stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Reset leaves only name on the stack.
func (p *Pages) Reset(name string) {
	p.show([]string{name})
}

func (p *Pages) show(stack []string) {
	top := stack[len(stack)-1]
	for _, n := range p.stack {
		if n != top {
			p.HidePage(n)
		}
	}
	p.stack = stack
	p.ShowPage(top)
	p.SendToFront(top)
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}
