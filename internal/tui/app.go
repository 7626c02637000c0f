package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/msgsync/internal/api"
	"github.com/matheus3301/msgsync/internal/tui/keys"
	"github.com/matheus3301/msgsync/internal/tui/model"
	"github.com/matheus3301/msgsync/internal/tui/ui"
	"github.com/matheus3301/msgsync/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageQueue      = "queue"
	pageTranscript = "transcript"
	pageHelp       = "help"

	refreshInterval = 5 * time.Second
	watchRetry      = 2 * time.Second
	callTimeout     = 10 * time.Second
)

// Daemon is everything the TUI needs from msgsyncd.
type Daemon interface {
	model.Backend
	Watch(ctx context.Context, req api.WatchRequest) (*api.Watcher, error)
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	daemon   Daemon
	vm       *model.ViewModel
	registry *keys.Registry
	theme    *ui.Theme
	started  time.Time

	layout     *tview.Flex
	pages      *ui.Pages
	siteInfo   *ui.SiteInfo
	menu       *ui.Menu
	logo       *ui.Logo
	crumbs     *ui.Crumbs
	prompt     *ui.Prompt
	flash      *ui.FlashBar
	queue      *views.QueueView
	transcript *views.TranscriptView
	help       *views.HelpView
	components map[string]ui.Component

	promptShown bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(d Daemon) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:        tview.NewApplication(),
		daemon:     d,
		vm:         model.NewViewModel(d),
		registry:   keys.NewRegistry(),
		theme:      theme,
		started:    time.Now(),
		pages:      ui.NewPages(),
		siteInfo:   ui.NewSiteInfo(theme),
		menu:       ui.NewMenu(theme),
		logo:       ui.NewLogo(theme),
		crumbs:     ui.NewCrumbs(theme),
		prompt:     ui.NewPrompt(theme),
		flash:      ui.NewFlashBar(theme),
		queue:      views.NewQueueView(theme),
		transcript: views.NewTranscriptView(theme),
		help:       views.NewHelpView(theme),
		ctx:        ctx,
		cancel:     cancel,
	}
	a.components = map[string]ui.Component{
		pageQueue:      a.queue,
		pageTranscript: a.transcript,
		pageHelp:       a.help,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Name: "command", Key: tcell.KeyRune, Rune: ':',
		Description: "Command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "sync", Key: tcell.KeyRune, Rune: 's',
		Description: "Sync", Visible: true,
		Handler: a.sync,
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "help", Key: tcell.KeyRune, Rune: '?',
		Description: "Help", Visible: true,
		Handler: a.showHelp,
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "quit", Key: tcell.KeyRune, Rune: 'q',
		Description: "Quit", Visible: true,
		Handler: a.Stop,
	})

	a.registry.AddView(pageQueue, &keys.Action{
		Name: "filter", Key: tcell.KeyRune, Rune: '/',
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageQueue, &keys.Action{
		Name: "clear-filter", Key: tcell.KeyRune, Rune: '0',
		Handler: a.queue.ClearFilter,
	})
	for n := 1; n <= 9; n++ {
		n := n
		a.registry.AddView(pageQueue, &keys.Action{
			Name: fmt.Sprintf("jump-%d", n), Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() {
				if t := a.queue.TargetByIndex(n); t != "" {
					a.open(t)
				}
			},
		})
	}

	a.registry.AddView(pageTranscript, &keys.Action{
		Name: "compose", Key: tcell.KeyRune, Rune: 'i',
		Handler: func() { a.app.SetFocus(a.transcript.Composer()) },
	})
	a.registry.AddView(pageTranscript, &keys.Action{
		Name: "refresh", Key: tcell.KeyRune, Rune: 'r',
		Handler: func() { a.run(func(ctx context.Context) error { return a.vm.Refresh(ctx, true) }) },
	})
	a.registry.AddView(pageTranscript, &keys.Action{
		Name: "earlier", Key: tcell.KeyRune, Rune: 'p',
		Handler: a.loadPrevious,
	})
}

func (a *App) setupCallbacks() {
	a.queue.SetSelectedFunc(func(row, _ int) {
		if t := a.queue.TargetByIndex(row); t != "" {
			a.open(t)
		}
	})

	a.transcript.SetOnSend(func(text string) {
		a.run(func(ctx context.Context) error {
			if err := a.vm.Send(ctx, text); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			_ = a.vm.LoadStatus(ctx)
			return a.vm.LoadQueued(ctx)
		})
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptFilter {
			a.queue.SetFilter(text)
			return
		}
		a.execute(ParseCommand(text))
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func([]string) {
		a.updateCrumbs()
		a.updateMenu()
	})
}

func (a *App) setupLayout() {
	header := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.siteInfo, 28, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(a.logo, 12, 0, false)

	a.pages.AddPage(pageQueue, a.queue, true, false)
	a.pages.AddPage(pageTranscript, a.transcript, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)

	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flash, 1, 0, false)

	a.app.SetRoot(a.layout, true)
	a.app.SetInputCapture(a.handleKey)
	a.pages.Reset(pageQueue)
	a.app.SetFocus(a.queue)
}

func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	if a.promptShown {
		return ev
	}
	page := a.pages.Current()

	// Keys typed into the composer belong to it, except Esc.
	if a.app.GetFocus() == a.transcript.Composer() {
		if ev.Key() == tcell.KeyEscape {
			a.app.SetFocus(a.transcript.Messages())
			return nil
		}
		return ev
	}

	if ev.Key() == tcell.KeyEscape {
		switch page {
		case pageHelp:
			a.back()
		case pageTranscript:
			a.closeDiscussion()
		case pageQueue:
			a.queue.ClearFilter()
		}
		return nil
	}

	if a.registry.HandleEvent(page, ev) {
		return nil
	}
	return ev
}

func (a *App) execute(cmd Command) {
	switch cmd.Name {
	case "open":
		t, err := cmd.Target()
		if err != nil {
			a.vm.Flash.Err(err)
			a.drawFlash()
			return
		}
		a.open(t.String())
	case "sync":
		a.sync()
	case "more":
		a.loadPrevious()
	case "queue":
		if a.pages.Current() == pageTranscript {
			a.closeDiscussion()
			return
		}
		a.pages.Reset(pageQueue)
		a.app.SetFocus(a.queue)
	case "help":
		a.showHelp()
	case "quit":
		a.Stop()
	case "":
	default:
		a.vm.Flash.Warn(fmt.Sprintf("Unknown command %q", cmd.Name))
		a.drawFlash()
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	if a.promptShown {
		return
	}
	a.promptShown = true
	a.prompt.Activate(mode)
	a.layout.AddItem(a.prompt, 3, 0, true)
	// Keep the prompt above the pages.
	a.layout.RemoveItem(a.pages)
	a.layout.RemoveItem(a.crumbs)
	a.layout.RemoveItem(a.flash)
	a.layout.AddItem(a.pages, 0, 1, false)
	a.layout.AddItem(a.crumbs, 1, 0, false)
	a.layout.AddItem(a.flash, 1, 0, false)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	if !a.promptShown {
		return
	}
	a.promptShown = false
	a.layout.RemoveItem(a.prompt)
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageTranscript:
		a.app.SetFocus(a.transcript.Messages())
	case pageHelp:
		a.app.SetFocus(a.help)
	default:
		a.app.SetFocus(a.queue)
	}
}

func (a *App) back() {
	if a.pages.Depth() > 1 {
		a.pages.Pop()
	}
	a.focusCurrent()
}

func (a *App) showHelp() {
	if a.pages.Current() == pageHelp {
		return
	}
	a.pages.Push(pageHelp)
	a.app.SetFocus(a.help)
}

// Open shows the discussion with target, replacing any open one.
func (a *App) Open(target string) {
	a.open(target)
}

func (a *App) open(target string) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := a.vm.Open(ctx, target); err != nil {
			a.vm.Flash.Err(fmt.Errorf("open %s: %w", target, err))
			a.app.QueueUpdateDraw(a.render)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.render()
			if a.pages.Current() == pageHelp {
				a.pages.Pop()
			}
			a.pages.Push(pageTranscript)
			a.app.SetFocus(a.transcript.Messages())
		})
	}()
}

func (a *App) closeDiscussion() {
	a.pages.Reset(pageQueue)
	a.app.SetFocus(a.queue)
	a.run(func(ctx context.Context) error {
		if err := a.vm.Close(ctx); err != nil {
			return err
		}
		return a.vm.LoadStatus(ctx)
	})
}

func (a *App) sync() {
	a.vm.Flash.Info("Syncing...")
	a.drawFlash()
	a.run(func(ctx context.Context) error {
		if err := a.vm.Sync(ctx); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		a.reloadParts(ctx, model.RefreshStatus|model.RefreshQueue|model.RefreshTranscript)
		return nil
	})
}

func (a *App) loadPrevious() {
	a.run(func(ctx context.Context) error { return a.vm.LoadPrevious(ctx) })
}

// run calls fn off the UI goroutine and redraws afterwards. Errors go to
// the flash bar.
func (a *App) run(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := fn(ctx); err != nil && a.ctx.Err() == nil {
			a.vm.Flash.Err(err)
		}
		a.app.QueueUpdateDraw(a.render)
	}()
}

func (a *App) reloadParts(ctx context.Context, r model.Refresh) {
	if r.Has(model.RefreshStatus) {
		_ = a.vm.LoadStatus(ctx)
	}
	if r.Has(model.RefreshQueue) {
		_ = a.vm.LoadQueued(ctx)
	}
	if r.Has(model.RefreshTranscript) && a.vm.Active() != nil {
		_ = a.vm.Refresh(ctx, false)
	}
}

// render copies view model state into the widgets. UI goroutine only.
func (a *App) render() {
	st := a.vm.Status()
	if st != nil {
		a.siteInfo.Update(&ui.SiteData{
			Site:    st.SiteID,
			UserID:  st.UserID,
			Network: st.Network,
			Queued:  st.Queued,
			Views:   st.Views,
			Uptime:  time.Since(a.started),
		})
		a.transcript.SetUserID(st.UserID)
		a.crumbs.SetSite(st.SiteID)
	} else {
		a.siteInfo.Update(nil)
	}
	a.queue.Update(a.vm.Queued())
	a.transcript.Update(a.vm.Active())
	a.updateCrumbs()
	a.flash.Update(a.vm.Flash.GetMessage())
	a.updateMenu()
}

func (a *App) drawFlash() {
	a.flash.Update(a.vm.Flash.GetMessage())
}

func (a *App) updateCrumbs() {
	stack := a.pages.Stack()
	trail := make([]ui.Crumb, 0, len(stack))
	for _, p := range stack {
		if c, ok := a.components[p]; ok {
			trail = append(trail, c.Crumb())
		}
	}
	a.crumbs.Update(trail)
}

func (a *App) updateMenu() {
	var hints []ui.MenuHint
	if c, ok := a.components[a.pages.Current()]; ok {
		hints = append(hints, c.Hints()...)
	}
	for _, act := range a.registry.Hints("") {
		hints = append(hints, ui.MenuHint{Key: keyLabel(act), Description: act.Description})
	}
	a.menu.Update(hints)
}

func keyLabel(act *keys.Action) string {
	if act.Key == tcell.KeyRune {
		return string(act.Rune)
	}
	if name, ok := tcell.KeyNames[act.Key]; ok {
		return name
	}
	return "?"
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		a.reloadParts(ctx, model.RefreshStatus|model.RefreshQueue)
		cancel()
		a.app.QueueUpdateDraw(a.render)

		go a.watchLoop()
		go a.flashLoop()
		a.refreshLoop()
	}()
	return a.app.Run()
}

// watchLoop follows daemon events, reconnecting after stream errors.
func (a *App) watchLoop() {
	for a.ctx.Err() == nil {
		w, err := a.daemon.Watch(a.ctx, api.WatchRequest{})
		if err == nil {
			for {
				env, rerr := w.Recv()
				if rerr != nil {
					err = rerr
					break
				}
				r := a.vm.HandleEvent(env)
				ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
				a.reloadParts(ctx, r)
				cancel()
				a.app.QueueUpdateDraw(a.render)
			}
		}
		if a.ctx.Err() != nil {
			return
		}
		a.vm.Flash.Err(fmt.Errorf("event stream: %w", err))
		a.app.QueueUpdateDraw(a.drawFlash)

		select {
		case <-time.After(watchRetry):
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) flashLoop() {
	for {
		select {
		case <-a.vm.Flash.Watch():
			a.app.QueueUpdateDraw(a.drawFlash)
		case <-a.ctx.Done():
			return
		}
	}
}

// refreshLoop keeps the header and queue current and expires flashes
// between events.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			a.reloadParts(ctx, model.RefreshStatus|model.RefreshQueue)
			cancel()
			a.app.QueueUpdateDraw(a.render)
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop closes the open discussion and shuts the TUI down.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = a.vm.Close(ctx)
	a.cancel()
	a.app.Stop()
}
