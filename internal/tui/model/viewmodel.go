package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/matheus3301/msgsync/internal/api"
	"github.com/matheus3301/msgsync/internal/bus"
	"github.com/matheus3301/msgsync/internal/tui/ui"
)

// Backend is the part of the daemon API the TUI uses.
type Backend interface {
	Status(ctx context.Context) (*api.StatusReply, error)
	ListQueued(ctx context.Context) ([]api.QueuedMessage, error)
	Submit(ctx context.Context, req api.SubmitRequest) (*api.SubmitReply, error)
	SyncNow(ctx context.Context, target string) (*api.SyncReply, error)
	SyncAll(ctx context.Context, onlyDeviceOffline bool) (*api.SyncReply, error)
	OpenDiscussion(ctx context.Context, target string) (*api.ViewReply, error)
	FetchTranscript(ctx context.Context, view string, refresh bool) (*api.ViewReply, error)
	LoadPrevious(ctx context.Context, view string) (*api.ViewReply, error)
	CloseDiscussion(ctx context.Context, view string) error
	SetForeground(ctx context.Context, view string, foreground bool) (*api.ViewReply, error)
}

// ErrNoDiscussion is returned by actions that need an open discussion.
var ErrNoDiscussion = errors.New("no discussion open")

// Refresh tells the UI which parts to reload after an event.
type Refresh int

const (
	RefreshStatus Refresh = 1 << iota
	RefreshQueue
	RefreshTranscript
)

// Has reports whether r includes part.
func (r Refresh) Has(part Refresh) bool { return r&part != 0 }

// ViewModel caches daemon state for the views.
type ViewModel struct {
	mu sync.RWMutex

	backend Backend
	status  *api.StatusReply
	queued  []api.QueuedMessage
	active  *api.ViewReply

	Flash *ui.FlashModel
}

// NewViewModel creates a view model backed by b.
func NewViewModel(b Backend) *ViewModel {
	return &ViewModel{backend: b, Flash: ui.NewFlashModel()}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.backend.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	return nil
}

// LoadQueued fetches the offline queue.
func (vm *ViewModel) LoadQueued(ctx context.Context) error {
	msgs, err := vm.backend.ListQueued(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.queued = msgs
	vm.mu.Unlock()
	return nil
}

// Open shows the discussion with target, closing the current one.
func (vm *ViewModel) Open(ctx context.Context, target string) error {
	if err := vm.Close(ctx); err != nil {
		return err
	}
	v, err := vm.backend.OpenDiscussion(ctx, target)
	if err != nil {
		return err
	}
	// Visible right away, so the daemon starts polling.
	if fg, err := vm.backend.SetForeground(ctx, v.View, true); err == nil {
		v = fg
	}
	vm.mu.Lock()
	vm.active = v
	vm.mu.Unlock()
	return nil
}

// Close releases the open discussion, if any.
func (vm *ViewModel) Close(ctx context.Context) error {
	vm.mu.Lock()
	active := vm.active
	vm.active = nil
	vm.mu.Unlock()
	if active == nil {
		return nil
	}
	return vm.backend.CloseDiscussion(ctx, active.View)
}

func (vm *ViewModel) activeHandle() (string, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.active == nil {
		return "", ErrNoDiscussion
	}
	return vm.active.View, nil
}

func (vm *ViewModel) setActive(handle string, v *api.ViewReply) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	// Dropped if the user moved on while the call was in flight.
	if vm.active != nil && vm.active.View == handle {
		vm.active = v
	}
}

// Refresh re-reads the open transcript. With fromServer the daemon fetches
// before answering.
func (vm *ViewModel) Refresh(ctx context.Context, fromServer bool) error {
	handle, err := vm.activeHandle()
	if err != nil {
		return err
	}
	v, err := vm.backend.FetchTranscript(ctx, handle, fromServer)
	if err != nil {
		return err
	}
	vm.setActive(handle, v)
	return nil
}

// LoadPrevious extends the transcript by one page of history.
func (vm *ViewModel) LoadPrevious(ctx context.Context) error {
	handle, err := vm.activeHandle()
	if err != nil {
		return err
	}
	v, err := vm.backend.LoadPrevious(ctx, handle)
	if err != nil {
		return err
	}
	vm.setActive(handle, v)
	return nil
}

// Send submits text to the open discussion.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	handle, err := vm.activeHandle()
	if err != nil {
		return err
	}
	reply, err := vm.backend.Submit(ctx, api.SubmitRequest{View: handle, Text: text})
	if err != nil {
		return err
	}
	if reply.Queued {
		vm.Flash.Warn("Offline: message queued, it will be sent when the connection is back")
	}
	return vm.Refresh(ctx, false)
}

// Sync drains the queue of the open discussion, or every queue when none
// is open.
func (vm *ViewModel) Sync(ctx context.Context) error {
	vm.mu.RLock()
	target := ""
	if vm.active != nil {
		target = vm.active.Target
	}
	vm.mu.RUnlock()

	var (
		reply *api.SyncReply
		err   error
	)
	if target != "" {
		reply, err = vm.backend.SyncNow(ctx, target)
	} else {
		reply, err = vm.backend.SyncAll(ctx, false)
	}
	if err != nil {
		return err
	}
	vm.reportSync(reply)
	return nil
}

func (vm *ViewModel) reportSync(reply *api.SyncReply) {
	var warnings []string
	sent := 0
	for _, r := range reply.Results {
		sent += r.Sent
		warnings = append(warnings, r.Warnings...)
	}
	switch {
	case reply.Error != "":
		vm.Flash.Err(errors.New(reply.Error))
	case len(warnings) > 0:
		vm.Flash.Warn(strings.Join(warnings, "; "))
	default:
		vm.Flash.Info(fmt.Sprintf("Synced, %d sent", sent))
	}
}

// HandleEvent updates flash state from a daemon event and returns what
// needs reloading.
func (vm *ViewModel) HandleEvent(env *api.Envelope) Refresh {
	vm.mu.RLock()
	activeTarget := ""
	if vm.active != nil {
		activeTarget = vm.active.Target
	}
	vm.mu.RUnlock()
	onActive := activeTarget != "" && env.Target == activeTarget

	switch env.Kind {
	case bus.KindSyncWarnings:
		if ws := payloadStrings(env.Payload, "warnings"); len(ws) > 0 {
			vm.Flash.Warn(strings.Join(ws, "; "))
		}
		return RefreshQueue
	case bus.KindAutoSynced:
		r := RefreshStatus | RefreshQueue
		if onActive {
			r |= RefreshTranscript
		}
		return r
	case bus.KindNetworkOffline:
		vm.Flash.Warn("Connection lost, messages will be queued")
		return RefreshStatus
	case bus.KindNetworkOnline:
		vm.Flash.Info("Back online")
		return RefreshStatus
	case bus.KindMessageQueued, bus.KindMessageSent:
		return RefreshStatus | RefreshQueue
	case bus.KindTranscript:
		if onActive {
			return RefreshTranscript
		}
	}
	return 0
}

func payloadStrings(p map[string]any, key string) []string {
	raw, _ := p[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Status returns the last loaded status, or nil.
func (vm *ViewModel) Status() *api.StatusReply {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Queued returns the last loaded queue.
func (vm *ViewModel) Queued() []api.QueuedMessage {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.queued
}

// Active returns the open discussion, or nil.
func (vm *ViewModel) Active() *api.ViewReply {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}
