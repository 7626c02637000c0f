package discussion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/matheus3301/msgsync/internal/logging"
	"github.com/matheus3301/msgsync/internal/target"
	"go.uber.org/zap"
)

// ErrUnknownView is returned for a handle that was never opened or is
// already closed.
var ErrUnknownView = errors.New("discussion: unknown view")

// Manager owns the discussions opened by clients of the daemon, keyed by
// a handle.
type Manager struct {
	deps Deps
	cfg  Config

	mu    sync.Mutex
	views map[string]*Discussion
}

// NewManager creates a manager that opens discussions with deps and cfg.
func NewManager(deps Deps, cfg Config) *Manager {
	deps.Logger = logging.OrNop(deps.Logger)
	return &Manager{
		deps:  deps,
		cfg:   cfg,
		views: make(map[string]*Discussion),
	}
}

// Open loads a discussion for t and returns its handle.
func (m *Manager) Open(ctx context.Context, t target.Target) (string, *Discussion, error) {
	d := New(t, m.deps, m.cfg)
	if err := d.Open(ctx); err != nil {
		d.Close()
		return "", nil, err
	}
	id := uuid.NewString()
	m.mu.Lock()
	m.views[id] = d
	m.mu.Unlock()
	m.deps.Logger.Info("discussion opened", zap.String("handle", id), zap.Stringer("target", t))
	return id, d, nil
}

// Get returns the discussion behind handle.
func (m *Manager) Get(handle string) (*Discussion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.views[handle]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownView, handle)
	}
	return d, nil
}

// Close closes and forgets the discussion behind handle.
func (m *Manager) Close(handle string) error {
	m.mu.Lock()
	d, ok := m.views[handle]
	delete(m.views, handle)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownView, handle)
	}
	d.Close()
	m.deps.Logger.Info("discussion closed", zap.String("handle", handle))
	return nil
}

// Len returns the number of open discussions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.views)
}

// CloseAll closes every open discussion.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	views := m.views
	m.views = make(map[string]*Discussion)
	m.mu.Unlock()
	for _, d := range views {
		d.Close()
	}
}
