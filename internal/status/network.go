// Package status tracks the device's connectivity and announces changes on
// the bus.
package status

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/msgsync/internal/bus"
	"github.com/matheus3301/msgsync/internal/logging"
	"github.com/matheus3301/msgsync/internal/target"
	"go.uber.org/zap"
)

// State is the connectivity state.
type State string

const (
	Unknown State = "UNKNOWN"
	Online  State = "ONLINE"
	Offline State = "OFFLINE"
)

var validTransitions = map[State][]State{
	Unknown: {Online, Offline},
	Online:  {Offline},
	Offline: {Online},
}

// Monitor tracks connectivity. Until the first probe completes the device
// is assumed online.
type Monitor struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus

	probeURL string
	interval time.Duration
	client   *http.Client
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewMonitor creates a monitor that probes probeURL every interval with
// the given per-probe timeout. An empty probeURL disables probing.
func NewMonitor(b *bus.Bus, probeURL string, interval, timeout time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		current:  Unknown,
		bus:      b,
		probeURL: probeURL,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   logging.OrNop(logger),
	}
}

// Current returns the current state.
func (m *Monitor) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsOnline reports whether the device is believed to have network.
func (m *Monitor) IsOnline() bool {
	return m.Current() != Offline
}

// Transition moves to a new state. Moving to the current state is a no-op.
func (m *Monitor) Transition(to State) error {
	m.mu.Lock()
	if m.current == to {
		m.mu.Unlock()
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	m.logger.Info("connectivity changed", zap.String("from", string(from)), zap.String("to", string(to)))
	if m.bus == nil {
		return nil
	}
	// Leaving Unknown for Online is not a reconnection.
	switch {
	case to == Offline:
		m.bus.Publish(target.Target{}, bus.NetworkOffline{})
	case to == Online && from == Offline:
		m.bus.Publish(target.Target{}, bus.NetworkOnline{})
	}
	return nil
}

// SetOnline is Transition for callers that only know a boolean.
func (m *Monitor) SetOnline(online bool) {
	to := Offline
	if online {
		to = Online
	}
	_ = m.Transition(to)
}

// Probe performs one reachability check. Any HTTP response counts as online.
func (m *Monitor) Probe(ctx context.Context) {
	if m.probeURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.logger.Warn("bad probe url", zap.String("url", m.probeURL), zap.Error(err))
		return
	}
	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Debug("probe failed", zap.Error(err))
		m.SetOnline(false)
		return
	}
	_ = resp.Body.Close()
	m.SetOnline(true)
}

// Start probes once and then every interval until Stop.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		m.Probe(ctx)
		if m.interval <= 0 {
			return
		}
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Probe(ctx)
			}
		}
	}()
}

// Stop ends probing and waits for the loop to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}
