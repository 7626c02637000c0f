package status

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matheus3301/msgsync/internal/bus"
	"go.uber.org/zap"
)

func TestInitialStateIsOnline(t *testing.T) {
	m := NewMonitor(nil, "", 0, 0, zap.NewNop())
	if m.Current() != Unknown {
		t.Errorf("initial state = %s, want UNKNOWN", m.Current())
	}
	if !m.IsOnline() {
		t.Error("unknown connectivity should count as online")
	}
}

func TestTransitions(t *testing.T) {
	m := NewMonitor(nil, "", 0, 0, zap.NewNop())
	if err := m.Transition(Offline); err != nil {
		t.Fatal(err)
	}
	if m.IsOnline() {
		t.Error("IsOnline() = true after going offline")
	}
	if err := m.Transition(Offline); err != nil {
		t.Errorf("same-state transition should be a no-op, got %v", err)
	}
	if err := m.Transition(Unknown); err == nil {
		t.Error("Transition(OFFLINE -> UNKNOWN) should fail")
	}
	if err := m.Transition(Online); err != nil {
		t.Fatal(err)
	}
}

func TestReconnectEmitsOnlineEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("network.", 10)
	defer unsub()

	m := NewMonitor(b, "", 0, 0, zap.NewNop())
	m.SetOnline(true)  // UNKNOWN -> ONLINE: silent
	m.SetOnline(false) // offline event
	m.SetOnline(true)  // online event

	want := []string{bus.KindNetworkOffline, bus.KindNetworkOnline}
	for _, kind := range want {
		select {
		case evt := <-ch:
			if evt.Kind != kind {
				t.Errorf("event kind = %s, want %s", evt.Kind, kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", kind)
		}
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %s", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	m := NewMonitor(nil, srv.URL, 0, time.Second, zap.NewNop())
	m.Probe(context.Background())
	if m.Current() != Online {
		t.Errorf("state after answered probe = %s, want ONLINE", m.Current())
	}

	srv.Close()
	m.Probe(context.Background())
	if m.Current() != Offline {
		t.Errorf("state after failed probe = %s, want OFFLINE", m.Current())
	}
}

func TestStartStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	m := NewMonitor(nil, srv.URL, 10*time.Millisecond, time.Second, zap.NewNop())
	m.Start(context.Background())
	deadline := time.Now().Add(time.Second)
	for m.Current() != Online && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	if m.Current() != Online {
		t.Errorf("state = %s, want ONLINE", m.Current())
	}
}
