// Package sync drains the offline queue to the server, one target at a
// time, without duplicating messages that already arrived.
package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"github.com/matheus3301/msgsync/internal/bus"
	"github.com/matheus3301/msgsync/internal/lock"
	"github.com/matheus3301/msgsync/internal/logging"
	"github.com/matheus3301/msgsync/internal/offline"
	"github.com/matheus3301/msgsync/internal/remote"
	"github.com/matheus3301/msgsync/internal/target"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrOffline is returned when a target has queued messages but the device
// has no network.
var ErrOffline = errors.New("sync: device is offline")

// DefaultSafetyMargin widens the duplicate lookahead window: a send that
// timed out client-side may still land on the server up to one request
// timeout later.
const DefaultSafetyMargin = remote.DefaultTimeout + time.Second

// Connectivity reports whether the device currently has network.
type Connectivity interface {
	IsOnline() bool
}

// Result is the outcome of draining one target.
type Result struct {
	Target   target.Target
	Sent     int
	Skipped  int
	Warnings []string
}

// Engine drains queued messages. At most one sync per target runs at a
// time; concurrent callers share the running sync's result.
type Engine struct {
	queue       *offline.Queue
	api         remote.API
	net         Connectivity
	bus         *bus.Bus
	checkpoints *Checkpoints
	margin      time.Duration
	cron        time.Duration
	logger      *zap.Logger

	flights lock.Group[*Result]
	cancel  context.CancelFunc
	done    chan struct{}
	now     func() time.Time
}

// Config tunes the engine.
type Config struct {
	SafetyMargin time.Duration
	CronInterval time.Duration
}

// NewEngine creates a new sync engine.
func NewEngine(queue *offline.Queue, api remote.API, net Connectivity, b *bus.Bus, cp *Checkpoints, cfg Config, logger *zap.Logger) *Engine {
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	return &Engine{
		queue:       queue,
		api:         api,
		net:         net,
		bus:         b,
		checkpoints: cp,
		margin:      cfg.SafetyMargin,
		cron:        cfg.CronInterval,
		logger:      logging.OrNop(logger),
		now:         time.Now,
	}
}

// Start runs a full sync now and then every cron interval, and syncs the
// device-offline messages whenever the network comes back.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe(bus.KindNetworkOnline, 16)

	go func() {
		defer close(e.done)
		defer unsub()

		var tick <-chan time.Time
		if e.cron > 0 {
			ticker := time.NewTicker(e.cron)
			defer ticker.Stop()
			tick = ticker.C
		}
		e.runAll(ctx, false)
		for {
			select {
			case <-tick:
				e.runAll(ctx, false)
			case <-ch:
				e.logger.Info("network back, syncing device-offline messages")
				e.runAll(ctx, true)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the background triggers and waits for a running batch.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) runAll(ctx context.Context, onlyDeviceOffline bool) {
	results, err := e.SyncAll(ctx, onlyDeviceOffline)
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("background sync incomplete", zap.Error(err))
	}
	if len(results) > 0 {
		e.logger.Info("background sync done", zap.Int("targets", len(results)))
	}
}

// SyncAll syncs every target with queued messages, or only those holding
// device-offline messages. Targets sync concurrently. Each success publishes
// an auto-synced event, and the warnings of the whole batch go out once as
// a sync-warnings event. Failures are combined into the returned error and
// do not stop other targets.
func (e *Engine) SyncAll(ctx context.Context, onlyDeviceOffline bool) ([]*Result, error) {
	var msgs []offline.Message
	var err error
	if onlyDeviceOffline {
		msgs, err = e.queue.ListAllDeviceOffline()
	} else {
		msgs, err = e.queue.ListAll()
	}
	if err != nil {
		return nil, err
	}

	targets := offline.Targets(msgs)
	results := make([]*Result, len(targets))
	errs := make([]error, len(targets))

	var wg gosync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.SyncTarget(ctx, t)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", t, err)
				return
			}
			results[i] = res
			e.bus.Publish(t, bus.AutoSynced{Warnings: res.Warnings})
		}()
	}
	wg.Wait()

	out := slices.DeleteFunc(results, func(r *Result) bool { return r == nil })
	var warnings []string
	for _, r := range out {
		warnings = append(warnings, r.Warnings...)
	}
	if len(warnings) > 0 {
		e.bus.Publish(target.Target{}, bus.SyncWarnings{Warnings: warnings})
	}
	return out, multierr.Combine(errs...)
}

// SyncTarget drains the queue of t. If a sync of t is already running the
// call waits for it and returns its result without touching the network.
func (e *Engine) SyncTarget(ctx context.Context, t target.Target) (*Result, error) {
	res, err, shared := e.flights.Do(ctx, t.String(), func() (*Result, error) {
		return e.performSync(ctx, t)
	})
	if shared {
		e.logger.Debug("joined running sync", zap.Stringer("target", t))
	}
	return res, err
}

// WaitFor blocks until the running sync of t, if any, finishes. It never
// starts one. A nil result means nothing was running.
func (e *Engine) WaitFor(ctx context.Context, t target.Target) (*Result, error) {
	res, err, _ := e.flights.Wait(ctx, t.String())
	return res, err
}

// IsSyncing reports whether a sync of t is running.
func (e *Engine) IsSyncing(t target.Target) bool {
	return e.flights.InFlight(t.String())
}

// LastSync returns when t last synced successfully.
func (e *Engine) LastSync(t target.Target) (time.Time, error) {
	return e.checkpoints.LastSync(t)
}

func (e *Engine) performSync(ctx context.Context, t target.Target) (*Result, error) {
	log := e.logger.With(zap.Stringer("target", t))
	res := &Result{Target: t}

	msgs, err := e.queue.List(t)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return res, nil
	}

	if !e.net.IsOnline() {
		if err := e.queue.SetDeviceOffline(msgs, true); err != nil {
			return nil, err
		}
		return nil, ErrOffline
	}

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt < msgs[j].CreatedAt })
	timeFrom := msgs[0].CreatedAt - e.margin.Milliseconds()

	online, err := e.sentSince(ctx, t, timeFrom)
	if err != nil {
		return nil, fmt.Errorf("lookahead: %w", err)
	}
	log.Debug("syncing queued messages", zap.Int("queued", len(msgs)), zap.Int("lookahead", len(online)))

	var rejected []string
	for _, m := range msgs {
		if slices.Contains(online, NormalizeBody(m.Text)) {
			// Already delivered by an earlier attempt.
			res.Skipped++
		} else if _, err := e.api.Send(ctx, t, m.Text); err != nil {
			if !remote.IsBusinessError(err) {
				if e.net.IsOnline() {
					if ferr := e.queue.SetDeviceOffline(msgs, false); ferr != nil {
						log.Warn("could not clear device-offline flag", zap.Error(ferr))
					}
				}
				return nil, fmt.Errorf("send queued message: %w", err)
			}
			log.Warn("queued message rejected", zap.Error(err), zap.Int64("created_at", m.CreatedAt))
			if reason := err.Error(); !slices.Contains(rejected, reason) {
				rejected = append(rejected, reason)
			}
		} else {
			res.Sent++
		}

		if err := e.queue.Delete(m); err != nil {
			return nil, err
		}
	}

	if len(rejected) > 0 {
		res.Warnings = e.warnings(ctx, t, msgs[0], rejected)
	}
	if err := e.checkpoints.MarkSynced(t, e.now()); err != nil {
		log.Warn("could not store checkpoint", zap.Error(err))
	}
	log.Info("target synced", zap.Int("sent", res.Sent), zap.Int("skipped", res.Skipped), zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// sentSince returns the normalized bodies of messages the current user sent
// to t since timeFrom.
func (e *Engine) sentSince(ctx context.Context, t target.Target, timeFrom int64) ([]string, error) {
	page, err := e.api.FetchMessages(ctx, t, remote.FetchOptions{TimeFrom: timeFrom, OnlyFromMe: true})
	if err != nil {
		if t.IsConversation() && remote.HasCode(err, remote.CodeInvalidResponse) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(page.Messages))
	for _, m := range page.Messages {
		out = append(out, m.Text)
	}
	return out, nil
}

func (e *Engine) warnings(ctx context.Context, t target.Target, sample offline.Message, reasons []string) []string {
	var prefix string
	if t.IsConversation() {
		name := ""
		if sample.Snapshot != nil {
			name = sample.Snapshot.Name
		}
		if name == "" {
			if conv, err := e.api.FetchConversation(ctx, t.ID); err == nil {
				name = conv.Name
			}
		}
		if name == "" {
			name = fmt.Sprintf("#%d", t.ID)
		}
		prefix = "Message to conversation " + name + " not sent: "
	} else {
		name, err := e.api.FetchUserName(ctx, t.ID)
		if err != nil || name == "" {
			name = fmt.Sprintf("user %d", t.ID)
		}
		prefix = "Message to " + name + " not sent: "
	}
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, prefix+r)
	}
	return out
}

// NormalizeBody wraps plain text in a paragraph the way the server stores
// it, so queued text can be compared with server copies.
func NormalizeBody(text string) string {
	if strings.HasPrefix(text, "<") {
		return text
	}
	return "<p>" + text + "</p>"
}
