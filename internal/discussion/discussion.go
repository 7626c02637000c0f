// Package discussion drives one open conversation view: it loads pages of
// history, polls for new messages, sends with optimistic display and keeps
// the read state in step with the server.
package discussion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/msgsync/internal/bus"
	"github.com/matheus3301/msgsync/internal/logging"
	"github.com/matheus3301/msgsync/internal/offline"
	"github.com/matheus3301/msgsync/internal/outbox"
	"github.com/matheus3301/msgsync/internal/remote"
	"github.com/matheus3301/msgsync/internal/session"
	intsync "github.com/matheus3301/msgsync/internal/sync"
	"github.com/matheus3301/msgsync/internal/target"
	"github.com/matheus3301/msgsync/internal/transcript"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrClosed       = errors.New("discussion: closed")
	ErrEmptyMessage = errors.New("discussion: empty message")
)

// Defaults for Config.
const (
	DefaultPageSize      = 50
	DefaultPollInterval  = 10 * time.Second
	DefaultFetchWaitStep = 400 * time.Millisecond
)

// Syncer lets a fetch wait for a running sync of the same target.
type Syncer interface {
	WaitFor(ctx context.Context, t target.Target) (*intsync.Result, error)
}

// Submitter routes a message to the server or the offline queue.
type Submitter interface {
	Submit(ctx context.Context, t target.Target, text string, snap *offline.Snapshot) (*outbox.Result, error)
}

// QueueReader lists queued messages of a target.
type QueueReader interface {
	List(t target.Target) ([]offline.Message, error)
}

// Config tunes a discussion.
type Config struct {
	PageSize      int
	PollInterval  time.Duration
	FetchWaitStep time.Duration
	Location      *time.Location
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.FetchWaitStep <= 0 {
		c.FetchWaitStep = DefaultFetchWaitStep
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// Deps are the collaborators of a discussion.
type Deps struct {
	Session session.Session
	API     remote.API
	Queue   QueueReader
	Syncer  Syncer
	Sender  Submitter
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// View is a consistent snapshot of a discussion.
type View struct {
	Target      target.Target
	Title       string
	IsGroup     bool
	Messages    []transcript.Message
	Members     map[int64]string
	CanLoadMore bool
	NewMessages int
	UnreadFrom  int64
	Polling     bool
}

// Discussion is one open view.
type Discussion struct {
	target target.Target
	deps   Deps
	cfg    Config
	logger *zap.Logger
	poller *Poller
	now    func() time.Time

	mu           sync.Mutex
	tr           *transcript.Transcript
	conv         *remote.Conversation
	title        string
	pagesLoaded  int
	canLoadMore  bool
	fetching     bool
	sending      int
	newMessages  int
	destroyed    bool
	memberNames  map[int64]string
	unsubscribe  func()
	cancelBgWork context.CancelFunc
	bgCtx        context.Context
}

// New creates a discussion for t. Call Open before anything else.
func New(t target.Target, deps Deps, cfg Config) *Discussion {
	cfg = cfg.withDefaults()
	deps.Logger = logging.OrNop(deps.Logger)
	d := &Discussion{
		target:      t,
		deps:        deps,
		cfg:         cfg,
		logger:      deps.Logger.With(zap.Stringer("target", t)),
		now:         time.Now,
		tr:          transcript.New(deps.Session.UserID, transcript.WithLocation(cfg.Location)),
		pagesLoaded: 1,
		memberNames: make(map[int64]string),
	}
	d.bgCtx, d.cancelBgWork = context.WithCancel(context.Background())
	d.poller = NewPoller(cfg.PollInterval, func(ctx context.Context) {
		if err := d.Fetch(ctx, true); err != nil && ctx.Err() == nil {
			d.logger.Debug("poll failed", zap.Error(err))
		}
	})
	return d
}

// Target returns the discussion's target.
func (d *Discussion) Target() target.Target {
	return d.target
}

// Open loads the header and the first page concurrently and starts
// listening for background syncs of this target. When the server cannot be
// reached, the queued messages are shown on their own.
func (d *Discussion) Open(ctx context.Context) error {
	if !d.target.Valid() {
		return fmt.Errorf("open discussion: invalid target %s", d.target)
	}
	d.mu.Lock()
	d.fetching = true
	d.mu.Unlock()

	var (
		conv     *remote.Conversation
		title    string
		msgs     []transcript.Message
		members  []remote.Member
		more     bool
		fetchErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if d.target.IsConversation() {
			c, err := d.deps.API.FetchConversation(gctx, d.target.ID)
			if err != nil {
				if remote.IsBusinessError(err) {
					return err
				}
				d.logger.Warn("conversation header unavailable", zap.Error(err))
				return nil
			}
			conv, title = c, c.Name
			return nil
		}
		name, err := d.deps.API.FetchUserName(gctx, d.target.ID)
		if err != nil {
			d.logger.Debug("user name unavailable", zap.Error(err))
			name = fmt.Sprintf("User %d", d.target.ID)
		}
		title = name
		return nil
	})
	g.Go(func() error {
		d.waitForSync(gctx)
		msgs, more, members, fetchErr = d.fetchPages(gctx, 1)
		if fetchErr != nil && remote.IsBusinessError(fetchErr) {
			return fetchErr
		}
		return nil
	})
	err := g.Wait()

	d.mu.Lock()
	d.fetching = false
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.conv = conv
	d.title = title
	if conv != nil {
		d.tr.SetGroup(conv.IsGroup())
		d.addMembers(conv.Members)
	}
	d.mu.Unlock()

	if fetchErr != nil {
		d.logger.Info("server unreachable, showing queued messages", zap.Error(fetchErr))
		queued, qerr := d.deps.Queue.List(d.target)
		if qerr != nil {
			return qerr
		}
		msgs = msgs[:0]
		for _, m := range queued {
			msgs = append(msgs, transcript.FromQueued(m))
		}
		more = false
	}

	d.mu.Lock()
	d.canLoadMore = more
	d.addMembers(members)
	d.mu.Unlock()
	d.load(ctx, msgs, true)

	if d.deps.Bus != nil {
		ch, unsub := d.deps.Bus.SubscribeTarget(d.target, bus.KindAutoSynced, 8)
		d.mu.Lock()
		d.unsubscribe = unsub
		d.mu.Unlock()
		go d.watchSyncs(ch)
	}
	return nil
}

func (d *Discussion) watchSyncs(ch <-chan bus.Event) {
	for {
		select {
		case <-ch:
			if err := d.Fetch(d.bgCtx, true); err != nil && d.bgCtx.Err() == nil {
				d.logger.Debug("refresh after sync failed", zap.Error(err))
			}
		case <-d.bgCtx.Done():
			return
		}
	}
}

// addMembers must be called with d.mu held.
func (d *Discussion) addMembers(members []remote.Member) {
	d.tr.AddMembers(members)
	for _, m := range members {
		d.memberNames[m.ID] = m.FullName
	}
}

// waitForSync blocks while the target is being synced. Sync errors are the
// sync caller's concern.
func (d *Discussion) waitForSync(ctx context.Context) {
	if d.deps.Syncer == nil {
		return
	}
	if _, err := d.deps.Syncer.WaitFor(ctx, d.target); err != nil {
		d.logger.Debug("sync finished with error", zap.Error(err))
	}
}

// Fetch reloads the loaded pages and merges them. It does nothing while a
// message is being sent, while another fetch runs, or after Close.
// messagesAreNew controls whether added messages count towards the new
// messages badge.
func (d *Discussion) Fetch(ctx context.Context, messagesAreNew bool) error {
	d.mu.Lock()
	if d.destroyed || d.sending > 0 || d.fetching {
		d.mu.Unlock()
		return nil
	}
	d.fetching = true
	pages := d.pagesLoaded
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.fetching = false
		d.mu.Unlock()
	}()

	d.waitForSync(ctx)
	msgs, more, members, err := d.fetchPages(ctx, pages)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.canLoadMore = more
	d.addMembers(members)
	d.mu.Unlock()

	d.load(ctx, msgs, messagesAreNew)
	return nil
}

// fetchPages loads pages windows of history, newest first. Queued messages
// are included with the first page only.
func (d *Discussion) fetchPages(ctx context.Context, pages int) ([]transcript.Message, bool, []remote.Member, error) {
	var (
		out     []transcript.Message
		members []remote.Member
		more    bool
		offset  int
	)
	for p := 0; p < pages; p++ {
		page, err := d.deps.API.FetchMessages(ctx, d.target, remote.FetchOptions{Offset: offset, Limit: d.cfg.PageSize})
		if err != nil {
			return nil, false, nil, err
		}
		for _, m := range page.Messages {
			out = append(out, transcript.FromConfirmed(m))
		}
		members = append(members, page.Members...)

		if p == 0 {
			queued, err := d.deps.Queue.List(d.target)
			if err != nil {
				return nil, false, nil, err
			}
			for _, m := range queued {
				out = append(out, transcript.FromQueued(m))
			}
		}

		more = page.CanLoadMore
		if !more {
			break
		}
		offset += d.cfg.PageSize
	}
	return out, more, members, nil
}

// load merges msgs and publishes what changed.
func (d *Discussion) load(ctx context.Context, msgs []transcript.Message, messagesAreNew bool) {
	d.mu.Lock()
	if d.destroyed || d.sending > 0 {
		d.mu.Unlock()
		return
	}
	res := d.tr.Merge(msgs)
	if messagesAreNew {
		d.newMessages += res.Added
	}

	forceMark := d.conv.IsGroup() && res.Last != nil &&
		res.Last.SenderID != d.deps.Session.UserID && res.PrevLast != nil && res.LastChanged
	markRead := forceMark
	unreadCount := 0
	if d.conv != nil {
		unreadCount = d.conv.UnreadCount
		markRead = markRead || unreadCount > 0
	} else if !d.target.IsConversation() {
		markRead = markRead || hasUnread(msgs, d.deps.Session.UserID)
	}

	prevWatermark := d.tr.Watermark()
	watermark := prevWatermark
	switch {
	case !markRead:
	case d.conv == nil:
		watermark = d.tr.FirstUnreadWatermark()
	default:
		watermark = d.tr.UnreadWatermark(unreadCount)
	}
	d.mu.Unlock()

	if messagesAreNew && res.Added > 0 {
		d.publish(bus.NewMessages{Delta: res.Added})
	}
	d.publishLast(res.Last, res.LastChanged)
	if watermark != prevWatermark {
		d.publish(bus.ReadWatermark{MessageID: watermark})
	}
	d.publish(bus.TranscriptUpdated{})

	if markRead {
		if err := d.deps.API.MarkRead(ctx, d.target); err != nil {
			d.logger.Debug("mark read failed", zap.Error(err))
			return
		}
		d.mu.Lock()
		if d.conv != nil {
			d.conv.UnreadCount = 0
		}
		d.mu.Unlock()
		d.publish(bus.ReadChanged{})
	}
}

// hasUnread reports whether msgs hold a confirmed message from someone
// other than userID that is not read yet.
func hasUnread(msgs []transcript.Message, userID int64) bool {
	for _, m := range msgs {
		if !m.Pending && m.ID > 0 && m.SenderID != userID && !m.Read {
			return true
		}
	}
	return false
}

// LoadPrevious loads one more page of older history.
func (d *Discussion) LoadPrevious(ctx context.Context) error {
	if err := d.waitForFetch(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.pagesLoaded++
	d.mu.Unlock()

	if err := d.Fetch(ctx, false); err != nil {
		d.mu.Lock()
		d.pagesLoaded--
		d.mu.Unlock()
		return err
	}
	return nil
}

// waitForFetch returns once no fetch is running.
func (d *Discussion) waitForFetch(ctx context.Context) error {
	for {
		d.mu.Lock()
		fetching := d.fetching
		d.mu.Unlock()
		if !fetching {
			return nil
		}
		select {
		case <-time.After(d.cfg.FetchWaitStep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Submit shows text immediately as being sent, then sends or queues it.
// While any submit is in flight, fetches are skipped so the optimistic
// entry does not flicker. A business error removes the entry and is
// returned.
func (d *Discussion) Submit(ctx context.Context, text string) (*outbox.Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	hidden := d.tr.HideUnreadLabel()
	opt := d.tr.AddOptimistic(text, d.now())
	d.sending++
	snap := d.snapshotLocked()
	d.mu.Unlock()

	if hidden {
		d.publish(bus.ReadWatermark{MessageID: transcript.WatermarkNone})
	}
	d.publish(bus.TranscriptUpdated{})

	if err := d.waitForFetch(ctx); err != nil {
		d.logger.Debug("stopped waiting for fetch", zap.Error(err))
	}
	res, err := d.deps.Sender.Submit(ctx, d.target, text, snap)

	d.mu.Lock()
	d.sending--
	d.tr.Release(opt.Hash)
	if err != nil {
		d.tr.Remove(opt.Hash)
		last, changed := d.tr.Refresh()
		d.mu.Unlock()
		d.publishLast(last, changed)
		d.publish(bus.TranscriptUpdated{})
		return nil, err
	}
	d.mu.Unlock()

	settled := false
	if res.Sent {
		if ferr := d.Fetch(ctx, true); ferr != nil {
			d.logger.Debug("refresh after send failed", zap.Error(ferr))
		} else {
			settled = true
		}
	}
	if !settled {
		d.mu.Lock()
		d.tr.Update(opt.Hash, func(m *transcript.Message) {
			m.Sending = false
			if res.Sent {
				m.Pending = false
			} else if res.Queued != nil {
				m.CreatedAt = res.Queued.CreatedAt
			}
		})
		last, changed := d.tr.Refresh()
		d.mu.Unlock()
		d.publishLast(last, changed)
		d.publish(bus.TranscriptUpdated{})
	}
	return res, nil
}

// snapshotLocked must be called with d.mu held.
func (d *Discussion) snapshotLocked() *offline.Snapshot {
	if !d.target.IsConversation() {
		return nil
	}
	snap := &offline.Snapshot{Name: d.title}
	if d.conv != nil {
		snap.Subtitle = d.conv.Subtitle
		snap.ImageURL = d.conv.ImageURL
		snap.Type = d.conv.Type
		snap.IsFavourite = d.conv.IsFavourite
	}
	return snap
}

// SetForeground starts polling when the view is visible and stops it when
// hidden.
func (d *Discussion) SetForeground(visible bool) {
	d.mu.Lock()
	destroyed := d.destroyed
	d.mu.Unlock()
	if visible && !destroyed {
		d.poller.Start(d.bgCtx)
		return
	}
	d.poller.Stop()
}

// AcknowledgeNew resets the new messages badge.
func (d *Discussion) AcknowledgeNew() {
	d.mu.Lock()
	d.newMessages = 0
	d.mu.Unlock()
}

// Close stops polling and background refreshes. Results of requests still
// in flight are discarded.
func (d *Discussion) Close() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	unsub := d.unsubscribe
	d.mu.Unlock()

	d.poller.Stop()
	d.cancelBgWork()
	if unsub != nil {
		unsub()
	}
}

// View returns a snapshot for rendering.
func (d *Discussion) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	members := make(map[int64]string, len(d.memberNames))
	for id, name := range d.memberNames {
		members[id] = name
	}
	return View{
		Target:      d.target,
		Title:       d.title,
		IsGroup:     d.conv.IsGroup(),
		Messages:    d.tr.Messages(),
		Members:     members,
		CanLoadMore: d.canLoadMore,
		NewMessages: d.newMessages,
		UnreadFrom:  d.tr.Watermark(),
		Polling:     d.poller.Running(),
	}
}

func (d *Discussion) publishLast(last *transcript.LastMessage, changed bool) {
	if !changed {
		return
	}
	evt := bus.LastMessage{}
	if last != nil {
		evt = bus.LastMessage{Text: last.Text, Timestamp: last.CreatedAt, SenderID: last.SenderID}
	}
	d.publish(evt)
}

func (d *Discussion) publish(p bus.Payload) {
	if d.deps.Bus != nil {
		d.deps.Bus.Publish(d.target, p)
	}
}
