package transcript

import (
	"sort"
	"time"

	"github.com/matheus3301/msgsync/internal/remote"
)

// Watermark values besides a message id.
const (
	// WatermarkUnset means the unread label position was not computed yet.
	WatermarkUnset int64 = 0
	// WatermarkNone means there is no label and none will be placed.
	WatermarkNone int64 = -1
)

// LastMessage is what listeners are told about the newest entry.
type LastMessage struct {
	Text      string
	CreatedAt int64
	SenderID  int64
}

// MergeResult summarizes one Merge.
type MergeResult struct {
	// Added counts new entries sent by other users.
	Added int
	// LastChanged is set when the newest entry differs from the one last
	// reported. Last is nil when the transcript is empty.
	LastChanged bool
	Last        *LastMessage
	// PrevLast is the previously reported newest entry, if any.
	PrevLast *LastMessage
}

// Transcript is not safe for concurrent use.
type Transcript struct {
	userID    int64
	isGroup   bool
	members   map[int64]string
	loc       *time.Location
	messages  []*Message
	keep      map[string]bool
	protected map[string]bool
	seq       int64
	nextTemp  int64

	last     *LastMessage
	notified bool
	unread   int64
}

// Option configures a Transcript.
type Option func(*Transcript)

// WithLocation sets the time zone used to split messages by day.
func WithLocation(loc *time.Location) Option {
	return func(t *Transcript) { t.loc = loc }
}

// New creates an empty transcript for userID.
func New(userID int64, opts ...Option) *Transcript {
	t := &Transcript{
		userID:    userID,
		members:   make(map[int64]string),
		loc:       time.Local,
		keep:      make(map[string]bool),
		protected: make(map[string]bool),
		nextTemp:  -1,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// SetGroup marks the transcript as a group conversation, which makes
// sender names visible.
func (t *Transcript) SetGroup(group bool) {
	t.isGroup = group
}

// AddMembers records participants. Existing entries are updated, never
// removed.
func (t *Transcript) AddMembers(members []remote.Member) {
	for _, m := range members {
		t.members[m.ID] = m.FullName
	}
}

// MemberName returns the full name of a known participant.
func (t *Transcript) MemberName(id int64) (string, bool) {
	name, ok := t.members[id]
	return name, ok
}

// Add appends m unless an entry with the same hash exists, and sets its
// keep flag. It reports whether a new message from another user was added.
func (t *Transcript) Add(m Message, keep bool) bool {
	if m.Hash == "" {
		m.Hash = Hash(m)
	}
	added := false
	if _, ok := t.keep[m.Hash]; !ok {
		t.seq++
		m.seq = t.seq
		t.messages = append(t.messages, &m)
		added = m.SenderID != t.userID
	}
	t.keep[m.Hash] = keep
	return added
}

// sweep drops hash unless it is kept or protected. A kept hash has its flag
// cleared so the next merge decides again.
func (t *Transcript) sweep(hash string) {
	if t.keep[hash] {
		t.keep[hash] = false
		return
	}
	if t.protected[hash] {
		return
	}
	t.Remove(hash)
}

// Remove deletes the entry with hash regardless of flags.
func (t *Transcript) Remove(hash string) {
	delete(t.keep, hash)
	delete(t.protected, hash)
	for i, m := range t.messages {
		if m.Hash == hash {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return
		}
	}
}

// Merge folds a fresh snapshot of the discussion into the transcript:
// entries in msgs are added if new, entries missing from msgs are dropped
// (except protected in-flight sends), then the list is sorted and display
// flags recomputed.
func (t *Transcript) Merge(msgs []Message) MergeResult {
	var res MergeResult
	for _, m := range msgs {
		if t.Add(m, true) {
			res.Added++
		}
	}
	for hash := range t.keep {
		t.sweep(hash)
	}
	t.sortAndFlag()

	res.PrevLast = t.last
	res.LastChanged = t.updateLast()
	res.Last = t.last
	return res
}

func (t *Transcript) updateLast() bool {
	var cur *LastMessage
	if n := len(t.messages); n > 0 {
		m := t.messages[n-1]
		cur = &LastMessage{Text: m.Text, CreatedAt: m.CreatedAt, SenderID: m.SenderID}
	}
	changed := !t.notified
	switch {
	case cur == nil && t.last != nil:
		changed = true
	case cur != nil && (t.last == nil || cur.Text != t.last.Text || cur.CreatedAt != t.last.CreatedAt):
		changed = true
	}
	t.last = cur
	t.notified = true
	return changed
}

// Refresh re-sorts and recomputes flags and the newest entry after direct
// edits. It reports whether the newest entry changed.
func (t *Transcript) Refresh() (last *LastMessage, changed bool) {
	t.sortAndFlag()
	changed = t.updateLast()
	return t.last, changed
}

// sortAndFlag orders confirmed messages by time then id, with pending ones
// last in the order they were added.
func (t *Transcript) sortAndFlag() {
	sort.SliceStable(t.messages, func(i, j int) bool {
		a, b := t.messages[i], t.messages[j]
		if a.Pending != b.Pending {
			return !a.Pending
		}
		if a.Pending {
			return a.seq < b.seq
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})

	for i, m := range t.messages {
		m.ShowDate = i == 0 || !t.sameDay(m.CreatedAt, t.messages[i-1].CreatedAt)
	}
	for i, m := range t.messages {
		var prev, next *Message
		if i > 0 {
			prev = t.messages[i-1]
		}
		if i+1 < len(t.messages) {
			next = t.messages[i+1]
		}
		_, known := t.members[m.SenderID]
		m.ShowUserData = t.isGroup && m.SenderID != t.userID && known &&
			(prev == nil || prev.SenderID != m.SenderID || m.ShowDate)
		m.ShowTail = next == nil || next.SenderID != m.SenderID || next.ShowDate
	}
}

func (t *Transcript) sameDay(a, b int64) bool {
	ya, ma, da := time.UnixMilli(a).In(t.loc).Date()
	yb, mb, db := time.UnixMilli(b).In(t.loc).Date()
	return ya == yb && ma == mb && da == db
}

// AddOptimistic shows text as being sent right away. The entry gets a
// fresh negative id, is protected from merges until Release and is
// dropped by the first merge after that.
func (t *Transcript) AddOptimistic(text string, now time.Time) Message {
	m := Message{
		ID:        t.nextTemp,
		SenderID:  t.userID,
		Text:      text,
		CreatedAt: now.UnixMilli(),
		Pending:   true,
		Sending:   true,
	}
	t.nextTemp--
	m.Hash = Hash(m)
	t.Add(m, false)
	t.protected[m.Hash] = true
	t.sortAndFlag()
	return m
}

// Release lifts the merge protection of an optimistic entry.
func (t *Transcript) Release(hash string) {
	delete(t.protected, hash)
}

// Update applies fn to the entry with hash. The hash itself is kept even if
// fn changes the fields it was derived from.
func (t *Transcript) Update(hash string, fn func(*Message)) bool {
	for _, m := range t.messages {
		if m.Hash == hash {
			fn(m)
			m.Hash = hash
			return true
		}
	}
	return false
}

// Messages returns a copy of the entries in display order.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = *m
	}
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Last returns the newest entry last reported by a merge.
func (t *Transcript) Last() *LastMessage {
	return t.last
}

// UnreadWatermark places the unread label once per transcript: walking from
// the newest entry back, skipping pending and own messages, it picks the
// unreadCount-th confirmed message from others. Later calls return the
// stored value. WatermarkNone is stored when no such message exists.
func (t *Transcript) UnreadWatermark(unreadCount int) int64 {
	if t.unread != WatermarkUnset {
		return t.unread
	}
	if unreadCount > 0 {
		found := 0
		for i := len(t.messages) - 1; i >= 0; i-- {
			m := t.messages[i]
			if m.Pending || m.SenderID == t.userID || m.ID <= 0 {
				continue
			}
			found++
			if found == unreadCount {
				t.unread = m.ID
				break
			}
		}
	}
	if t.unread == WatermarkUnset {
		t.unread = WatermarkNone
	}
	return t.unread
}

// FirstUnreadWatermark places the unread label from per-message read
// flags: walking oldest first over confirmed messages from others, it
// picks the first unread one that follows a read one. Later calls return
// the stored value.
func (t *Transcript) FirstUnreadWatermark() int64 {
	if t.unread != WatermarkUnset {
		return t.unread
	}
	previousRead := false
	for _, m := range t.messages {
		if m.Pending || m.SenderID == t.userID || m.ID <= 0 {
			continue
		}
		if !m.Read && previousRead {
			t.unread = m.ID
			return t.unread
		}
		previousRead = m.Read
	}
	t.unread = WatermarkNone
	return t.unread
}

// Watermark returns the stored unread label position.
func (t *Transcript) Watermark() int64 {
	return t.unread
}

// HideUnreadLabel removes a placed label for good.
func (t *Transcript) HideUnreadLabel() bool {
	if t.unread > 0 {
		t.unread = WatermarkNone
		return true
	}
	return false
}
