package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/msgsync/internal/logging"
	"github.com/matheus3301/msgsync/internal/session"
	"github.com/matheus3301/msgsync/internal/target"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every web service call.
const DefaultTimeout = 30 * time.Second

const restPath = "/webservice/rest/server.php"

// Client calls the server's REST web service with a user token.
type Client struct {
	baseURL    string
	token      string
	userID     int64
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for the site of sess, acting as its user.
func NewClient(sess session.Session, logger *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(sess.URL, "/"),
		token:      sess.Token,
		userID:     sess.UserID,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logging.OrNop(logger).With(zap.String("component", "remote")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type wsException struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// call invokes wsfunction and decodes the JSON result into out.
func (c *Client) call(ctx context.Context, function string, params url.Values, out any) error {
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("wstoken", c.token)
	form.Set("wsfunction", function)
	form.Set("moodlewsrestformat", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+restPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Function: function, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Function: function, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("web service call",
		zap.String("function", function),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Function: function, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var exc wsException
	if json.Unmarshal(body, &exc) == nil && exc.Exception != "" {
		return &Error{Code: exc.ErrorCode, Message: exc.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Function: function, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type wsMessage struct {
	ID             int64  `json:"id"`
	MsgID          int64  `json:"msgid"`
	ConversationID int64  `json:"conversationid"`
	UserIDFrom     int64  `json:"useridfrom"`
	Text           string `json:"text"`
	TimeCreated    int64  `json:"timecreated"`
	ErrorMessage   string `json:"errormessage"`
}

func (m wsMessage) toMessage() Message {
	id := m.ID
	if id == 0 {
		id = m.MsgID
	}
	return Message{
		ID:             id,
		ConversationID: m.ConversationID,
		SenderID:       m.UserIDFrom,
		Text:           m.Text,
		CreatedAt:      m.TimeCreated * 1000,
	}
}

type wsMember struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullname"`
}

func toMembers(in []wsMember) []Member {
	out := make([]Member, 0, len(in))
	for _, m := range in {
		out = append(out, Member{ID: m.ID, FullName: m.FullName})
	}
	return out
}

// Send implements API.
func (c *Client) Send(ctx context.Context, t target.Target, text string) (*Message, error) {
	params := url.Values{}
	params.Set("messages[0][text]", text)
	params.Set("messages[0][textformat]", "1")

	var resp []wsMessage
	switch t.Kind {
	case target.Conversation:
		params.Set("conversationid", strconv.FormatInt(t.ID, 10))
		if err := c.call(ctx, "core_message_send_messages_to_conversation", params, &resp); err != nil {
			return nil, err
		}
	case target.User:
		params.Set("messages[0][touserid]", strconv.FormatInt(t.ID, 10))
		if err := c.call(ctx, "core_message_send_instant_messages", params, &resp); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("send: invalid target %s", t)
	}

	if len(resp) == 0 {
		return nil, fmt.Errorf("send to %s: empty response", t)
	}
	if resp[0].MsgID == -1 || resp[0].ErrorMessage != "" {
		return nil, &Error{Code: "sendmessagefailed", Message: resp[0].ErrorMessage}
	}
	msg := resp[0].toMessage()
	if msg.SenderID == 0 {
		msg.SenderID = c.userID
	}
	if msg.Text == "" {
		msg.Text = text
	}
	if t.IsConversation() {
		msg.ConversationID = t.ID
	}
	return &msg, nil
}

// FetchMessages implements API. For user targets both directions are
// fetched with the same window and merged, so CanLoadMore is set when
// either direction has more.
func (c *Client) FetchMessages(ctx context.Context, t target.Target, opts FetchOptions) (*Page, error) {
	switch t.Kind {
	case target.Conversation:
		return c.fetchConversationMessages(ctx, t.ID, opts)
	case target.User:
		return c.fetchPeerMessages(ctx, t.ID, opts)
	}
	return nil, fmt.Errorf("fetch messages: invalid target %s", t)
}

func (c *Client) fetchConversationMessages(ctx context.Context, conversationID int64, opts FetchOptions) (*Page, error) {
	params := url.Values{}
	params.Set("currentuserid", strconv.FormatInt(c.userID, 10))
	params.Set("convid", strconv.FormatInt(conversationID, 10))
	params.Set("newest", "1")
	params.Set("limitfrom", strconv.Itoa(opts.Offset))
	if opts.Limit > 0 {
		// One extra row tells whether there is another page.
		params.Set("limitnum", strconv.Itoa(opts.Limit+1))
	}
	if opts.TimeFrom > 0 {
		params.Set("timefrom", strconv.FormatInt(opts.TimeFrom/1000, 10))
	}

	var resp struct {
		ID       int64       `json:"id"`
		Members  []wsMember  `json:"members"`
		Messages []wsMessage `json:"messages"`
	}
	if err := c.call(ctx, "core_message_get_conversation_messages", params, &resp); err != nil {
		return nil, err
	}

	page := &Page{Members: toMembers(resp.Members)}
	raw := resp.Messages
	if opts.Limit > 0 && len(raw) > opts.Limit {
		page.CanLoadMore = true
		raw = raw[:opts.Limit]
	}
	for _, m := range raw {
		if opts.OnlyFromMe && m.UserIDFrom != c.userID {
			continue
		}
		msg := m.toMessage()
		msg.ConversationID = conversationID
		page.Messages = append(page.Messages, msg)
	}
	return page, nil
}

// fetchPeerMessages pages through a one-to-one history kept as four
// server lists: sent and received, each split into unread and read. The
// first Offset+Limit+1 rows of every list cover the merged window, so the
// window is cut from their union.
func (c *Client) fetchPeerMessages(ctx context.Context, peerID int64, opts FetchOptions) (*Page, error) {
	n := 0
	if opts.Limit > 0 {
		n = opts.Offset + opts.Limit + 1
	}
	directions := [][2]int64{{c.userID, peerID}}
	if !opts.OnlyFromMe {
		directions = append(directions, [2]int64{peerID, c.userID})
	}

	var all []Message
	seen := make(map[int64]bool)
	for _, dir := range directions {
		for _, read := range []bool{false, true} {
			msgs, err := c.fetchDirection(ctx, dir[0], dir[1], read, n)
			if err != nil {
				return nil, err
			}
			for _, m := range msgs {
				// A message read between the two calls shows up in both lists.
				if m.ID != 0 && seen[m.ID] {
					continue
				}
				seen[m.ID] = true
				all = append(all, m)
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt != all[j].CreatedAt {
			return all[i].CreatedAt > all[j].CreatedAt
		}
		return all[i].ID > all[j].ID
	})
	if opts.TimeFrom > 0 {
		kept := all[:0]
		for _, m := range all {
			if m.CreatedAt >= opts.TimeFrom {
				kept = append(kept, m)
			}
		}
		all = kept
	}

	page := &Page{}
	if opts.Offset >= len(all) {
		return page, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && len(all) > opts.Limit {
		page.CanLoadMore = true
		all = all[:opts.Limit]
	}
	page.Messages = all
	return page, nil
}

// fetchDirection returns the newest limit messages from one user to another
// that are read or unread. limit 0 returns them all.
func (c *Client) fetchDirection(ctx context.Context, from, to int64, read bool, limit int) ([]Message, error) {
	params := url.Values{}
	params.Set("useridto", strconv.FormatInt(to, 10))
	params.Set("useridfrom", strconv.FormatInt(from, 10))
	params.Set("type", "conversations")
	params.Set("read", "0")
	if read {
		params.Set("read", "1")
	}
	params.Set("newestfirst", "1")
	params.Set("limitfrom", "0")
	params.Set("limitnum", strconv.Itoa(limit))

	var resp struct {
		Messages []wsMessage `json:"messages"`
	}
	if err := c.call(ctx, "core_message_get_messages", params, &resp); err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msg := m.toMessage()
		if msg.SenderID == 0 {
			msg.SenderID = from
		}
		msg.Read = read
		out = append(out, msg)
	}
	return out, nil
}

// FetchConversation implements API.
func (c *Client) FetchConversation(ctx context.Context, id int64) (*Conversation, error) {
	params := url.Values{}
	params.Set("userid", strconv.FormatInt(c.userID, 10))
	params.Set("conversationid", strconv.FormatInt(id, 10))
	params.Set("includecontactrequests", "0")
	params.Set("includeprivacyinfo", "0")
	params.Set("memberlimit", "0")

	var resp struct {
		ID          int64      `json:"id"`
		Name        string     `json:"name"`
		Subname     string     `json:"subname"`
		ImageURL    string     `json:"imageurl"`
		Type        int        `json:"type"`
		IsFavourite bool       `json:"isfavourite"`
		IsMuted     bool       `json:"ismuted"`
		UnreadCount int        `json:"unreadcount"`
		Members     []wsMember `json:"members"`
	}
	if err := c.call(ctx, "core_message_get_conversation", params, &resp); err != nil {
		return nil, err
	}
	conv := &Conversation{
		ID:          resp.ID,
		Type:        ConversationType(resp.Type),
		Name:        resp.Name,
		Subtitle:    resp.Subname,
		ImageURL:    resp.ImageURL,
		IsFavourite: resp.IsFavourite,
		IsMuted:     resp.IsMuted,
		UnreadCount: resp.UnreadCount,
		Members:     toMembers(resp.Members),
	}
	// Individual conversations are named after the other member.
	if conv.Name == "" && conv.Type == Individual {
		for _, m := range conv.Members {
			if m.ID != c.userID {
				conv.Name = m.FullName
				break
			}
		}
	}
	return conv, nil
}

// FetchUserName implements API.
func (c *Client) FetchUserName(ctx context.Context, userID int64) (string, error) {
	params := url.Values{}
	params.Set("field", "id")
	params.Set("values[0]", strconv.FormatInt(userID, 10))

	var resp []wsMember
	if err := c.call(ctx, "core_user_get_users_by_field", params, &resp); err != nil {
		return "", err
	}
	if len(resp) == 0 {
		return "", &Error{Code: "invaliduser", Message: fmt.Sprintf("user %d not found", userID)}
	}
	return resp[0].FullName, nil
}

// MarkRead implements API.
func (c *Client) MarkRead(ctx context.Context, t target.Target) error {
	params := url.Values{}
	switch t.Kind {
	case target.Conversation:
		params.Set("userid", strconv.FormatInt(c.userID, 10))
		params.Set("conversationid", strconv.FormatInt(t.ID, 10))
		return c.call(ctx, "core_message_mark_all_conversation_messages_as_read", params, nil)
	case target.User:
		params.Set("useridto", strconv.FormatInt(c.userID, 10))
		params.Set("useridfrom", strconv.FormatInt(t.ID, 10))
		return c.call(ctx, "core_message_mark_all_messages_as_read", params, nil)
	}
	return fmt.Errorf("mark read: invalid target %s", t)
}
