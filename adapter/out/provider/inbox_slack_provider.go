package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"inbox_server/core/port/out"
	"inbox_server/pkg/httputil"
)

const slackAPIBaseURL = "https://slack.com/api"

// SlackProvider implements out.MessageProvider for the Slack Web API.
// Channel messages are normalized into the mail shape: the message id is
// "channelID:ts" and the channel name becomes the subject.
type SlackProvider struct {
	mu           sync.RWMutex
	channelNames map[string]string
	userNames    map[string]string
}

var _ out.MessageProvider = (*SlackProvider)(nil)

// NewSlackProvider creates a new Slack message provider.
func NewSlackProvider() *SlackProvider {
	return &SlackProvider{
		channelNames: make(map[string]string),
		userNames:    make(map[string]string),
	}
}

type slackChannel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsArchived bool   `json:"is_archived"`
}

type slackMessage struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Text     string `json:"text"`
	Ts       string `json:"ts"`
	ThreadTs string `json:"thread_ts"`
}

// ListMessageIDs returns up to maxResults message ids across all public
// channels, newest first.
func (p *SlackProvider) ListMessageIDs(ctx context.Context, accessToken string, maxResults int, newerThan *time.Time) ([]string, error) {
	if maxResults <= 0 {
		maxResults = 50
	}

	channels, err := p.listChannels(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	type ref struct {
		id string
		ts float64
	}
	var refs []ref

	for _, ch := range channels {
		if ch.IsArchived {
			continue
		}

		params := url.Values{}
		params.Set("channel", ch.ID)
		params.Set("limit", strconv.Itoa(maxResults))
		if newerThan != nil {
			params.Set("oldest", fmt.Sprintf("%d.000000", newerThan.Unix()))
		}

		var result struct {
			Messages []slackMessage `json:"messages"`
		}
		if err := p.callGet(ctx, accessToken, "conversations.history", params, &result); err != nil {
			// One unreadable channel should not sink the whole sync
			continue
		}

		for _, msg := range result.Messages {
			if msg.Type != "message" || msg.Ts == "" {
				continue
			}
			ts, err := strconv.ParseFloat(msg.Ts, 64)
			if err != nil {
				continue
			}
			refs = append(refs, ref{id: ch.ID + ":" + msg.Ts, ts: ts})
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ts > refs[j].ts })
	if len(refs) > maxResults {
		refs = refs[:maxResults]
	}

	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.id
	}
	return ids, nil
}

// GetMessage fetches one channel message by its "channelID:ts" id.
func (p *SlackProvider) GetMessage(ctx context.Context, accessToken, messageID string) (*out.ProviderMessage, error) {
	channelID, ts, err := splitSlackMessageID(messageID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("latest", ts)
	params.Set("inclusive", "true")
	params.Set("limit", "1")

	var result struct {
		Messages []slackMessage `json:"messages"`
	}
	if err := p.callGet(ctx, accessToken, "conversations.history", params, &result); err != nil {
		return nil, err
	}
	if len(result.Messages) == 0 || result.Messages[0].Ts != ts {
		return nil, fmt.Errorf("slack: message %s not found", messageID)
	}

	msg := result.Messages[0]
	channelName := p.channelName(ctx, accessToken, channelID)
	sentAt := slackTsToTime(msg.Ts)

	normalized := &out.ProviderMessage{
		ID:           messageID,
		Subject:      "#" + channelName,
		From:         p.userName(ctx, accessToken, msg.User),
		SentAt:       sentAt,
		Snippet:      truncate(msg.Text, 200),
		TextBody:     msg.Text,
		SizeEstimate: int64(len(msg.Text)),
	}
	if msg.ThreadTs != "" {
		normalized.ThreadID = channelID + ":" + msg.ThreadTs
	}
	return normalized, nil
}

// SendMessage posts a reply into the originating channel thread.
func (p *SlackProvider) SendMessage(ctx context.Context, accessToken string, msg *out.OutgoingMessage) (*out.SentMessage, error) {
	threadRef := msg.ThreadID
	if threadRef == "" {
		threadRef = msg.InReplyTo
	}
	channelID, threadTs, err := splitSlackMessageID(threadRef)
	if err != nil {
		return nil, fmt.Errorf("slack: reply target required: %w", err)
	}

	payload := map[string]string{
		"channel":   channelID,
		"text":      msg.Body,
		"thread_ts": threadTs,
	}

	var result struct {
		Ts      string `json:"ts"`
		Channel string `json:"channel"`
	}
	if err := p.callPost(ctx, accessToken, "chat.postMessage", payload, &result); err != nil {
		return nil, err
	}

	return &out.SentMessage{
		ID:       result.Channel + ":" + result.Ts,
		ThreadID: channelID + ":" + threadTs,
	}, nil
}

func (p *SlackProvider) listChannels(ctx context.Context, accessToken string) ([]slackChannel, error) {
	params := url.Values{}
	params.Set("types", "public_channel")
	params.Set("exclude_archived", "true")
	params.Set("limit", "200")

	var result struct {
		Channels []slackChannel `json:"channels"`
	}
	if err := p.callGet(ctx, accessToken, "conversations.list", params, &result); err != nil {
		return nil, err
	}

	p.mu.Lock()
	for _, ch := range result.Channels {
		p.channelNames[ch.ID] = ch.Name
	}
	p.mu.Unlock()

	return result.Channels, nil
}

func (p *SlackProvider) channelName(ctx context.Context, accessToken, channelID string) string {
	p.mu.RLock()
	name, ok := p.channelNames[channelID]
	p.mu.RUnlock()
	if ok {
		return name
	}

	params := url.Values{}
	params.Set("channel", channelID)

	var result struct {
		Channel slackChannel `json:"channel"`
	}
	if err := p.callGet(ctx, accessToken, "conversations.info", params, &result); err != nil || result.Channel.Name == "" {
		return channelID
	}

	p.mu.Lock()
	p.channelNames[channelID] = result.Channel.Name
	p.mu.Unlock()
	return result.Channel.Name
}

func (p *SlackProvider) userName(ctx context.Context, accessToken, userID string) string {
	if userID == "" {
		return ""
	}

	p.mu.RLock()
	name, ok := p.userNames[userID]
	p.mu.RUnlock()
	if ok {
		return name
	}

	params := url.Values{}
	params.Set("user", userID)

	var result struct {
		User struct {
			Name    string `json:"name"`
			Profile struct {
				DisplayName string `json:"display_name"`
				RealName    string `json:"real_name"`
			} `json:"profile"`
		} `json:"user"`
	}
	if err := p.callGet(ctx, accessToken, "users.info", params, &result); err != nil {
		return userID
	}

	name = result.User.Profile.DisplayName
	if name == "" {
		name = result.User.Profile.RealName
	}
	if name == "" {
		name = result.User.Name
	}
	if name == "" {
		return userID
	}

	p.mu.Lock()
	p.userNames[userID] = name
	p.mu.Unlock()
	return name
}

func (p *SlackProvider) callGet(ctx context.Context, accessToken, method string, params url.Values, result interface{}) error {
	endpoint := slackAPIBaseURL + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return p.doCall(req, method, result)
}

func (p *SlackProvider) callPost(ctx context.Context, accessToken, method string, payload interface{}, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackAPIBaseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	return p.doCall(req, method, result)
}

// doCall executes the request and unwraps Slack's ok/error envelope
// before decoding the payload the caller asked for.
func (p *SlackProvider) doCall(req *http.Request, method string, result interface{}) error {
	resp, err := httputil.SlackClient().Do(req)
	if err != nil {
		return fmt.Errorf("slack: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("slack: %s read failed: %w", method, err)
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("slack: %s decode failed: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("slack: %s failed: %s", method, envelope.Error)
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("slack: %s decode failed: %w", method, err)
		}
	}
	return nil
}

func splitSlackMessageID(id string) (channel, ts string, err error) {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("slack: malformed message id %q", id)
	}
	return parts[0], parts[1], nil
}

func slackTsToTime(ts string) *time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return nil
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	t := time.Unix(sec, nsec).UTC()
	return &t
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up from the byte cut so a multi-byte rune is never split.
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
