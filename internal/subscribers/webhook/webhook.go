// Package webhook posts provisioning events to external HTTP receivers, such as the
// transcript pipeline that later fills in a session record's transcript.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Aaditya4007/AI-interviewer/internal/events"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 4 << 10
	userAgent          = "room-gateway-webhook/1"

	HeaderEventID   = "X-Room-Event-Id"
	HeaderEventType = "X-Room-Event-Type"
	HeaderSignature = "X-Room-Signature"
)

var ErrBadSignature = errors.New("webhook signature mismatch")

type Option func(*WebhookSubscriber)

type WebhookSubscriber struct {
	name       string
	URL        string
	httpClient *http.Client
	logger     *log.Logger
	filter     func(events.EventType) bool
	secret     []byte
	now        func() time.Time
}

func New(name string, url string, logger *log.Logger, opts ...Option) *WebhookSubscriber {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	sub := &WebhookSubscriber{
		name:       strings.TrimSpace(name),
		URL:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger,
		now:        time.Now,
	}
	if sub.name == "" {
		sub.name = "webhook"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sub)
		}
	}
	return sub
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *WebhookSubscriber) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithEventFilter(filter func(events.EventType) bool) Option {
	return func(s *WebhookSubscriber) {
		s.filter = filter
	}
}

// WithSigningSecret adds HeaderSignature to every delivery. A blank secret leaves
// deliveries unsigned.
func WithSigningSecret(secret string) Option {
	return func(s *WebhookSubscriber) {
		if trimmed := strings.TrimSpace(secret); trimmed != "" {
			s.secret = []byte(trimmed)
		}
	}
}

// Sign returns the signature header value "t=<unix>,v1=<hex hmac-sha256>" computed over
// "<unix>.<body>".
func Sign(secret []byte, timestamp int64, body []byte) string {
	ts := strconv.FormatInt(timestamp, 10)
	return "t=" + ts + ",v1=" + digest(secret, ts, body)
}

// Verify checks a signature header produced by Sign. Signatures older or newer than
// tolerance relative to now are rejected; tolerance <= 0 disables the age check.
func Verify(secret []byte, header string, body []byte, tolerance time.Duration, now time.Time) error {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sig = value
		}
	}
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: malformed header", ErrBadSignature)
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrBadSignature)
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrBadSignature)
		}
	}
	if !hmac.Equal([]byte(sig), []byte(digest(secret, ts, body))) {
		return ErrBadSignature
	}
	return nil
}

func digest(secret []byte, ts string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *WebhookSubscriber) Name() string {
	return s.name
}

func (s *WebhookSubscriber) Handle(ctx context.Context, event events.Event) error {
	if s.filter != nil && !s.filter(event.EventType) {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderEventID, event.EventID)
	req.Header.Set(HeaderEventType, string(event.EventType))
	if len(s.secret) > 0 {
		req.Header.Set(HeaderSignature, Sign(s.secret, s.now().Unix(), body))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil
	}
	s.logger.Printf("webhook rejected delivery webhook=%s event_id=%s room=%q status=%d", s.name, event.EventID, event.RoomName, resp.StatusCode)
	return statusError(resp)
}

func statusError(resp *http.Response) error {
	snippet, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return fmt.Errorf("webhook status=%d read body: %w", resp.StatusCode, err)
	}
	message := strings.TrimSpace(string(snippet))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("webhook status=%d body=%q", resp.StatusCode, message)
}
