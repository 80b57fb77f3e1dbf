// Package remote talks to the lodge REST API: paginated lists, CRUD and the
// program attendance sub-resource. Every failure is returned as a
// *failure.Error so callers can branch on its kind.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"lodge/internal/adapters/perf"
	"lodge/internal/domain/failure"
)

// Defaults for Options fields left zero.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultSlowRequest = 800 * time.Millisecond
	maxResponseBytes   = 4 << 20
)

// ErrNoBaseURL is returned by New when no API address is configured.
var ErrNoBaseURL = errors.New("api base url is required")

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       string // bearer token; empty sends no Authorization header
	Timeout     time.Duration
	SlowRequest time.Duration
	Collector   *perf.Collector   // optional
	Transport   http.RoundTripper // optional base transport
}

// Client is a JSON-over-HTTP client for the lodge API.
type Client struct {
	base      *url.URL
	http      *http.Client
	collector *perf.Collector
	slow      time.Duration
}

// New builds a client. The bearer token is attached by an oauth2 transport
// wrapped around opts.Transport.
// PRE: opts.BaseURL is an absolute URL
// POST: Returns a client whose every request is bounded by opts.Timeout
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SlowRequest <= 0 {
		opts.SlowRequest = DefaultSlowRequest
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}),
			Base:   transport,
		}
	}

	return &Client{
		base:      base,
		http:      &http.Client{Transport: transport, Timeout: opts.Timeout},
		collector: opts.Collector,
		slow:      opts.SlowRequest,
	}, nil
}

// call describes one API request. op labels it in logs and timings with
// path parameters left as placeholders.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
}

// do sends c and decodes a 2xx JSON response into out (ignored when nil).
// POST: err is nil, a *failure.Error, context.Canceled, or a decode error
func (cl *Client) do(ctx context.Context, c call, out any) (err error) {
	u := cl.base.JoinPath(c.path)
	if len(c.query) > 0 {
		u.RawQuery = c.query.Encode()
	}

	var body io.Reader
	if c.body != nil {
		payload, err := json.Marshal(c.body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", c.op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build %s: %w", c.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	status := 0
	defer func() { cl.observe(c.op, requestID, status, start, err) }()

	resp, err := cl.http.Do(req)
	if err != nil {
		return transportFailure(c.op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportFailure(c.op, err)
	}
	if status < 200 || status > 299 {
		return decodeFailure(status, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.op, err)
	}
	return nil
}

// observe logs the call and records its timing.
func (cl *Client) observe(op, requestID string, status int, start time.Time, err error) {
	elapsed := time.Since(start)
	durationMs := float64(elapsed.Microseconds()) / 1000.0

	attrs := []any{"request_id", requestID, "op", op, "status", status, "duration_ms", durationMs}
	if err != nil {
		attrs = append(attrs, "kind", failure.KindOf(err).String())
	}
	if elapsed >= cl.slow {
		slog.Warn("slow_request", attrs...)
	} else {
		slog.Debug("request", attrs...)
	}

	cl.collector.Record(perf.Entry{
		Kind:       perf.KindCall,
		Op:         op,
		StatusCode: status,
		Failed:     err != nil,
		DurationMs: durationMs,
		Timestamp:  start,
	})
}

// transportFailure classifies a failure that never produced a response.
// Caller cancellation is passed through untouched.
func transportFailure(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return failure.Transient(op+": request failed", err)
}

// errorEnvelope is the body of a non-2xx response.
type errorEnvelope struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  json.RawMessage `json:"errors"`
}

// decodeFailure maps an HTTP error status and body to a *failure.Error.
func decodeFailure(status int, body []byte) error {
	var env errorEnvelope
	_ = json.Unmarshal(body, &env)

	fields, summary := parseErrors(env.Errors)
	msg := firstNonEmpty(env.Message, env.Error, summary, http.StatusText(status))

	fe := &failure.Error{Status: status, Message: msg}
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		fe.Kind = failure.KindValidation
		fe.Fields = fields
	case status == http.StatusNotFound || status == http.StatusGone:
		fe.Kind = failure.KindNotFound
	case status == http.StatusConflict || status == http.StatusPreconditionFailed:
		fe.Kind = failure.KindConflict
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		fe.Kind = failure.KindTransient
	default:
		fe.Kind = failure.KindUnknown
	}
	return fe
}

// parseErrors accepts the shapes the API uses for "errors": a field map
// (string or list values), a list of {field, message} objects, a list of
// strings or a single string.
func parseErrors(raw json.RawMessage) (map[string][]string, string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ""
	}

	var many map[string][]string
	if json.Unmarshal(raw, &many) == nil {
		return many, ""
	}
	var single map[string]string
	if json.Unmarshal(raw, &single) == nil {
		fields := make(map[string][]string, len(single))
		for k, v := range single {
			fields[k] = []string{v}
		}
		return fields, ""
	}
	var items []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &items) == nil && len(items) > 0 && items[0].Message != "" {
		fields := make(map[string][]string)
		for _, it := range items {
			key := it.Field
			if key == "" {
				key = "_"
			}
			fields[key] = append(fields[key], it.Message)
		}
		return fields, ""
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return nil, strings.Join(list, "; ")
	}
	var text string
	if json.Unmarshal(raw, &text) == nil {
		return nil, text
	}
	return nil, ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
