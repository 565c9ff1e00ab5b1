// Package edgeclient is the station-side SDK for an edge node. Plays and
// redemptions are sent directly when the edge answers and otherwise land
// in a persisted queue that is flushed in order with a per-item retry cap.
// Registration and code lookup are never buffered: they fail with
// ErrOffline while the edge is unreachable.
//
// Run drives the two background loops (health probe and queue flush);
// without it the client still works but only flushes on ForceFlush.
package edgeclient

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
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Defaults for Config fields left zero.
const (
	DefaultBaseURL        = "http://localhost:3000/edge"
	DefaultProbeInterval  = 10 * time.Second
	DefaultProbeTimeout   = 3 * time.Second
	DefaultFlushInterval  = 30 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultMaxRetries     = 3
)

const (
	endpointRegister   = "/attendees/register"
	endpointAttendees  = "/attendees/"
	endpointExperience = "/experience"
	endpointRedemption = "/redemption"
	endpointHealth     = "/health"
)

// Config configures a Client. EventID and EventExperienceID are required
// and are added to every payload that needs them.
type Config struct {
	BaseURL           string
	EventID           string
	EventExperienceID string

	// QueuePath is the JSON file holding buffered operations. Empty keeps
	// the queue in memory.
	QueuePath string

	ProbeInterval  time.Duration
	ProbeTimeout   time.Duration
	FlushInterval  time.Duration
	RequestTimeout time.Duration
	MaxRetries     int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}

	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}

	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}

	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}

	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}

	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

func (c *Config) validate() error {
	var errs []error

	if strings.TrimSpace(c.EventID) == "" {
		errs = append(errs, errors.New("eventId is required"))
	}

	if strings.TrimSpace(c.EventExperienceID) == "" {
		errs = append(errs, errors.New("eventExperienceId is required"))
	}

	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("base URL: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("edgeclient: invalid config: %w", err)
	}

	return nil
}

// Client talks to one edge node.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	queue  *queue

	online  atomic.Bool
	flushMu sync.Mutex
}

// New validates cfg and loads any persisted queue. The client starts out
// assuming the edge is online.
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	q, err := openQueue(cfg.QueuePath, cfg.MaxRetries, cfg.Logger)
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg, http: cfg.HTTPClient, logger: cfg.Logger, queue: q}
	c.online.Store(true)

	if n := q.size(); n > 0 {
		c.logger.Info("queue restored", slog.Int("items", n), slog.String("path", cfg.QueuePath))
	}

	return c, nil
}

// Run probes immediately and then runs the probe loop and the flush loop
// until ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	c.Probe(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.every(ctx, c.cfg.ProbeInterval, func() { c.Probe(ctx) })
		return nil
	})

	g.Go(func() error {
		c.every(ctx, c.cfg.FlushInterval, func() {
			if !c.Online() {
				c.logger.Debug("flush skipped: edge offline", slog.Int("queue_size", c.queue.size()))
				return
			}

			if _, err := c.flush(ctx); err != nil {
				c.logger.Warn("queue flush failed", slog.String("error", err.Error()))
			}
		})

		return nil
	})

	return g.Wait()
}

func (c *Client) every(ctx context.Context, d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// Probe calls the edge health endpoint once and records the result. Any
// error, timeout or non-2xx answer marks the edge offline.
func (c *Client) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	ok := c.do(ctx, http.MethodGet, endpointHealth, nil, nil) == nil

	if was := c.online.Swap(ok); was != ok {
		c.logger.Info("edge connectivity changed", slog.Bool("online", ok))
	}

	return ok
}

// Online reports the last probe result.
func (c *Client) Online() bool {
	return c.online.Load()
}

// RegisterAttendee registers an attendee for the configured event. It is
// never queued.
func (c *Client) RegisterAttendee(ctx context.Context, req RegisterRequest) (*AttendeeResponse, error) {
	if err := required(map[string]bool{
		"fullName": strings.TrimSpace(req.FullName) != "",
		"email":    strings.TrimSpace(req.Email) != "",
	}); err != nil {
		return nil, err
	}

	if !c.Online() {
		return nil, ErrOffline
	}

	var out AttendeeResponse
	if err := c.call(ctx, http.MethodPost, endpointRegister, registerPayload{RegisterRequest: req, EventID: c.cfg.EventID}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// FindAttendeeByCode looks up an attendee by code. It is never queued.
func (c *Client) FindAttendeeByCode(ctx context.Context, code string) (*AttendeeResponse, error) {
	code = strings.TrimSpace(code)
	if err := required(map[string]bool{"code": code != ""}); err != nil {
		return nil, err
	}

	if !c.Online() {
		return nil, ErrOffline
	}

	var out AttendeeResponse
	if err := c.call(ctx, http.MethodGet, endpointAttendees+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// LogExperiencePlay sends a play for the configured experience. When the
// edge is offline or the call fails in transit, the play is queued and
// DeliveryQueued is returned with a nil response. A request the edge
// rejects is returned as *APIError and not queued.
func (c *Client) LogExperiencePlay(ctx context.Context, req PlayRequest) (*PlayResponse, Delivery, error) {
	if err := required(map[string]bool{
		"attendeeId":     strings.TrimSpace(req.AttendeeID) != "",
		"play_timestamp": !req.PlayTimestamp.IsZero(),
	}); err != nil {
		return nil, "", err
	}

	payload := playPayload{
		EventExperienceID: c.cfg.EventExperienceID,
		AttendeeID:        req.AttendeeID,
		PlayTimestamp:     req.PlayTimestamp.UTC(),
		Score:             req.Score,
		BonusScore:        req.BonusScore,
		Data:              req.Data,
	}

	var out PlayResponse

	d, err := c.sendOrQueue(ctx, OpLogExperiencePlay, endpointExperience, payload, &out)
	if err != nil || d == DeliveryQueued {
		return nil, d, err
	}

	return &out, d, nil
}

// RedeemPoints sends a redemption for the configured event with the same
// delivery rules as LogExperiencePlay.
func (c *Client) RedeemPoints(ctx context.Context, req RedeemRequest) (*RedeemResponse, Delivery, error) {
	if err := required(map[string]bool{
		"attendeeId": strings.TrimSpace(req.AttendeeID) != "",
		"reason":     strings.TrimSpace(req.Reason) != "",
	}); err != nil {
		return nil, "", err
	}

	payload := redeemPayload{
		EventID:        c.cfg.EventID,
		AttendeeID:     req.AttendeeID,
		PointsRedeemed: req.PointsRedeemed,
		Reason:         req.Reason,
		Metadata:       req.Metadata,
	}

	var out RedeemResponse

	d, err := c.sendOrQueue(ctx, OpRedeemPoints, endpointRedemption, payload, &out)
	if err != nil || d == DeliveryQueued {
		return nil, d, err
	}

	return &out, d, nil
}

func (c *Client) sendOrQueue(ctx context.Context, op Operation, endpoint string, payload, out any) (Delivery, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("edgeclient: encoding %s: %w", op, err)
	}

	if c.Online() {
		err := c.call(ctx, http.MethodPost, endpoint, json.RawMessage(body), out)
		if err == nil {
			return DeliverySent, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Rejected() {
			return "", err
		}

		c.logger.Debug("direct send failed, queueing",
			slog.String("operation", string(op)),
			slog.String("error", err.Error()),
		)
	}

	if _, err := c.queue.enqueue(op, body, endpoint); err != nil {
		return "", err
	}

	return DeliveryQueued, nil
}

// ForceFlush probes the edge and, when it answers, attempts every queued
// item under the retry cap. It returns ErrOffline without touching the
// queue when the probe fails.
func (c *Client) ForceFlush(ctx context.Context) (FlushResult, error) {
	if !c.Probe(ctx) {
		return FlushResult{}, ErrOffline
	}

	return c.flush(ctx)
}

// flush attempts eligible items in queue order. Success removes an item;
// failure bumps its retry count in place. Only queue persistence errors
// are returned.
func (c *Client) flush(ctx context.Context) (FlushResult, error) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	var (
		res  FlushResult
		errs []error
	)

	for _, it := range c.queue.eligible() {
		if ctx.Err() != nil {
			break
		}

		res.Attempted++

		sendErr := c.call(ctx, http.MethodPost, it.Endpoint, it.Payload, nil)
		if sendErr == nil {
			res.Sent++

			if err := c.queue.remove(it.ID); err != nil {
				errs = append(errs, err)
			}

			continue
		}

		res.Failed++

		retries, err := c.queue.fail(it.ID, sendErr)
		if err != nil {
			errs = append(errs, err)
		}

		if retries >= c.cfg.MaxRetries {
			res.Quarantined++
			c.logger.Warn("queued operation reached retry cap",
				slog.String("operation", string(it.Operation)),
				slog.String("id", it.ID),
				slog.Int("retries", retries),
				slog.String("error", sendErr.Error()),
			)
		}
	}

	if res.Attempted > 0 {
		c.logger.Info("queue flushed",
			slog.Int("attempted", res.Attempted),
			slog.Int("sent", res.Sent),
			slog.Int("failed", res.Failed),
			slog.Int("remaining", c.queue.size()),
		)
	}

	return res, errors.Join(errs...)
}

// Size returns the number of queued items, failed ones included.
func (c *Client) Size() int {
	return c.queue.size()
}

// Stats returns the queue breakdown.
func (c *Client) Stats() Stats {
	return c.queue.stats()
}

// Items returns a copy of the queue in order.
func (c *Client) Items() []Item {
	return c.queue.snapshot()
}

// Clear drops every queued item, failed ones included.
func (c *Client) Clear() error {
	if err := c.queue.clear(); err != nil {
		return err
	}

	c.logger.Info("queue cleared")

	return nil
}

// call runs one request with the request timeout.
func (c *Client) call(ctx context.Context, method, endpoint string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	return c.do(ctx, method, endpoint, in, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader

	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("edgeclient: encoding request: %w", err)
		}

		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("edgeclient: building request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("edgeclient: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("edgeclient: reading %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("edgeclient: decoding %s response: %w", endpoint, err)
	}

	return nil
}

func apiError(status int, raw []byte) *APIError {
	e := &APIError{StatusCode: status, Message: http.StatusText(status)}

	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		e.Code = body.Code

		switch {
		case body.Error != "":
			e.Message = body.Error
		case body.Message != "":
			e.Message = body.Message
		}
	}

	return e
}

// required reports every false entry as a missing field, in a stable
// order.
func required(fields map[string]bool) error {
	var missing []string

	for name, ok := range fields {
		if !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	slices.Sort(missing)

	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
}
