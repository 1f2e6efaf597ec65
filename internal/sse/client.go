package sse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the connection lifecycle phase, surfaced verbatim by the
// status endpoint.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateReceiving  State = "receiving"
	StateError      State = "error"
)

// ErrRetriesExhausted is the terminal transport error: the retry
// ceiling was hit and no further automatic reconnects happen.
var ErrRetriesExhausted = errors.New("failed to connect after multiple attempts")

// FrameHandler receives each event payload. A returned error is treated
// as a frame-level problem: reported, but the subscription stays open.
type FrameHandler func(frame []byte) error

const (
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 30 * time.Second
	defaultMaxRetries  = 5
)

// Options configures a Client. Zero values take the defaults above.
type Options struct {
	URL         string
	HTTPClient  *http.Client
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxRetries  int

	// OnStateChange fires on every transition, from the client's
	// goroutine. Keep it fast.
	OnStateChange func(State)
}

// Client owns the event-stream subscription lifecycle: connect, read,
// hand frames to the pipeline, reconnect with exponential backoff, and
// give up after the retry ceiling.
type Client struct {
	opts    Options
	handler FrameHandler
	logger  *zap.Logger

	mu          sync.RWMutex
	state       State
	lastErr     error
	lastEventID string

	cancel context.CancelFunc
}

func NewClient(opts Options, handler FrameHandler, logger *zap.Logger) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("stream URL is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("frame handler is required")
	}
	if opts.HTTPClient == nil {
		// No client timeout, the stream body stays open indefinitely.
		opts.HTTPClient = &http.Client{}
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaultBackoffCap
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Client{
		opts:    opts,
		handler: handler,
		logger:  logger,
		state:   StateIdle,
	}, nil
}

// BackoffDelay returns the reconnect delay for the given attempt,
// min(base * 2^attempt, ceiling). Attempt counting starts at 1.
func BackoffDelay(attempt int, base, ceiling time.Duration) time.Duration {
	d := base << uint(attempt)
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}

// Run connects and consumes the stream until ctx is cancelled, Stop is
// called, or the retry ceiling is exceeded. Frames arrive on this
// goroutine, one at a time, in arrival order.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	failures := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setState(StateConnecting)
		opened, err := c.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opened {
			failures = 0
		}

		if failures >= c.opts.MaxRetries {
			terminal := fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
			c.setError(terminal)
			c.logger.Error("giving up on stream",
				zap.Int("attempts", failures),
				zap.Error(err),
			)
			return terminal
		}

		failures++
		delay := BackoffDelay(failures, c.opts.BackoffBase, c.opts.BackoffCap)
		c.setError(err)
		c.logger.Warn("stream disconnected, scheduling reconnect",
			zap.Int("attempt", failures),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Stop tears the client down from any state: the subscription closes
// and any pending scheduled retry is cancelled. Terminal.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Client) LastEventID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastEventID
}

// consume opens one subscription and reads it to exhaustion. opened
// reports whether the stream was successfully established, which resets
// the caller's failure counter.
func (c *Client) consume(ctx context.Context) (opened bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if id := c.LastEventID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("opening stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	c.setState(StateConnected)
	c.logger.Info("stream connected", zap.String("url", c.opts.URL))

	reader := NewReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, fmt.Errorf("stream closed by server")
			}
			return true, fmt.Errorf("reading stream: %w", err)
		}

		if ev.ID != "" {
			c.mu.Lock()
			c.lastEventID = ev.ID
			c.mu.Unlock()
		}
		if len(bytes.TrimSpace(ev.Data)) == 0 {
			continue
		}

		if err := c.handler(ev.Data); err != nil {
			// Malformed payloads do not end the session; the status
			// surface shows the error until the next good frame.
			c.setError(err)
			c.logger.Warn("dropping bad frame", zap.Error(err))
			continue
		}
		c.setState(StateReceiving)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	if s == StateReceiving || s == StateConnected {
		c.lastErr = nil
	}
	cb := c.opts.OnStateChange
	c.mu.Unlock()

	if changed && cb != nil {
		cb(s)
	}
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	changed := c.state != StateError
	c.state = StateError
	c.lastErr = err
	cb := c.opts.OnStateChange
	c.mu.Unlock()

	if changed && cb != nil {
		cb(StateError)
	}
}
