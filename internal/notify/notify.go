package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"chainstream/internal/config"
)

// Notifier is the interface for stream lifecycle notifications.
type Notifier interface {
	SendStreamDown(ctx context.Context, attempts int, err error) error
	SendStreamRecovered(ctx context.Context, downtime time.Duration) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *config.NotifyConfig
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg *config.NotifyConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// SendStreamDown notifies that the upstream subscription gave up after
// exhausting its retries.
func (c *Client) SendStreamDown(ctx context.Context, attempts int, err error) error {
	title := "Chain Stream Down"
	message := FormatStreamDownMessage(attempts, err)
	tags := c.config.Tags + ",x"
	priority := "high" // Override to high priority for outages

	return c.send(ctx, title, message, tags, priority)
}

// SendStreamRecovered notifies that the subscription is receiving frames again.
func (c *Client) SendStreamRecovered(ctx context.Context, downtime time.Duration) error {
	title := "Chain Stream Recovered"
	message := FormatStreamRecoveredMessage(downtime)
	tags := c.config.Tags + ",white_check_mark"

	return c.send(ctx, title, message, tags, c.config.Priority)
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

// SendStreamDown is a no-op.
func (n *NoopNotifier) SendStreamDown(_ context.Context, _ int, _ error) error {
	return nil
}

// SendStreamRecovered is a no-op.
func (n *NoopNotifier) SendStreamRecovered(_ context.Context, _ time.Duration) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg *config.NotifyConfig, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
