package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"chainstream/internal/config"
	"chainstream/internal/sse"
)

func TestSendStreamDown(t *testing.T) {
	var gotTitle, gotPriority, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alerts" {
			t.Errorf("expected topic path /alerts, got %s", r.URL.Path)
		}
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer srv.Close()

	cfg := &config.NotifyConfig{
		Enabled:  true,
		Server:   srv.URL,
		Topic:    "alerts",
		Token:    "tk_secret",
		Priority: "default",
		Tags:     "chart_with_upwards_trend",
	}
	client := NewClient(cfg, zap.NewNop())

	err := client.SendStreamDown(context.Background(), 5, errors.New("connection refused"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotTitle != "Chain Stream Down" {
		t.Errorf("unexpected title: %s", gotTitle)
	}
	if gotPriority != "high" {
		t.Errorf("outages should be high priority, got %s", gotPriority)
	}
	if gotAuth != "Bearer tk_secret" {
		t.Errorf("unexpected auth header: %s", gotAuth)
	}
	if !strings.Contains(gotBody, "Reconnect attempts: 5") || !strings.Contains(gotBody, "connection refused") {
		t.Errorf("unexpected body: %s", gotBody)
	}
}

func TestSendFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := &config.NotifyConfig{
		Enabled:  true,
		Server:   srv.URL,
		Topic:    "alerts",
		Priority: "default",
	}
	client := NewClient(cfg, zap.NewNop())

	if err := client.SendStreamRecovered(context.Background(), time.Minute); err == nil {
		t.Error("expected error on 403 response")
	}
}

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	n := New(&config.NotifyConfig{Enabled: false}, zap.NewNop())
	if _, ok := n.(*NoopNotifier); !ok {
		t.Errorf("expected NoopNotifier, got %T", n)
	}
}

type recordingNotifier struct {
	recovered chan time.Duration
	down      chan int
}

func (r *recordingNotifier) SendStreamDown(_ context.Context, attempts int, _ error) error {
	r.down <- attempts
	return nil
}

func (r *recordingNotifier) SendStreamRecovered(_ context.Context, downtime time.Duration) error {
	r.recovered <- downtime
	return nil
}

func TestWatcherAnnouncesRecovery(t *testing.T) {
	rec := &recordingNotifier{
		recovered: make(chan time.Duration, 1),
		down:      make(chan int, 1),
	}
	w := NewWatcher(rec, zap.NewNop())

	w.OnStateChange(sse.StateConnecting)
	w.OnStateChange(sse.StateError)
	w.OnStateChange(sse.StateConnecting)
	w.OnStateChange(sse.StateError)
	w.OnStateChange(sse.StateConnected)
	w.OnStateChange(sse.StateReceiving)

	select {
	case <-rec.recovered:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a recovery notification")
	}

	// A healthy stream produces no further notifications.
	w.OnStateChange(sse.StateReceiving)
	select {
	case <-rec.recovered:
		t.Error("unexpected second recovery notification")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatcherStreamTerminated(t *testing.T) {
	rec := &recordingNotifier{
		recovered: make(chan time.Duration, 1),
		down:      make(chan int, 1),
	}
	w := NewWatcher(rec, zap.NewNop())

	w.StreamTerminated(5, errors.New("gave up"))

	select {
	case attempts := <-rec.down:
		if attempts != 5 {
			t.Errorf("expected 5 attempts, got %d", attempts)
		}
	default:
		t.Fatal("expected an outage notification")
	}
}
