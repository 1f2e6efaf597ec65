package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chainstream/internal/sse"
)

const sendTimeout = 30 * time.Second

// Watcher turns stream state transitions into notifications. Wire its
// OnStateChange into the subscription options and call StreamTerminated when
// the subscription gives up for good.
type Watcher struct {
	notifier Notifier
	logger   *zap.Logger

	mu        sync.Mutex
	down      bool
	downSince time.Time
}

func NewWatcher(notifier Notifier, logger *zap.Logger) *Watcher {
	return &Watcher{notifier: notifier, logger: logger}
}

// OnStateChange tracks outage windows and announces recovery once frames
// flow again. Runs on the subscription goroutine, so sends happen async.
func (w *Watcher) OnStateChange(s sse.State) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch s {
	case sse.StateError:
		if !w.down {
			w.down = true
			w.downSince = time.Now()
		}
	case sse.StateReceiving:
		if w.down {
			w.down = false
			downtime := time.Since(w.downSince)
			go w.sendRecovered(downtime)
		}
	}
}

// StreamTerminated announces that the subscription exhausted its retries.
func (w *Watcher) StreamTerminated(attempts int, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if sendErr := w.notifier.SendStreamDown(ctx, attempts, err); sendErr != nil {
		w.logger.Warn("failed to send outage notification", zap.Error(sendErr))
	}
}

func (w *Watcher) sendRecovered(downtime time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := w.notifier.SendStreamRecovered(ctx, downtime); err != nil {
		w.logger.Warn("failed to send recovery notification", zap.Error(err))
	}
}
