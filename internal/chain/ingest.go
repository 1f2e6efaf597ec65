package chain

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"
)

// Broadcaster is notified after each accepted snapshot. Implemented by
// the WebSocket relay; nil disables fan-out.
type Broadcaster interface {
	BroadcastSnapshot(rows []OptionRow)
}

// Ingestor is the frame pipeline: normalize, then replace the store
// wholesale. A bad frame leaves the previous row set untouched.
type Ingestor struct {
	store       *Store
	normalizer  *Normalizer
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewIngestor(store *Store, broadcaster Broadcaster, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		store:       store,
		normalizer:  NewNormalizer(logger),
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// HandleFrame processes one inbound frame. Empty or whitespace-only
// payloads are ignored. Returned errors are frame-level: the caller
// reports them but keeps the subscription open.
func (in *Ingestor) HandleFrame(frame []byte) error {
	if len(bytes.TrimSpace(frame)) == 0 {
		return nil
	}

	rows, err := in.normalizer.Normalize(frame)
	if err != nil {
		return fmt.Errorf("processing frame: %w", err)
	}

	in.store.Replace(rows)
	in.logger.Debug("snapshot replaced", zap.Int("rows", len(rows)))

	if in.broadcaster != nil {
		in.broadcaster.BroadcastSnapshot(rows)
	}
	return nil
}
