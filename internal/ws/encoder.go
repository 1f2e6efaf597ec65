package ws

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Encoder compresses snapshot payloads for clients that negotiated the zstd
// encoding.
type Encoder struct {
	zstdEncoder *zstd.Encoder
}

func NewEncoder() (*Encoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Encoder{zstdEncoder: enc}, nil
}

// Encode returns the zstd-compressed form of payload.
func (e *Encoder) Encode(payload []byte) []byte {
	return e.zstdEncoder.EncodeAll(payload, nil)
}

// Close releases encoder resources.
func (e *Encoder) Close() {
	if e.zstdEncoder != nil {
		e.zstdEncoder.Close()
	}
}
