package chain

import "errors"

var (
	// ErrMalformedFrame means the frame is not valid JSON or not a
	// non-empty array of records.
	ErrMalformedFrame = errors.New("frame is not a non-empty JSON array")

	// ErrEmptyFrame means every record in an otherwise valid frame was
	// unusable after normalization.
	ErrEmptyFrame = errors.New("no usable records in frame")
)
