package sse

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Event is one decoded server-sent event.
type Event struct {
	Type string
	ID   string
	Data []byte

	// Retry is the server's reconnection-time hint, 0 when absent.
	Retry time.Duration
}

// Reader decodes a text/event-stream body into discrete events.
// Field handling follows the EventSource wire format: "data" lines
// accumulate and join with newlines, "event"/"id"/"retry" set metadata,
// ":" lines are comments, and a blank line dispatches the event.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	// Snapshots for a full chain run large; allow frames up to 4MB.
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Reader{scanner: sc}
}

// Next blocks until a complete event is available. Returns io.EOF when
// the stream ends. Events with no data lines still surface so callers
// see id/retry updates; their Data is nil.
func (r *Reader) Next() (*Event, error) {
	ev := &Event{}
	var data []string
	dirty := false

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if !dirty {
				continue
			}
			if len(data) > 0 {
				ev.Data = []byte(strings.Join(data, "\n"))
			}
			if ev.Type == "" {
				ev.Type = "message"
			}
			return ev, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			data = append(data, value)
		case "event":
			ev.Type = value
		case "id":
			ev.ID = value
		case "retry":
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms >= 0 {
				ev.Retry = time.Duration(ms) * time.Millisecond
			}
		default:
			// Unknown fields are ignored per the format.
			continue
		}
		dirty = true
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// splitField separates "field: value", trimming the single optional
// space after the colon.
func splitField(line string) (string, string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
