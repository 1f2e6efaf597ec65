package chain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layouts observed across feed variants. Zone-less layouts are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseInstant converts a wire timestamp token into epoch milliseconds.
// The feed varies between epoch-ms numbers and ISO-8601 strings; both
// must key and sort identically, so everything funnels through this.
func ParseInstant(tok string) (int64, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if ms, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return ms, nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return int64(f), nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, tok); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", tok)
}
