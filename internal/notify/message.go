package notify

import (
	"fmt"
	"strings"
	"time"
)

// FormatStreamDownMessage creates an outage notification body.
func FormatStreamDownMessage(attempts int, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Reconnect attempts: %d\n", attempts))
	sb.WriteString("The subscription will not retry again without a restart.")

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	return sb.String()
}

// FormatStreamRecoveredMessage creates a recovery notification body.
func FormatStreamRecoveredMessage(downtime time.Duration) string {
	return fmt.Sprintf("Frames are flowing again.\nDowntime: %s", downtime.Round(time.Second))
}
