package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// TerminalChannel prints notifications to a terminal writer.
type TerminalChannel struct {
	out     io.Writer
	enabled bool
	bell    bool
	mu      sync.Mutex
}

// NewTerminalChannel creates a terminal channel writing to out.
func NewTerminalChannel(out io.Writer, bell bool) *TerminalChannel {
	return &TerminalChannel{
		out:     out,
		enabled: true,
		bell:    bell,
	}
}

// Name returns the name of the channel.
func (t *TerminalChannel) Name() string {
	return "terminal"
}

// IsEnabled returns whether the channel is enabled.
func (t *TerminalChannel) IsEnabled() bool {
	return t.enabled && t.out != nil
}

// Send prints the notification. Alerts ring the bell when enabled.
func (t *TerminalChannel) Send(_ context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bell && n.Type == NotificationAlert {
		fmt.Fprint(t.out, "\a")
	}

	title := color.New(color.FgYellow, color.Bold).Sprint(n.Title)
	if n.Type == NotificationError {
		title = color.New(color.FgRed, color.Bold).Sprint(n.Title)
	}
	_, err := fmt.Fprintf(t.out, "%s %s  %s\n", n.Timestamp.Format("15:04:05"), title, n.Message)
	return err
}
