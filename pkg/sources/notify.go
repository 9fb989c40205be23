package sources

import (
	"fmt"
	"os"
)

// Notifier surfaces non-fatal, user-visible conditions. The registry never
// fails an operation through this channel.
type Notifier interface {
	// Notify reports an informational event.
	Notify(message string)

	// Warn reports a condition the user should see but that did not change
	// any state, e.g. a failed background refresh.
	Warn(message string)
}

// StderrNotifier writes notifications to standard error.
type StderrNotifier struct{}

func (StderrNotifier) Notify(message string) {
	fmt.Fprintf(os.Stderr, "%s\n", message)
}

func (StderrNotifier) Warn(message string) {
	fmt.Fprintf(os.Stderr, "warning: %s\n", message)
}
