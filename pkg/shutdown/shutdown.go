// Package shutdown ties a context to process termination signals.
package shutdown

import (
	"context"
	"os/signal"
	"syscall"
)

// WithSignals returns a context cancelled when SIGINT or SIGTERM
// arrives. The cancel func releases the signal hook.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
