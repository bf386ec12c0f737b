package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds startup probes against backing stores.
	DefaultTimeout = 10 * time.Second

	// ShutdownTimeout is how long in-flight requests get to drain.
	ShutdownTimeout = 30 * time.Second
)

func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

func WithShutdownTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShutdownTimeout)
}

// WithOptionalTimeout bounds parent by d. A non-positive d means no deadline.
func WithOptionalTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
