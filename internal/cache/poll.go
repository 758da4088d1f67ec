package cache

import (
	"context"
	"time"

	"docdash/internal/logging"
)

// Poll refetches an in-progress entity on an interval until it reaches a
// terminal state. Used for workflow execution status and RAG index builds:
// polling is active only while inProgress(v) is true and stops as soon as the
// entity is terminal.
//
// onUpdate, if non-nil, is called with every observed value, including the
// terminal one. Poll returns the terminal value, or the last error from fetch
// or the context.
func Poll[T any](ctx context.Context, interval time.Duration, fetch func(context.Context) (T, error), inProgress func(T) bool, onUpdate func(T)) (T, error) {
	var zero T
	if interval <= 0 {
		interval = 2 * time.Second
	}

	v, err := fetch(ctx)
	if err != nil {
		return zero, err
	}
	if onUpdate != nil {
		onUpdate(v)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for inProgress(v) {
		select {
		case <-ctx.Done():
			logging.CacheDebug("poll stopped: %v", ctx.Err())
			return v, ctx.Err()
		case <-ticker.C:
		}

		v, err = fetch(ctx)
		if err != nil {
			return zero, err
		}
		if onUpdate != nil {
			onUpdate(v)
		}
	}
	return v, nil
}
