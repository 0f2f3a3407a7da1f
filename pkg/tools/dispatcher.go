package tools

import "context"

// JobFunc defines a function executed asynchronously.
type JobFunc func(ctx context.Context) error

// Dispatch runs the provided job in a separate goroutine.
// fire-and-forget: the caller does not wait and errors are the job's
// own to report.
func Dispatch(ctx context.Context, _ string, fn JobFunc) {
	go func() {
		_ = fn(ctx)
	}()
}
