package jobs

import "context"

// Store receives each successful translation. Append must be durable when
// it returns nil; the dispatcher calls it concurrently.
type Store interface {
	Append(ctx context.Context, fingerprint, title, text string) error
}
