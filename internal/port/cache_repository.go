package port

import "context"

type CacheRepository interface {
	// ClaimIdempotencyKey claims a key for idempotency check, returns
	// false if a request with the same key was already processed.
	ClaimIdempotencyKey(ctx context.Context, key string) (bool, error)

	// PublishEvent fans a change notification out to other processes.
	PublishEvent(ctx context.Context, payload []byte) error
}
