package state

import "context"

// Store is the durable key/value surface the executor journal, venue
// nonce, and trade snapshots persist through. The sqlite implementation
// lives in state/sqlite.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
