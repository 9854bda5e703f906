package storage

import (
	"context"
	"errors"

	"github.com/luma/respkv/protocol"
)

var (
	ErrClosed          = errors.New("store is closed")
	ErrInvalidSnapshot = errors.New("snapshot is not valid")
)

// Store is the key-value backend commands execute against. Implementations
// must be safe for concurrent use, one caller per active connection.
type Store interface {
	Get(ctx context.Context, key string) (protocol.Frame, bool, error)
	Set(ctx context.Context, key string, value protocol.Frame) error

	// Delete removes keys and returns how many of them existed.
	Delete(ctx context.Context, keys ...string) (int, error)

	// Exists returns how many of keys exist. Repeated keys are counted
	// every time.
	Exists(ctx context.Context, keys ...string) (int, error)

	Len() int
	Range(fn func(key string, value protocol.Frame) bool)

	Restore(values []byte) error
	Backup() ([]byte, error)

	Close() error
}
