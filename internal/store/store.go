package store

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when a key doesn't exist.
var ErrKeyNotFound = errors.New("store: key not found")

// Store is the coordinator store capability the engine runs on: key/value,
// sets, lists, and pub/sub. Any backend exposing these primitives
// suffices; RedisStore and MemStore are the two provided here.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	MSet(ctx context.Context, pairs map[string][]byte) error
	Del(ctx context.Context, keys ...string) error

	SAdd(ctx context.Context, key string, members ...[]byte) error
	SRem(ctx context.Context, key string, members ...[]byte) error
	SMembers(ctx context.Context, key string) ([][]byte, error)
	SCard(ctx context.Context, key string) (int64, error)
	SPop(ctx context.Context, key string) ([]byte, error)
	SRandMember(ctx context.Context, key string, count int64) ([][]byte, error)
	SUnionStore(ctx context.Context, dest string, keys ...string) error

	LPush(ctx context.Context, key string, values ...[]byte) error
	LRange(ctx context.Context, key string) ([][]byte, error)
	LPop(ctx context.Context, key string) ([]byte, error)

	Publish(ctx context.Context, channel string, payload string) error
	Subscribe(ctx context.Context, channel string) Subscription

	Close() error
}

// Subscription is a live pub/sub subscription to a single channel.
type Subscription interface {
	// Receive blocks until a message is published or ctx is done.
	Receive(ctx context.Context) (string, error)
	Close() error
}
