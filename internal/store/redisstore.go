package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of github.com/redis/go-redis/v9. It
// is the production coordinator store: a single Redis instance (or
// cluster-compatible endpoint) is shared by the manager and every worker
// process.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr (host:port) and returns a ready Store.
func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("store: connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an already-configured client, useful for
// tests that point a client at a miniredis instance.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %q: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) MSet(ctx context.Context, pairs map[string][]byte) error {
	if len(pairs) == 0 {
		return nil
	}
	flat := make([]any, 0, len(pairs)*2)
	for k, v := range pairs {
		flat = append(flat, k, v)
	}
	if err := s.client.MSet(ctx, flat...).Err(); err != nil {
		return fmt.Errorf("store: mset: %w", err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("store: del %v: %w", keys, err)
	}
	return nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...[]byte) error {
	if len(members) == 0 {
		return nil
	}
	if err := s.client.SAdd(ctx, key, bytesToAny(members)...).Err(); err != nil {
		return fmt.Errorf("store: sadd %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...[]byte) error {
	if len(members) == 0 {
		return nil
	}
	if err := s.client.SRem(ctx, key, bytesToAny(members)...).Err(); err != nil {
		return fmt.Errorf("store: srem %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([][]byte, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("store: smembers %q: %w", key, err)
	}
	out := make([][]byte, len(members))
	for i, m := range members {
		out[i] = []byte(m)
	}
	return out, nil
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("store: scard %q: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) SPop(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.SPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: spop %q: %w", key, err)
	}
	return []byte(v), nil
}

func (s *RedisStore) SRandMember(ctx context.Context, key string, count int64) ([][]byte, error) {
	members, err := s.client.SRandMemberN(ctx, key, count).Result()
	if err != nil {
		return nil, fmt.Errorf("store: srandmember %q: %w", key, err)
	}
	out := make([][]byte, len(members))
	for i, m := range members {
		out[i] = []byte(m)
	}
	return out, nil
}

func (s *RedisStore) SUnionStore(ctx context.Context, dest string, keys ...string) error {
	if err := s.client.SUnionStore(ctx, dest, keys...).Err(); err != nil {
		return fmt.Errorf("store: sunionstore %q: %w", dest, err)
	}
	return nil
}

func (s *RedisStore) LPush(ctx context.Context, key string, values ...[]byte) error {
	if len(values) == 0 {
		return nil
	}
	if err := s.client.LPush(ctx, key, bytesToAny(values)...).Err(); err != nil {
		return fmt.Errorf("store: lpush %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) LRange(ctx context.Context, key string) ([][]byte, error) {
	items, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: lrange %q: %w", key, err)
	}
	out := make([][]byte, len(items))
	for i, it := range items {
		out[i] = []byte(it)
	}
	return out, nil
}

func (s *RedisStore) LPop(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: lpop %q: %w", key, err)
	}
	return []byte(v), nil
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload string) error {
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("store: publish %q: %w", channel, err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) Subscription {
	ps := s.client.Subscribe(ctx, channel)
	return &redisSubscription{ps: ps, ch: ps.Channel()}
}

type redisSubscription struct {
	ps *redis.PubSub
	ch <-chan *redis.Message
}

func (r *redisSubscription) Receive(ctx context.Context) (string, error) {
	select {
	case msg, ok := <-r.ch:
		if !ok {
			return "", fmt.Errorf("store: subscription closed")
		}
		return msg.Payload, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *redisSubscription) Close() error { return r.ps.Close() }

func bytesToAny(members [][]byte) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}
