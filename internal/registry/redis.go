package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sonroyaalmerol/kumaswarm/internal/routing"
)

// Redis shares session entries between processes that each run part of the pool.
// Entries live at {prefix}:session:{guildID}:{identity}.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects using a redis:// URL. A zero ttl keeps entries until removed.
func NewRedis(url, prefix string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisWithOptions(opts, prefix, ttl)
}

func NewRedisWithOptions(opts *redis.Options, prefix string, ttl time.Duration) (*Redis, error) {
	if prefix == "" {
		return nil, fmt.Errorf("redis key prefix cannot be empty")
	}
	return &Redis{rdb: redis.NewClient(opts), prefix: prefix, ttl: ttl}, nil
}

func (r *Redis) key(identity int, guildID string) string {
	return fmt.Sprintf("%s:session:%s:%d", r.prefix, guildID, identity)
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) ActiveSession(ctx context.Context, identity int, guildID string) (*routing.ActiveSession, error) {
	raw, err := r.rdb.Get(ctx, r.key(identity, guildID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode session entry: %w", err)
	}
	return &routing.ActiveSession{VoiceChannelID: e.ChannelID, SessionID: e.SessionID}, nil
}

func (r *Redis) Publish(ctx context.Context, e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode session entry: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(e.Identity, e.GuildID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("write session entry: %w", err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, identity int, guildID string) error {
	if err := r.rdb.Del(ctx, r.key(identity, guildID)).Err(); err != nil {
		return fmt.Errorf("delete session entry: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
