package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps state in one Redis hash: field = source name, value =
// fingerprint.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

func NewRedisStore(client *redis.Client, key string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, key: key, logger: logger}
}

// NewRedisStoreFromURL parses a redis:// URL and builds a store on a fresh
// client. The caller owns Close.
func NewRedisStoreFromURL(url, key string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), key, logger), nil
}

func (r *RedisStore) Load(ctx context.Context) (State, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		if isWrongType(err) {
			r.logger.Warn("tracker state malformed, starting empty", "key", r.key, "error", err)
			return NewState(), nil
		}
		return nil, fmt.Errorf("load tracker state: %w", err)
	}
	state := make(State, len(fields))
	for k, v := range fields {
		state[k] = Fingerprint(v)
	}
	return state, nil
}

// Save replaces the hash atomically so stale sources do not survive.
func (r *RedisStore) Save(ctx context.Context, state State) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(state) == 0 {
			return nil
		}
		values := make([]any, 0, len(state)*2)
		for _, name := range state.Names() {
			values = append(values, name, string(state[name]))
		}
		pipe.HSet(ctx, r.key, values...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save tracker state: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func isWrongType(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "WRONGTYPE")
}
