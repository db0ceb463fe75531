package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/you/turnbell/internal/core"
)

// RedisStore keeps each current-turn record as a JSON string plus an index
// set of keys, and each game's history as a hash of rowKey -> JSON.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// RedisOptions configures OpenRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return NewRedis(client, opts.Prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "turnbell"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) turnIndexKey() string { return s.prefix + ":" + TableActiveGames }

func (s *RedisStore) turnKey(key string) string {
	return s.prefix + ":" + TableActiveGames + ":" + key
}

func (s *RedisStore) historyKey(gameKey string) string {
	return s.prefix + ":" + TableTurnHistory + ":" + gameKey
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Ping(ctx context.Context) error {
	return errors.Wrap(s.client.Ping(ctx).Err(), "ping redis")
}

func (s *RedisStore) GetTurn(ctx context.Context, key string) (core.TurnRecord, error) {
	raw, err := s.client.Get(ctx, s.turnKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.TurnRecord{}, ErrNotFound
	}
	if err != nil {
		return core.TurnRecord{}, errors.Wrap(err, "get turn")
	}
	var rec core.TurnRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return core.TurnRecord{}, errors.Wrap(err, "decode turn")
	}
	rec.Key = key
	return rec, nil
}

func (s *RedisStore) UpsertTurn(ctx context.Context, rec core.TurnRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode turn")
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.turnKey(rec.Key), data, 0)
		pipe.SAdd(ctx, s.turnIndexKey(), rec.Key)
		return nil
	})
	return errors.Wrap(err, "upsert turn")
}

func (s *RedisStore) DeleteTurn(ctx context.Context, key string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.turnKey(key))
		pipe.SRem(ctx, s.turnIndexKey(), key)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "delete turn")
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) ListTurns(ctx context.Context) ([]core.TurnRecord, error) {
	keys, err := s.client.SMembers(ctx, s.turnIndexKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list turn keys")
	}
	if len(keys) == 0 {
		return nil, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.turnKey(k)
	}
	values, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list turns")
	}

	out := make([]core.TurnRecord, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry without a record; a concurrent delete
			continue
		}
		var rec core.TurnRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, errors.Wrapf(err, "decode turn %s", keys[i])
		}
		rec.Key = keys[i]
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) UpsertHistory(ctx context.Context, rec core.HistoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode history")
	}
	return errors.Wrap(s.client.HSet(ctx, s.historyKey(rec.GameKey), rec.RowKey, data).Err(), "upsert history")
}

func (s *RedisStore) ListHistory(ctx context.Context, gameKey string) ([]core.HistoryRecord, error) {
	entries, err := s.client.HGetAll(ctx, s.historyKey(gameKey)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	out := make([]core.HistoryRecord, 0, len(entries))
	for rowKey, raw := range entries {
		var rec core.HistoryRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, errors.Wrapf(err, "decode history %s", rowKey)
		}
		rec.GameKey = gameKey
		rec.RowKey = rowKey
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnCompletedAt < out[j].TurnCompletedAt })
	return out, nil
}
