package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"beantrace/internal/sentinel"
	"beantrace/internal/token/models"
)

const (
	tokenKeyPrefix = "vtoken:"

	// expiredRetention keeps expired records around long enough to report
	// TokenExpired instead of TokenNotFound, then lets Redis drop them.
	expiredRetention = 24 * time.Hour
)

// redeemScript performs the check-and-mark-used transition server-side in one
// script evaluation, which Redis executes atomically. Status codes: 0 ok,
// -1 not found, -2 expired, -3 already used.
var redeemScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 0 then
  return {-1}
end
local expires = tonumber(redis.call('HGET', key, 'expires_at'))
if now > expires then
  return {-2}
end
if redis.call('HGET', key, 'used') == '1' then
  return {-3}
end
redis.call('HSET', key, 'used', '1')
return {0, redis.call('HGET', key, 'subject_ref'), redis.call('HGET', key, 'created_at'), expires}
`)

// RedisStore persists verification tokens in Redis. Atomic redemption rides
// on single-script execution rather than a client-side read-modify-write.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed token store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, record *models.Record) error {
	key := tokenKeyPrefix + record.Token

	set, err := s.client.HSetNX(ctx, key, "subject_ref", record.SubjectRef).Result()
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	if !set {
		return fmt.Errorf("token: %w", sentinel.ErrConflict)
	}

	if err := s.client.HSet(ctx, key,
		"created_at", record.CreatedAt.UnixMilli(),
		"expires_at", record.ExpiresAt.UnixMilli(),
		"used", boolField(record.Used),
	).Err(); err != nil {
		return fmt.Errorf("create token fields: %w", err)
	}
	if err := s.client.ExpireAt(ctx, key, record.ExpiresAt.Add(expiredRetention)).Err(); err != nil {
		return fmt.Errorf("set token retention: %w", err)
	}
	return nil
}

func (s *RedisStore) Redeem(ctx context.Context, token string, now time.Time) (*models.Record, error) {
	res, err := redeemScript.Run(ctx, s.client, []string{tokenKeyPrefix + token}, now.UnixMilli()).Result()
	if err != nil {
		return nil, fmt.Errorf("redeem token: %w", err)
	}

	fields, ok := res.([]any)
	if !ok || len(fields) == 0 {
		return nil, fmt.Errorf("redeem token: unexpected script result %T", res)
	}
	status, _ := fields[0].(int64)
	switch status {
	case -1:
		return nil, fmt.Errorf("token: %w", sentinel.ErrNotFound)
	case -2:
		return nil, fmt.Errorf("token: %w", sentinel.ErrExpired)
	case -3:
		return nil, fmt.Errorf("token: %w", sentinel.ErrAlreadyUsed)
	}

	if len(fields) != 4 {
		return nil, fmt.Errorf("redeem token: unexpected script result length %d", len(fields))
	}
	subjectRef, _ := fields[1].(string)
	createdAtRaw, _ := fields[2].(string)
	expiresAt, _ := fields[3].(int64)
	createdAt, err := strconv.ParseInt(createdAtRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redeem token: parse created_at: %w", err)
	}

	return &models.Record{
		Token:      token,
		SubjectRef: subjectRef,
		CreatedAt:  time.UnixMilli(createdAt).UTC(),
		ExpiresAt:  time.UnixMilli(expiresAt).UTC(),
		Used:       true,
	}, nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return s.sweep(ctx, func(expiresAt time.Time, _ bool) bool {
		return now.After(expiresAt)
	})
}

func (s *RedisStore) DeleteUsed(ctx context.Context) (int, error) {
	return s.sweep(ctx, func(_ time.Time, used bool) bool {
		return used
	})
}

func (s *RedisStore) sweep(ctx context.Context, drop func(expiresAt time.Time, used bool) bool) (int, error) {
	deleted := 0
	iter := s.client.Scan(ctx, 0, tokenKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		vals, err := s.client.HMGet(ctx, key, "expires_at", "used").Result()
		if err != nil {
			return deleted, fmt.Errorf("sweep token %s: %w", key, err)
		}
		expiresRaw, _ := vals[0].(string)
		usedRaw, _ := vals[1].(string)
		expiresMilli, err := strconv.ParseInt(expiresRaw, 10, 64)
		if err != nil {
			continue
		}
		if drop(time.UnixMilli(expiresMilli), usedRaw == "1") {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return deleted, fmt.Errorf("delete token %s: %w", key, err)
			}
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan tokens: %w", err)
	}
	return deleted, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
