package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisLedgerBeginScript = redis.NewScript(`
local key = KEYS[1]
local fingerprint = ARGV[1]
local ttl_ms = ARGV[2]

if redis.call("EXISTS", key) == 0 then
  redis.call("HSET", key, "fingerprint", fingerprint, "status", "processing")
  redis.call("PEXPIRE", key, ttl_ms)
  return "new"
end

if redis.call("HGET", key, "fingerprint") ~= fingerprint then
  return "conflict"
end
if redis.call("HGET", key, "status") == "completed" then
  return "duplicate"
end
return "in_progress"
`)

var redisLedgerCompleteScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("HGET", key, "fingerprint") ~= ARGV[1] then
  return 0
end
redis.call("HSET", key, "status", "completed")
redis.call("PEXPIRE", key, ARGV[2])
return 1
`)

var redisLedgerReleaseScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("HGET", key, "fingerprint") == ARGV[1] and redis.call("HGET", key, "status") == "processing" then
  return redis.call("DEL", key)
end
return 0
`)

type RedisEventLedger struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisEventLedger(client redis.UniversalClient, prefix string) *RedisEventLedger {
	if prefix == "" {
		prefix = "bna_webhook_event"
	}
	return &RedisEventLedger{client: client, prefix: prefix}
}

func (l *RedisEventLedger) Begin(ctx context.Context, eventID, fingerprint string, ttl time.Duration) (LedgerState, error) {
	raw, err := redisLedgerBeginScript.Run(ctx, l.client, []string{l.key(eventID)}, fingerprint, ttl.Milliseconds()).Text()
	if err != nil {
		return "", err
	}
	switch state := LedgerState(raw); state {
	case LedgerStateNew, LedgerStateDuplicate, LedgerStateConflict, LedgerStateInProgress:
		return state, nil
	default:
		return "", fmt.Errorf("unknown ledger state %q", raw)
	}
}

func (l *RedisEventLedger) Complete(ctx context.Context, eventID, fingerprint string, ttl time.Duration) error {
	return redisLedgerCompleteScript.Run(ctx, l.client, []string{l.key(eventID)}, fingerprint, ttl.Milliseconds()).Err()
}

func (l *RedisEventLedger) Release(ctx context.Context, eventID, fingerprint string) error {
	return redisLedgerReleaseScript.Run(ctx, l.client, []string{l.key(eventID)}, fingerprint).Err()
}

// CleanupExpired is a no-op: ledger keys carry their own TTL.
func (l *RedisEventLedger) CleanupExpired(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func (l *RedisEventLedger) key(eventID string) string {
	return fmt.Sprintf("%s:%s", l.prefix, eventID)
}
