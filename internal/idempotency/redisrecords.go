package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRecords keeps idempotency records in Redis hashes. Claim runs as
// a Lua script so the check-and-install is a single atomic round trip,
// and the record TTL is enforced by Redis itself (an expired key simply
// vanishes, which matches the treat-expired-as-absent rule).
type RedisRecords struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for record keys (default: "pacelog:idem:").
	Prefix string
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisRecords creates a Redis-backed RecordStore.
func NewRedisRecords(cfg RedisConfig) (*RedisRecords, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "pacelog:idem:"
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisRecords{client: client, prefix: prefix}, nil
}

// NewRedisRecordsFromClient creates a RecordStore from an existing
// client. This is useful for testing with miniredis.
func NewRedisRecordsFromClient(client *redis.Client, prefix string) *RedisRecords {
	if prefix == "" {
		prefix = "pacelog:idem:"
	}
	return &RedisRecords{client: client, prefix: prefix}
}

// Close releases the underlying client.
func (r *RedisRecords) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

func (r *RedisRecords) key(key string) string {
	return r.prefix + key
}

// claimScript inspects and, when the key is free, installs a processing
// record in one atomic step.
//
// KEYS[1] = record key
// ARGV[1] = now (unix ms)
// ARGV[2] = processing timeout (ms)
// ARGV[3] = record TTL (ms)
// ARGV[4] = verbatim request payload
var claimScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  redis.call('HSET', KEYS[1], 'status', 'processing', 'startedAtMs', ARGV[1], 'createdAtMs', ARGV[1], 'request', ARGV[4])
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
  return {'acquired', ''}
end
if status == 'completed' then
  return {'replay', redis.call('HGET', KEYS[1], 'response') or ''}
end
if status == 'failed' then
  return {'failed', redis.call('HGET', KEYS[1], 'error') or ''}
end
local started = tonumber(redis.call('HGET', KEYS[1], 'startedAtMs') or '0')
if tonumber(ARGV[1]) - started <= tonumber(ARGV[2]) then
  return {'conflict', ''}
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'status', 'processing', 'startedAtMs', ARGV[1], 'createdAtMs', ARGV[1], 'request', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return {'takeover', ''}
`)

// finalizeScript updates a live record's terminal state. A missing key
// (expired record) is left alone; the claim timeout covers that case.
//
// KEYS[1] = record key
// ARGV[1] = terminal status
// ARGV[2] = field name to set ('response' or 'error')
// ARGV[3] = field value
var finalizeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], ARGV[2], ARGV[3])
return 1
`)

// Claim implements the atomic claim phase via the Lua script.
func (r *RedisRecords) Claim(ctx context.Context, key string, request json.RawMessage, p Policy) (ClaimResult, error) {
	nowMs := strconv.FormatInt(p.Now.UnixMilli(), 10)
	timeoutMs := strconv.FormatInt(p.Timeout.Milliseconds(), 10)
	ttlMs := strconv.FormatInt(p.TTL.Milliseconds(), 10)

	raw, err := claimScript.Run(ctx, r.client, []string{r.key(key)}, nowMs, timeoutMs, ttlMs, string(request)).Slice()
	if err != nil {
		return ClaimResult{}, fmt.Errorf("redis claim: %w", err)
	}
	if len(raw) != 2 {
		return ClaimResult{}, fmt.Errorf("redis claim: unexpected reply %v", raw)
	}

	outcome, _ := raw[0].(string)
	detail, _ := raw[1].(string)

	switch outcome {
	case "acquired":
		return ClaimResult{Outcome: ClaimAcquired}, nil
	case "takeover":
		return ClaimResult{Outcome: ClaimAcquired, TakenOver: true}, nil
	case "replay":
		return ClaimResult{Outcome: ClaimReplay, Response: json.RawMessage(detail)}, nil
	case "conflict":
		return ClaimResult{Outcome: ClaimConflict}, nil
	case "failed":
		return ClaimResult{Outcome: ClaimFailed, ErrorDetail: detail}, nil
	default:
		return ClaimResult{}, fmt.Errorf("redis claim: unknown outcome %q", outcome)
	}
}

// Complete finalizes the record with the cached response.
func (r *RedisRecords) Complete(ctx context.Context, key string, response json.RawMessage) error {
	err := finalizeScript.Run(ctx, r.client, []string{r.key(key)}, "completed", "response", string(response)).Err()
	if err != nil {
		return fmt.Errorf("redis complete: %w", err)
	}
	return nil
}

// Fail finalizes the record with the failure detail.
func (r *RedisRecords) Fail(ctx context.Context, key string, detail string) error {
	err := finalizeScript.Run(ctx, r.client, []string{r.key(key)}, "failed", "error", detail).Err()
	if err != nil {
		return fmt.Errorf("redis fail: %w", err)
	}
	return nil
}
