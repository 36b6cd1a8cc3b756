package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/redis/go-redis/v9"

	"filmbase.org/internal/account"
)

var _ account.Cache = (*Redis)(nil)

// record is the stored form of an account. Account hides its credential
// fields from JSON, so they are carried explicitly here.
type record struct {
	Account       account.Account `json:"account"`
	PasswordHash  string          `json:"passwordHash"`
	ActivationKey string          `json:"activationKey,omitempty"`
	ResetKey      string          `json:"resetKey,omitempty"`
	ResetDate     *time.Time      `json:"resetDate,omitempty"`
}

// Redis shares the lookup cache between API replicas.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger log.Logger
}

// NewRedis wraps client. Keys are namespaced under prefix.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration, logger log.Logger) *Redis {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if prefix == "" {
		prefix = "filmbase:accounts"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *Redis) key(region account.Region, key string) string {
	return r.prefix + ":" + string(region) + ":" + key
}

// Get treats any backend failure as a miss.
func (r *Redis) Get(ctx context.Context, region account.Region, key string) (*account.Account, bool) {
	raw, err := r.client.Get(ctx, r.key(region, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			level.Warn(r.logger).Log("msg", "cache read failed", "region", region, "err", err)
		}
		return nil, false
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		level.Warn(r.logger).Log("msg", "discarding undecodable cache entry", "region", region, "err", err)
		return nil, false
	}
	acct := rec.Account
	acct.PasswordHash = rec.PasswordHash
	acct.ActivationKey = rec.ActivationKey
	acct.ResetKey = rec.ResetKey
	acct.ResetDate = rec.ResetDate
	return &acct, true
}

func (r *Redis) Put(ctx context.Context, region account.Region, key string, acct *account.Account) {
	if acct == nil {
		return
	}
	raw, err := json.Marshal(record{
		Account:       *acct,
		PasswordHash:  acct.PasswordHash,
		ActivationKey: acct.ActivationKey,
		ResetKey:      acct.ResetKey,
		ResetDate:     acct.ResetDate,
	})
	if err != nil {
		level.Warn(r.logger).Log("msg", "cache encode failed", "err", err)
		return
	}
	if err := r.client.Set(ctx, r.key(region, key), raw, r.ttl).Err(); err != nil {
		level.Warn(r.logger).Log("msg", "cache write failed", "region", region, "err", err)
	}
}

// Evict must succeed for a mutation to be reported as done, so failures
// are returned rather than logged.
func (r *Redis) Evict(ctx context.Context, region account.Region, key string) error {
	if err := r.client.Del(ctx, r.key(region, key)).Err(); err != nil {
		return err
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
