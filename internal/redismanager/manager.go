// Package redismanager hands out short lived claims on source paths so two
// overlapping webhook deliveries never ingest the same file concurrently.
package redismanager

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "AH:Claim:"

// release deletes the claim only if it still carries our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type ClientSource interface {
	Get() redis.UniversalClient
}

type Manager struct {
	clients ClientSource
	ttl     time.Duration
}

func NewManager(clients ClientSource, ttl time.Duration) *Manager {
	return &Manager{clients: clients, ttl: ttl}
}

// Claim is held by one job until released or until its TTL passes.
type Claim struct {
	key   string
	token string
}

// Claim tries to take path. ok is false when another job holds it.
func (m *Manager) Claim(ctx context.Context, path string) (*Claim, bool, error) {
	c := &Claim{key: ClaimKey(path), token: uuid.NewString()}

	ok, err := m.clients.Get().SetNX(ctx, c.key, c.token, m.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return c, true, nil
}

func (m *Manager) Release(ctx context.Context, c *Claim) error {
	if c == nil {
		return nil
	}
	err := release.Run(ctx, m.clients.Get(), []string{c.key}, c.token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// ClaimKey hashes path so arbitrary provider paths make safe redis keys.
func ClaimKey(path string) string {
	sum := sha1.Sum([]byte(path))
	return keyPrefix + hex.EncodeToString(sum[:])
}
