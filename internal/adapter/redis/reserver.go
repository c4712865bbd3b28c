// Package redis claims per-category cooldown windows so that overlapping
// alert runs cannot both dispatch.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/dunapp/water-level-alert/internal/alert"
	"github.com/dunapp/water-level-alert/internal/domain"
)

const keyPrefix = "dunapp:alert:cooldown:"

// releaseScript deletes the key only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Reserver implements alert.Reserver with SET NX PX.
type Reserver struct {
	client *redis.Client
}

// NewClient creates a go-redis client for addr.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewReserver creates a Reserver over client.
func NewReserver(client *redis.Client) *Reserver {
	return &Reserver{client: client}
}

func key(c domain.Category) string {
	return keyPrefix + string(c)
}

// Reserve claims category for ttl. When another run holds the claim, the
// result is not acquired and carries the time left on it.
func (r *Reserver) Reserve(ctx context.Context, c domain.Category, ttl time.Duration) (alert.Reservation, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key(c), token, ttl).Result()
	if err != nil {
		return alert.Reservation{}, fmt.Errorf("reserve %s: %w", c, err)
	}
	if ok {
		return alert.Reservation{Token: token, Acquired: true}, nil
	}

	remaining, err := r.client.PTTL(ctx, key(c)).Result()
	if err != nil {
		return alert.Reservation{}, fmt.Errorf("reservation ttl %s: %w", c, err)
	}
	if remaining < 0 {
		remaining = 0
	}
	return alert.Reservation{Remaining: remaining}, nil
}

// Release drops the claim if token still owns it.
func (r *Reserver) Release(ctx context.Context, c domain.Category, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{key(c)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release %s: %w", c, err)
	}
	return nil
}

// CheckReadiness pings the server.
func (r *Reserver) CheckReadiness(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Reserver) Close() error {
	return r.client.Close()
}
