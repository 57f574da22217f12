package store

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/net/context"

	"github.com/user00265/dxbridge/internal/redisclient"
	"github.com/user00265/dxbridge/internal/spot"
)

// RecentSpotsKey is the Redis list holding the newest spot payloads.
const RecentSpotsKey = "dxbridge:spots:recent"

// Redis keeps a capped list of recent spot payloads in Redis.
type Redis struct {
	client *redisclient.Client
	key    string
	max    int
	ttl    time.Duration
}

// NewRedis keeps at most max payloads, expiring the list after ttl of silence.
func NewRedis(client *redisclient.Client, max int, ttl time.Duration) *Redis {
	return &Redis{client: client, key: RecentSpotsKey, max: max, ttl: ttl}
}

func (r *Redis) Store(ctx context.Context, s spot.Spot) error {
	return r.StoreBatch(ctx, []spot.Spot{s})
}

// StoreBatch pushes spots so the last one ends up at the head of the list.
func (r *Redis) StoreBatch(ctx context.Context, spots []spot.Spot) error {
	values := make([]interface{}, 0, len(spots))
	for _, s := range spots {
		b, err := json.Marshal(s.Payload())
		if err != nil {
			return fmt.Errorf("encode spot %s: %w", s.DXCall, err)
		}
		values = append(values, string(b))
	}
	if err := r.client.PushCapped(ctx, r.key, r.max, r.ttl, values...); err != nil {
		return fmt.Errorf("push recent spots: %w", err)
	}
	return nil
}

// Recent returns up to n payloads, newest first.
func (r *Redis) Recent(ctx context.Context, n int) ([]spot.Payload, error) {
	raw, err := r.client.Recent(ctx, r.key, n)
	if err != nil {
		return nil, err
	}
	out := make([]spot.Payload, 0, len(raw))
	for _, item := range raw {
		var p spot.Payload
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
