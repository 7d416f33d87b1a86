package position

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard throttles position reports per vehicle.
type Guard interface {
	// Allow claims the reporting slot for vehicleID and reports whether the
	// claim succeeded.
	Allow(ctx context.Context, vehicleID string) (bool, error)
	// Release frees a slot claimed for a report that was not persisted.
	Release(ctx context.Context, vehicleID string) error
}

// RedisGuard keeps one key per vehicle that expires after the minimum
// reporting interval, so the throttle holds across service replicas.
type RedisGuard struct {
	client   redis.Cmdable
	interval time.Duration
}

func NewRedisGuard(client redis.Cmdable, interval time.Duration) *RedisGuard {
	return &RedisGuard{client: client, interval: interval}
}

func (g *RedisGuard) Allow(ctx context.Context, vehicleID string) (bool, error) {
	return g.client.SetNX(ctx, positionReportKey(vehicleID), time.Now().UTC().Format(time.RFC3339Nano), g.interval).Result()
}

func (g *RedisGuard) Release(ctx context.Context, vehicleID string) error {
	return g.client.Del(ctx, positionReportKey(vehicleID)).Err()
}

func positionReportKey(vehicleID string) string {
	return fmt.Sprintf("position_report:%s", vehicleID)
}
