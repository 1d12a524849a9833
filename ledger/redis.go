// Package ledger remembers which due-date reminders have already gone out, so a sweep
// that runs twice (or on two replicas) sends each reminder once.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL outlives the 24h reminder window with room to spare.
const DefaultTTL = 72 * time.Hour

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl, now: time.Now}
}

// 同一订单 + 同一到期日只提醒一次；续借后 due date 变了，会再提醒
func key(orderID string, due time.Time) string {
	return fmt.Sprintf("lending:reminder:%s:%d", orderID, due.Unix())
}

// Claim reports true when the caller is the first to claim the reminder.
func (l *Redis) Claim(ctx context.Context, orderID string, due time.Time) (bool, error) {
	return l.rdb.SetNX(ctx, key(orderID, due), l.now().UTC().Format(time.RFC3339), l.ttl).Result()
}

// Release drops a claim after a failed send so a later sweep retries.
func (l *Redis) Release(ctx context.Context, orderID string, due time.Time) error {
	return l.rdb.Del(ctx, key(orderID, due)).Err()
}

func (l *Redis) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}
