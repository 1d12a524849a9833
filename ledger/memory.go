package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory is the single-process ledger used when redis is disabled.
type Memory struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[string]time.Time // key -> expiry
	now    func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, claims: map[string]time.Time{}, now: time.Now}
}

func (l *Memory) Claim(_ context.Context, orderID string, due time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.expire(now)
	k := key(orderID, due)
	if _, ok := l.claims[k]; ok {
		return false, nil
	}
	l.claims[k] = now.Add(l.ttl)
	return true, nil
}

func (l *Memory) Release(_ context.Context, orderID string, due time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, key(orderID, due))
	return nil
}

func (l *Memory) Ping(context.Context) error { return nil }

func (l *Memory) expire(now time.Time) {
	for k, exp := range l.claims {
		if !now.Before(exp) {
			delete(l.claims, k)
		}
	}
}
