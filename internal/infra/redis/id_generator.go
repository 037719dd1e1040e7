package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"flash-sale/internal/clock"
	"flash-sale/internal/domain"
)

const (
	// idEpoch is 2022-01-01T00:00:00Z.
	idEpoch = int64(1640995200)
	// idCountBits is the width of the per-day counter in the low bits.
	idCountBits = 32
	// idCounterRetention bounds how long a day's counter key is kept.
	idCounterRetention = 48 * time.Hour
)

// IDGenerator builds ids as (seconds since epoch << 32 | daily counter).
// The counter is an INCR on icr:<sequence>:<yyyy:MM:dd>, so each sequence
// name has its own counter space and the counter resets every day.
type IDGenerator struct {
	client goredis.Cmdable
	clock  clock.Clock

	mu   sync.Mutex
	last map[string]int64 // last timestamp part handed out per sequence
}

var _ domain.IDGenerator = (*IDGenerator)(nil)

// NewIDGenerator creates an id generator backed by the coordination store.
func NewIDGenerator(client goredis.Cmdable, clk clock.Clock) *IDGenerator {
	return &IDGenerator{
		client: client,
		clock:  clk,
		last:   make(map[string]int64),
	}
}

// NextID returns the next identifier for sequence. Calls from one process
// for the same sequence are strictly increasing, even if the wall clock
// steps backwards.
func (g *IDGenerator) NextID(ctx context.Context, sequence string) (int64, error) {
	if sequence == "" {
		return 0, fmt.Errorf("id sequence cannot be empty: %w", domain.ErrInvalidArgument)
	}
	ts := g.timestamp(sequence)
	day := time.Unix(idEpoch+ts, 0).UTC().Format("2006:01:02")
	key := IDCounterPrefix + sequence + ":" + day

	count, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, storeErr("next id for "+sequence, err)
	}
	if count == 1 {
		if err := g.client.Expire(ctx, key, idCounterRetention).Err(); err != nil {
			return 0, storeErr("expire id counter "+key, err)
		}
	}
	if count >= 1<<idCountBits {
		return 0, fmt.Errorf("id counter %s overflowed", key)
	}
	return ts<<idCountBits | count, nil
}

// timestamp clamps the clock so it never moves backwards for a sequence.
func (g *IDGenerator) timestamp(sequence string) int64 {
	ts := g.clock.Now().Unix() - idEpoch
	if ts < 0 {
		ts = 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev := g.last[sequence]; ts < prev {
		ts = prev
	}
	g.last[sequence] = ts
	return ts
}
