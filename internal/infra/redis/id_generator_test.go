package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-sale/internal/clock"
	"flash-sale/internal/domain"
)

func TestIDGenerator_StrictlyIncreasing(t *testing.T) {
	_, client := newTestClient(t)
	clk := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	gen := NewIDGenerator(client, clk)
	ctx := context.Background()

	var last int64
	for i := 0; i < 100000; i++ {
		if i%1000 == 0 {
			clk.Advance(time.Second)
		}
		id, err := gen.NextID(ctx, "order")
		require.NoError(t, err)
		require.Greater(t, id, last, "call %d", i)
		last = id
	}
}

func TestIDGenerator_Layout(t *testing.T) {
	mr, client := newTestClient(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	gen := NewIDGenerator(client, clock.NewManual(now))

	id, err := gen.NextID(context.Background(), "order")
	require.NoError(t, err)

	assert.Equal(t, now.Unix()-idEpoch, id>>idCountBits)
	assert.Equal(t, int64(1), id&(1<<idCountBits-1))

	v, err := mr.Get("icr:order:2024:01:02")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.Greater(t, mr.TTL("icr:order:2024:01:02"), time.Duration(0))
}

func TestIDGenerator_ClockStepsBack(t *testing.T) {
	_, client := newTestClient(t)
	clk := clock.NewManual(time.Date(2024, 1, 2, 0, 0, 10, 0, time.UTC))
	gen := NewIDGenerator(client, clk)
	ctx := context.Background()

	a, err := gen.NextID(ctx, "order")
	require.NoError(t, err)
	clk.Advance(-30 * time.Second) // crosses back into the previous day
	b, err := gen.NextID(ctx, "order")
	require.NoError(t, err)

	assert.Greater(t, b, a)
}

func TestIDGenerator_SequencesAreIndependent(t *testing.T) {
	mr, client := newTestClient(t)
	gen := NewIDGenerator(client, clock.NewManual(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	_, err := gen.NextID(ctx, "order")
	require.NoError(t, err)
	_, err = gen.NextID(ctx, "refund")
	require.NoError(t, err)

	assert.True(t, mr.Exists("icr:order:2024:01:02"))
	assert.True(t, mr.Exists("icr:refund:2024:01:02"))

	_, err = gen.NextID(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestIDGenerator_Overflow(t *testing.T) {
	mr, client := newTestClient(t)
	gen := NewIDGenerator(client, clock.NewManual(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, mr.Set("icr:order:2024:01:02", strconv.FormatInt(1<<idCountBits-1, 10)))

	_, err := gen.NextID(context.Background(), "order")
	assert.ErrorContains(t, err, "overflowed")
}
