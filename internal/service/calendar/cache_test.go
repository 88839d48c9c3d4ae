package calendar

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esante/rdv-service/internal/model"
	"github.com/esante/rdv-service/pkg/logger"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	lg := logger.NewLogger(&logger.Config{Output: io.Discard})
	return NewCache(client, lg, testMetrics), mr
}

func TestCacheAvailability(t *testing.T) {
	ctx := context.Background()
	doctorID := uuid.New()
	from := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)

	t.Run("round trips a projection", func(t *testing.T) {
		cache, _ := newTestCache(t)

		days := []model.DayAvailability{
			{Date: from, AvailableSlots: []string{"09:00", "09:30"}},
		}
		cache.SetAvailability(ctx, doctorID, from, to, days)

		got, ok := cache.GetAvailability(ctx, doctorID, from, to)
		require.True(t, ok)
		assert.Equal(t, days, got)
	})

	t.Run("misses on an unseen range", func(t *testing.T) {
		cache, _ := newTestCache(t)

		_, ok := cache.GetAvailability(ctx, doctorID, from, to)
		assert.False(t, ok)
	})

	t.Run("entries expire", func(t *testing.T) {
		cache, mr := newTestCache(t)

		cache.SetAvailability(ctx, doctorID, from, to, []model.DayAvailability{})
		mr.FastForward(2 * time.Minute)

		_, ok := cache.GetAvailability(ctx, doctorID, from, to)
		assert.False(t, ok)
	})

	t.Run("invalidation drops every range for the doctor only", func(t *testing.T) {
		cache, _ := newTestCache(t)
		otherID := uuid.New()

		cache.SetAvailability(ctx, doctorID, from, to, []model.DayAvailability{})
		cache.SetAvailability(ctx, doctorID, from, from.AddDate(0, 0, 7), []model.DayAvailability{})
		cache.SetAvailability(ctx, otherID, from, to, []model.DayAvailability{})

		cache.InvalidateDoctor(ctx, doctorID)

		_, ok := cache.GetAvailability(ctx, doctorID, from, to)
		assert.False(t, ok)
		_, ok = cache.GetAvailability(ctx, doctorID, from, from.AddDate(0, 0, 7))
		assert.False(t, ok)
		_, ok = cache.GetAvailability(ctx, otherID, from, to)
		assert.True(t, ok)
	})

	t.Run("tolerates a dead redis", func(t *testing.T) {
		cache, mr := newTestCache(t)
		mr.Close()

		cache.SetAvailability(ctx, doctorID, from, to, []model.DayAvailability{})
		_, ok := cache.GetAvailability(ctx, doctorID, from, to)
		assert.False(t, ok)
	})
}

func TestCacheStatistics(t *testing.T) {
	ctx := context.Background()
	doctorID := uuid.New()

	cache, mr := newTestCache(t)

	stats := &model.AppointmentStatistics{Total: 12, Completed: 7, Cancelled: 2}
	cache.SetStatistics(ctx, doctorID, stats)

	got, ok := cache.GetStatistics(ctx, doctorID)
	require.True(t, ok)
	assert.Equal(t, stats, got)

	mr.FastForward(6 * time.Minute)
	_, ok = cache.GetStatistics(ctx, doctorID)
	assert.False(t, ok)
}
