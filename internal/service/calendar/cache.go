package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/esante/rdv-service/internal/model"
	"github.com/esante/rdv-service/pkg/logger"
	"github.com/esante/rdv-service/pkg/metrics"
)

const (
	availabilityTTL = time.Minute
	statisticsTTL   = 5 * time.Minute
)

// Cache is the short-lived redis view in front of the calendar store.
// It is advisory: every miss or redis error falls through to the store,
// and the authoritative availability check is the conditional
// reservation write, never this cache.
type Cache struct {
	client  *redis.Client
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewCache(client *redis.Client, logger *logger.Logger, metrics *metrics.Metrics) *Cache {
	return &Cache{client: client, logger: logger, metrics: metrics}
}

func availabilityKey(doctorID uuid.UUID, from, to time.Time) string {
	return fmt.Sprintf("availability:%s:%s:%s", doctorID, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

func statisticsKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("doctor_stats:%s", doctorID)
}

func (c *Cache) GetAvailability(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]model.DayAvailability, bool) {
	data, err := c.client.Get(ctx, availabilityKey(doctorID, from, to)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("availability cache read failed", "error", err.Error())
		}
		c.metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	var days []model.DayAvailability
	if err := json.Unmarshal(data, &days); err != nil {
		c.metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	c.metrics.CacheRequests.WithLabelValues("hit").Inc()
	return days, true
}

func (c *Cache) SetAvailability(ctx context.Context, doctorID uuid.UUID, from, to time.Time, days []model.DayAvailability) {
	data, err := json.Marshal(days)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, availabilityKey(doctorID, from, to), data, availabilityTTL).Err(); err != nil {
		c.logger.Warn("availability cache write failed", "error", err.Error())
	}
}

func (c *Cache) GetStatistics(ctx context.Context, doctorID uuid.UUID) (*model.AppointmentStatistics, bool) {
	data, err := c.client.Get(ctx, statisticsKey(doctorID)).Bytes()
	if err != nil {
		c.metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	var stats model.AppointmentStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		c.metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	c.metrics.CacheRequests.WithLabelValues("hit").Inc()
	return &stats, true
}

func (c *Cache) SetStatistics(ctx context.Context, doctorID uuid.UUID, stats *model.AppointmentStatistics) {
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statisticsKey(doctorID), data, statisticsTTL).Err(); err != nil {
		c.logger.Warn("statistics cache write failed", "error", err.Error())
	}
}

// InvalidateDoctor drops every cached availability range for the doctor.
// Entries also expire on their own within a minute, so a failed scan
// only widens the staleness window, never correctness.
func (c *Cache) InvalidateDoctor(ctx context.Context, doctorID uuid.UUID) {
	pattern := fmt.Sprintf("availability:%s:*", doctorID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("availability cache scan failed", "error", err.Error())
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("availability cache invalidation failed", "error", err.Error())
	}
}
