package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/repository"
	apperrors "github.com/esante/rdv-service/pkg/errors"
	"github.com/esante/rdv-service/pkg/logger"
	"github.com/esante/rdv-service/pkg/metrics"
)

// Invalidator drops cached availability views for a doctor after a slot
// under that doctor changes.
type Invalidator interface {
	InvalidateDoctor(ctx context.Context, doctorID uuid.UUID)
}

// Coordinator is the only component allowed to mutate slot occupancy,
// and it does so through a single conditional write per attempt. The
// check and the set are one statement at the store boundary, so two
// requests racing for a slot cannot both observe it free.
type Coordinator struct {
	calendar repository.CalendarRepository
	cache    Invalidator
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewCoordinator(calendar repository.CalendarRepository, cache Invalidator, logger *logger.Logger, metrics *metrics.Metrics) *Coordinator {
	return &Coordinator{
		calendar: calendar,
		cache:    cache,
		logger:   logger,
		metrics:  metrics,
	}
}

// Reserve binds a free slot to the appointment. Every failure mode —
// slot missing, already booked, day unavailable — collapses into the
// same SlotNotAvailable answer with no partial effect.
func (c *Coordinator) Reserve(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string, appointmentID uuid.UUID) error {
	booked, err := c.calendar.MarkBooked(ctx, doctorID, date, slotTime, appointmentID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !booked {
		c.metrics.ReservationAttempts.WithLabelValues("lost").Inc()
		return apperrors.SlotNotAvailable()
	}

	c.metrics.ReservationAttempts.WithLabelValues("won").Inc()
	c.cache.InvalidateDoctor(ctx, doctorID)
	return nil
}

// Release frees a slot. It is idempotent and always succeeds: it runs
// from compensating and cleanup paths where the prior state is
// uncertain, and a slot already free or removed by a later availability
// update is not an error.
func (c *Coordinator) Release(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string) error {
	if err := c.calendar.MarkFree(ctx, doctorID, date, slotTime); err != nil {
		return apperrors.Internal(err)
	}
	c.metrics.SlotReleases.Inc()
	c.cache.InvalidateDoctor(ctx, doctorID)
	return nil
}
