package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/model"
)

// All repository interfaces in one file
type (
	// CalendarRepository is the per-doctor, per-day slot store. MarkBooked
	// is the single conditional write that decides slot reservation races;
	// MarkFree is its idempotent inverse.
	CalendarRepository interface {
		UpsertDay(ctx context.Context, day *model.TimeSlotDay) (created bool, err error)
		GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.TimeSlotDay, error)
		ListDays(ctx context.Context, doctorID uuid.UUID, from, to time.Time, onlyAvailable bool) ([]*model.TimeSlotDay, error)

		// MarkBooked flips a free slot to booked and binds the appointment.
		// It succeeds only when the day exists, accepts bookings, and the
		// slot is currently free; the returned bool is the race verdict.
		MarkBooked(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string, appointmentID uuid.UUID) (bool, error)

		// MarkFree releases a slot. Missing days or slots are a no-op: the
		// slot list may have been replaced since the booking was taken.
		MarkFree(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string) error
	}

	// AppointmentRepository persists booking records. Every status
	// mutation is a conditional update guarded on the expected prior
	// state, so concurrent writers lose cleanly instead of clobbering.
	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int, error)

		// ExistsActive reports a non-terminal appointment for the same
		// patient, doctor, date and time (duplicate-request guard).
		ExistsActive(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time, slotTime string) (bool, error)

		// HasRelationship reports any pending, confirmed or completed
		// appointment between the two parties.
		HasRelationship(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)

		Confirm(ctx context.Context, id uuid.UUID, notes string) (bool, error)
		Reject(ctx context.Context, id uuid.UUID, reason string) (bool, error)
		Cancel(ctx context.Context, id uuid.UUID, reason string, by model.Actor) (bool, error)
		Complete(ctx context.Context, id uuid.UUID) (bool, error)
		MarkNoShow(ctx context.Context, id uuid.UUID) (bool, error)

		// Reschedule moves the active (date, time), journals the previous
		// coordinates and bumps the reschedule counter. The update is
		// guarded on the coordinates the caller read, so two racing
		// reschedules cannot both move the same appointment and strand a
		// slot. When resolving a patient request the stored sub-record is
		// marked approved, otherwise it is cleared.
		Reschedule(ctx context.Context, id uuid.UUID, oldDate time.Time, oldTime string, newDate time.Time, newTime string, by model.Actor, reason string, approveRequest bool) (bool, error)

		// SetRescheduleRequest stores the single outstanding proposal. The
		// write fails when one is already pending.
		SetRescheduleRequest(ctx context.Context, id uuid.UUID, req *model.RescheduleRequest) (bool, error)
		RejectRescheduleRequest(ctx context.Context, id uuid.UUID) (bool, error)

		Statistics(ctx context.Context, doctorID uuid.UUID, today time.Time) (*model.AppointmentStatistics, error)
	}

	// ReviewRepository persists post-visit reviews. The one-per-
	// appointment rule is enforced by a unique constraint, so Create
	// reports the duplicate instead of erroring.
	ReviewRepository interface {
		Create(ctx context.Context, review *model.Review) (created bool, err error)
		Get(ctx context.Context, id uuid.UUID) (*model.Review, error)
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Review, error)
		ListByDoctor(ctx context.Context, doctorID uuid.UUID, page, limit int) ([]*model.Review, int, error)
		Update(ctx context.Context, id uuid.UUID, rating int, comment string) error
		Delete(ctx context.Context, id uuid.UUID) error

		// RatingStats aggregates the doctor's average rating and review
		// count; zeroes when the doctor has no reviews.
		RatingStats(ctx context.Context, doctorID uuid.UUID) (*model.DoctorRatingStats, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
