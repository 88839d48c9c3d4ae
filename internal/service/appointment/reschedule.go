package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/model"
	"github.com/esante/rdv-service/internal/service/calendar"
	"github.com/esante/rdv-service/internal/service/event"
	apperrors "github.com/esante/rdv-service/pkg/errors"
)

// RescheduleAppointment is the direct workflow: doctors and admins move
// an appointment immediately, no approval round-trip. The new slot is
// reserved before anything else changes, so a full slot fails the whole
// operation and leaves the appointment untouched. Only then is the
// record moved and the old slot freed.
func (s *Service) RescheduleAppointment(ctx context.Context, id, callerID uuid.UUID, by model.Actor, req *model.RescheduleAppointmentRequest) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.From(err)
	}

	switch by {
	case model.ActorDoctor:
		if apt.DoctorID != callerID {
			return nil, apperrors.Forbidden("you can only reschedule your own appointments")
		}
	case model.ActorAdmin:
	default:
		return nil, apperrors.Forbidden("patients must request a reschedule for the doctor to approve")
	}

	newDate, err := s.validateRescheduleTarget(apt, req.NewDate, req.NewTime)
	if err != nil {
		return nil, err
	}

	if err := s.reservations.Reserve(ctx, apt.DoctorID, newDate, req.NewTime, apt.ID); err != nil {
		return nil, err
	}

	ok, err := s.repo.Reschedule(ctx, id, apt.Date, apt.Time, newDate, req.NewTime, by, req.Reason, false)
	if err == nil && !ok {
		err = s.transitionLost(ctx, id, apt.Status)
	} else if err != nil {
		err = apperrors.Internal(err)
	}
	if err != nil {
		if relErr := s.reservations.Release(ctx, apt.DoctorID, newDate, req.NewTime); relErr != nil {
			s.logger.Error(relErr, "failed to release slot after aborted reschedule",
				"appointment_id", id.String())
		}
		return nil, err
	}

	s.releaseSlot(ctx, apt)
	s.metrics.Transitions.WithLabelValues("rescheduled").Inc()
	s.events.Emit(ctx, event.TypeAppointmentRescheduled, transitionPayload(apt, map[string]interface{}{
		"new_date":       newDate.Format("2006-01-02"),
		"new_time":       req.NewTime,
		"rescheduled_by": by,
	}))
	return s.repo.Get(ctx, id)
}

// RequestReschedule is the patient workflow: record the wish, leave
// both calendar and appointment untouched until the doctor decides. The
// target slot is checked as a courtesy only; it is not held, and the
// authoritative check happens at approval.
func (s *Service) RequestReschedule(ctx context.Context, id, patientID uuid.UUID, req *model.RescheduleAppointmentRequest) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.From(err)
	}
	if apt.PatientID != patientID {
		return nil, apperrors.Forbidden("you can only reschedule your own appointments")
	}

	newDate, err := s.validateRescheduleTarget(apt, req.NewDate, req.NewTime)
	if err != nil {
		return nil, err
	}

	day, err := s.calendar.GetDay(ctx, apt.DoctorID, newDate)
	if err != nil {
		return nil, err
	}
	if !day.SlotOpen(req.NewTime) {
		return nil, apperrors.SlotNotAvailable()
	}

	ok, err := s.repo.SetRescheduleRequest(ctx, id, &model.RescheduleRequest{
		RequestedDate: newDate,
		RequestedTime: req.NewTime,
		Reason:        req.Reason,
		RequestedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		// Either a request is already pending or the appointment left a
		// reschedulable state under us.
		current, getErr := s.repo.Get(ctx, id)
		if getErr != nil {
			return nil, apperrors.From(getErr)
		}
		if current.HasPendingReschedule() {
			return nil, apperrors.ReschedulePending()
		}
		return nil, apperrors.InvalidStatusTransition(string(current.Status), string(current.Status))
	}

	s.events.Emit(ctx, event.TypeRescheduleRequested, transitionPayload(apt, map[string]interface{}{
		"requested_date": newDate.Format("2006-01-02"),
		"requested_time": req.NewTime,
		"reason":         req.Reason,
	}))
	return s.repo.Get(ctx, id)
}

// ApproveReschedule executes a patient's pending request: reserve the
// requested slot, move the record and clear the request in one guarded
// update, then free the old slot.
func (s *Service) ApproveReschedule(ctx context.Context, id, doctorID uuid.UUID) (*model.Appointment, error) {
	apt, err := s.getOwnedByDoctor(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}
	if !apt.HasPendingReschedule() {
		return nil, apperrors.Validation("no pending reschedule request on this appointment")
	}

	req := apt.RescheduleRequest
	if err := s.reservations.Reserve(ctx, apt.DoctorID, req.RequestedDate, req.RequestedTime, apt.ID); err != nil {
		return nil, err
	}

	ok, err := s.repo.Reschedule(ctx, id, apt.Date, apt.Time, req.RequestedDate, req.RequestedTime, model.ActorDoctor, req.Reason, true)
	if err == nil && !ok {
		err = s.transitionLost(ctx, id, apt.Status)
	} else if err != nil {
		err = apperrors.Internal(err)
	}
	if err != nil {
		if relErr := s.reservations.Release(ctx, apt.DoctorID, req.RequestedDate, req.RequestedTime); relErr != nil {
			s.logger.Error(relErr, "failed to release slot after aborted approval",
				"appointment_id", id.String())
		}
		return nil, err
	}

	s.releaseSlot(ctx, apt)
	s.metrics.Transitions.WithLabelValues("rescheduled").Inc()
	s.events.Emit(ctx, event.TypeAppointmentRescheduled, transitionPayload(apt, map[string]interface{}{
		"new_date":       req.RequestedDate.Format("2006-01-02"),
		"new_time":       req.RequestedTime,
		"rescheduled_by": model.ActorDoctor,
	}))
	return s.repo.Get(ctx, id)
}

// RejectReschedule declines a pending request. The appointment keeps
// its original date, time and status.
func (s *Service) RejectReschedule(ctx context.Context, id, doctorID uuid.UUID) (*model.Appointment, error) {
	apt, err := s.getOwnedByDoctor(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}
	if !apt.HasPendingReschedule() {
		return nil, apperrors.Validation("no pending reschedule request on this appointment")
	}

	ok, err := s.repo.RejectRescheduleRequest(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		return nil, apperrors.Validation("no pending reschedule request on this appointment")
	}

	s.events.Emit(ctx, event.TypeRescheduleRejected, transitionPayload(apt, nil))
	return s.repo.Get(ctx, id)
}

func (s *Service) validateRescheduleTarget(apt *model.Appointment, newDateStr, newTime string) (time.Time, error) {
	if !reschedulable(apt.Status) {
		return time.Time{}, apperrors.InvalidStatusTransition(string(apt.Status), string(apt.Status))
	}
	newDate, err := calendar.ParseDate(newDateStr)
	if err != nil {
		return time.Time{}, err
	}
	if newDate.Before(time.Now().UTC().Truncate(24 * time.Hour)) {
		return time.Time{}, apperrors.Validation("cannot reschedule to a date in the past")
	}
	if newDate.Equal(apt.Date) && newTime == apt.Time {
		return time.Time{}, apperrors.Validation("new slot is the same as the current one")
	}
	return newDate, nil
}
