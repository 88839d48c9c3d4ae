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

// BookReferral creates an appointment on behalf of a referring doctor.
// Referral bookings skip the request/confirm handshake and come out
// confirmed: the referring doctor already vouched for the visit. Slot
// semantics are identical to a patient request, including the
// compensating release on a store fault.
func (s *Service) BookReferral(ctx context.Context, referringDoctorID uuid.UUID, req *model.ReferralBookingRequest) (*model.Appointment, error) {
	date, err := calendar.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if date.Before(time.Now().UTC().Truncate(24 * time.Hour)) {
		return nil, apperrors.Validation("cannot book an appointment in the past")
	}
	if req.TargetDoctorID == referringDoctorID {
		return nil, apperrors.Validation("cannot refer a patient to yourself")
	}

	exists, err := s.repo.ExistsActive(ctx, req.PatientID, req.TargetDoctorID, date, req.Time)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if exists {
		return nil, apperrors.AppointmentConflict()
	}

	now := time.Now().UTC()
	referralID := req.ReferralID
	apt := &model.Appointment{
		ID:          uuid.New(),
		PatientID:   req.PatientID,
		DoctorID:    req.TargetDoctorID,
		Date:        date,
		Time:        req.Time,
		Status:      model.AppointmentStatusConfirmed,
		Reason:      req.Notes,
		IsReferral:  true,
		ReferredBy:  &referringDoctorID,
		ReferralID:  &referralID,
		ConfirmedAt: &now,
	}

	if err := s.reservations.Reserve(ctx, req.TargetDoctorID, date, req.Time, apt.ID); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, apt); err != nil {
		if relErr := s.reservations.Release(ctx, req.TargetDoctorID, date, req.Time); relErr != nil {
			s.logger.Error(relErr, "compensating release failed",
				"doctor_id", req.TargetDoctorID.String(), "date", req.Date, "time", req.Time)
		}
		return nil, apperrors.Internal(err)
	}

	s.metrics.Transitions.WithLabelValues("referral_booked").Inc()
	s.events.Emit(ctx, event.TypeReferralBooked, transitionPayload(apt, map[string]interface{}{
		"referred_by": referringDoctorID,
		"referral_id": req.ReferralID,
	}))
	return apt, nil
}
