package event

import (
	"context"
	"encoding/json"

	"github.com/esante/rdv-service/internal/model"
	"github.com/esante/rdv-service/internal/repository"
	"github.com/esante/rdv-service/pkg/logger"
)

// Event types published for scheduling transitions. Consumers include
// the notification mailer and the real-time gateway.
const (
	TypeAppointmentRequested   = "appointment.requested"
	TypeAppointmentConfirmed   = "appointment.confirmed"
	TypeAppointmentRejected    = "appointment.rejected"
	TypeAppointmentCancelled   = "appointment.cancelled"
	TypeAppointmentCompleted   = "appointment.completed"
	TypeAppointmentNoShow      = "appointment.no_show"
	TypeAppointmentRescheduled = "appointment.rescheduled"
	TypeRescheduleRequested    = "reschedule.requested"
	TypeRescheduleRejected     = "reschedule.rejected"
	TypeReferralBooked         = "appointment.referral_booked"
	TypeAvailabilitySet        = "doctor.availability_set"
	TypeReviewCreated          = "review.created"
	TypeDoctorRatingUpdated    = "doctor.rating_updated"
)

// Service writes transition events to the outbox. Emission is
// fire-and-forget: a failure is logged and swallowed so it can never
// roll back the transition that already committed.
type Service struct {
	outbox repository.OutboxRepository
	logger *logger.Logger
}

func NewService(outbox repository.OutboxRepository, logger *logger.Logger) *Service {
	return &Service{outbox: outbox, logger: logger}
}

func (s *Service) Emit(ctx context.Context, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error(err, "failed to marshal event payload", "event_type", eventType)
		return
	}

	evt := &model.OutboxEvent{
		EventType: eventType,
		Payload:   data,
	}
	if err := s.outbox.Create(ctx, evt); err != nil {
		s.logger.Error(err, "failed to enqueue event", "event_type", eventType)
	}
}
