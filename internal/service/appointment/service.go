package appointment

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/model"
	"github.com/esante/rdv-service/internal/repository"
	"github.com/esante/rdv-service/internal/service/calendar"
	"github.com/esante/rdv-service/internal/service/event"
	"github.com/esante/rdv-service/internal/service/reservation"
	apperrors "github.com/esante/rdv-service/pkg/errors"
	"github.com/esante/rdv-service/pkg/logger"
	"github.com/esante/rdv-service/pkg/metrics"
)

// Patients may cancel up to this long before the appointment starts.
// Doctors and admins are exempt.
const patientCancelCutoff = 2 * time.Hour

// Service drives the appointment lifecycle. Slot occupancy only ever
// changes here as a side effect of a lifecycle transition, through the
// reservation coordinator, which keeps the calendar and the appointment
// record from diverging.
type Service struct {
	repo         repository.AppointmentRepository
	calendar     *calendar.Service
	cache        *calendar.Cache
	reservations *reservation.Coordinator
	events       *event.Service
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewService(
	repo repository.AppointmentRepository,
	cal *calendar.Service,
	cache *calendar.Cache,
	reservations *reservation.Coordinator,
	events *event.Service,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		repo:         repo,
		calendar:     cal,
		cache:        cache,
		reservations: reservations,
		events:       events,
		logger:       logger,
		metrics:      metrics,
	}
}

// RequestAppointment books a slot for a patient and creates the pending
// record. The order matters: the slot is reserved first, atomically, so
// a lost race never leaves an appointment behind; a store fault after
// the reservation triggers a compensating release.
func (s *Service) RequestAppointment(ctx context.Context, patientID uuid.UUID, req *model.RequestAppointmentRequest) (*model.Appointment, error) {
	date, err := calendar.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if date.Before(time.Now().UTC().Truncate(24 * time.Hour)) {
		return nil, apperrors.Validation("cannot book an appointment in the past")
	}

	exists, err := s.repo.ExistsActive(ctx, patientID, req.DoctorID, date, req.Time)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if exists {
		return nil, apperrors.AppointmentConflict()
	}

	apt := &model.Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  req.DoctorID,
		Date:      date,
		Time:      req.Time,
		Status:    model.AppointmentStatusPending,
		Reason:    req.Reason,
	}

	if err := s.reservations.Reserve(ctx, req.DoctorID, date, req.Time, apt.ID); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, apt); err != nil {
		// Mandatory compensation: without it the slot would stay booked
		// with no appointment owning it.
		if relErr := s.reservations.Release(ctx, req.DoctorID, date, req.Time); relErr != nil {
			s.logger.Error(relErr, "compensating release failed",
				"doctor_id", req.DoctorID.String(), "date", req.Date, "time", req.Time)
		}
		return nil, apperrors.Internal(err)
	}

	s.metrics.Transitions.WithLabelValues("requested").Inc()
	s.events.Emit(ctx, event.TypeAppointmentRequested, transitionPayload(apt, nil))
	return apt, nil
}

// ConfirmAppointment moves a pending appointment to confirmed. The slot
// was already booked at request time, so there is no calendar side
// effect.
func (s *Service) ConfirmAppointment(ctx context.Context, id, doctorID uuid.UUID, notes string) (*model.Appointment, error) {
	apt, err := s.getOwnedByDoctor(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}
	if !canTransition(apt.Status, model.AppointmentStatusConfirmed) {
		return nil, apperrors.InvalidStatusTransition(string(apt.Status), string(model.AppointmentStatusConfirmed))
	}

	ok, err := s.repo.Confirm(ctx, id, notes)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		return nil, s.transitionLost(ctx, id, model.AppointmentStatusConfirmed)
	}

	s.metrics.Transitions.WithLabelValues("confirmed").Inc()
	s.events.Emit(ctx, event.TypeAppointmentConfirmed, transitionPayload(apt, nil))
	return s.repo.Get(ctx, id)
}

// RejectAppointment declines a pending request and frees its slot.
func (s *Service) RejectAppointment(ctx context.Context, id, doctorID uuid.UUID, reason string) (*model.Appointment, error) {
	apt, err := s.getOwnedByDoctor(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}
	if !canTransition(apt.Status, model.AppointmentStatusRejected) {
		return nil, apperrors.InvalidStatusTransition(string(apt.Status), string(model.AppointmentStatusRejected))
	}

	ok, err := s.repo.Reject(ctx, id, reason)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		return nil, s.transitionLost(ctx, id, model.AppointmentStatusRejected)
	}

	s.releaseSlot(ctx, apt)
	s.metrics.Transitions.WithLabelValues("rejected").Inc()
	s.events.Emit(ctx, event.TypeAppointmentRejected, transitionPayload(apt, map[string]interface{}{
		"reason": reason,
	}))
	return s.repo.Get(ctx, id)
}

// CancelAppointment cancels a pending or confirmed appointment and
// frees its slot. Patients may only cancel their own bookings and only
// up to the cutoff; admins cancel anything.
func (s *Service) CancelAppointment(ctx context.Context, id, callerID uuid.UUID, by model.Actor, reason string) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.From(err)
	}

	switch by {
	case model.ActorPatient:
		if apt.PatientID != callerID {
			return nil, apperrors.Forbidden("you can only cancel your own appointments")
		}
		if !cancellableAt(apt, time.Now().UTC()) {
			return nil, apperrors.Validation("appointments can only be cancelled at least 2 hours in advance")
		}
	case model.ActorAdmin:
		// no ownership or cutoff constraints
	default:
		return nil, apperrors.Forbidden("only the patient or an administrator may cancel")
	}

	if !canTransition(apt.Status, model.AppointmentStatusCancelled) {
		return nil, apperrors.InvalidStatusTransition(string(apt.Status), string(model.AppointmentStatusCancelled))
	}

	ok, err := s.repo.Cancel(ctx, id, reason, by)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		return nil, s.transitionLost(ctx, id, model.AppointmentStatusCancelled)
	}

	s.releaseSlot(ctx, apt)
	s.metrics.Transitions.WithLabelValues("cancelled").Inc()
	s.events.Emit(ctx, event.TypeAppointmentCancelled, transitionPayload(apt, map[string]interface{}{
		"cancelled_by": by,
		"reason":       reason,
	}))
	return s.repo.Get(ctx, id)
}

// CompleteAppointment marks a confirmed appointment as done. The slot
// stays booked; the day is in the past by then.
func (s *Service) CompleteAppointment(ctx context.Context, id, doctorID uuid.UUID) (*model.Appointment, error) {
	apt, err := s.getOwnedByDoctor(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}
	if !canTransition(apt.Status, model.AppointmentStatusCompleted) {
		return nil, apperrors.InvalidStatusTransition(string(apt.Status), string(model.AppointmentStatusCompleted))
	}

	ok, err := s.repo.Complete(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		return nil, s.transitionLost(ctx, id, model.AppointmentStatusCompleted)
	}

	s.metrics.Transitions.WithLabelValues("completed").Inc()
	s.events.Emit(ctx, event.TypeAppointmentCompleted, transitionPayload(apt, nil))
	return s.repo.Get(ctx, id)
}

// MarkNoShow is the administrative override for confirmed appointments
// the patient never attended. Not exposed in the booking flow.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.From(err)
	}
	if !canTransition(apt.Status, model.AppointmentStatusNoShow) {
		return nil, apperrors.InvalidStatusTransition(string(apt.Status), string(model.AppointmentStatusNoShow))
	}

	ok, err := s.repo.MarkNoShow(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		return nil, s.transitionLost(ctx, id, model.AppointmentStatusNoShow)
	}

	s.metrics.Transitions.WithLabelValues("no_show").Inc()
	s.events.Emit(ctx, event.TypeAppointmentNoShow, transitionPayload(apt, nil))
	return s.repo.Get(ctx, id)
}

// GetAppointment returns the record to one of its parties or an admin.
func (s *Service) GetAppointment(ctx context.Context, id, callerID uuid.UUID, role model.Actor) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.From(err)
	}
	if role != model.ActorAdmin && apt.PatientID != callerID && apt.DoctorID != callerID {
		return nil, apperrors.Forbidden("you do not have access to this appointment")
	}
	return apt, nil
}

func (s *Service) ListAppointments(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, *model.Pagination, error) {
	apts, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	pagination := &model.Pagination{
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		TotalItems:  total,
	}
	return apts, pagination, nil
}

// CheckRelationship reports whether patient and doctor share any
// pending, confirmed or completed appointment. The messaging service
// uses it to gate direct messages.
func (s *Service) CheckRelationship(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	has, err := s.repo.HasRelationship(ctx, patientID, doctorID)
	if err != nil {
		return false, apperrors.Internal(err)
	}
	return has, nil
}

// GetStatistics aggregates a doctor's bookings per status, cached for a
// few minutes.
func (s *Service) GetStatistics(ctx context.Context, doctorID uuid.UUID) (*model.AppointmentStatistics, error) {
	if stats, ok := s.cache.GetStatistics(ctx, doctorID); ok {
		return stats, nil
	}

	stats, err := s.repo.Statistics(ctx, doctorID, time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.cache.SetStatistics(ctx, doctorID, stats)
	return stats, nil
}

func (s *Service) getOwnedByDoctor(ctx context.Context, id, doctorID uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.From(err)
	}
	if apt.DoctorID != doctorID {
		return nil, apperrors.Forbidden("you can only manage your own appointments")
	}
	return apt, nil
}

// transitionLost reloads the record after a guarded update matched no
// row: a concurrent writer got there first, so report the transition
// from the state that actually holds now.
func (s *Service) transitionLost(ctx context.Context, id uuid.UUID, target model.AppointmentStatus) error {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return apperrors.From(err)
	}
	return apperrors.InvalidStatusTransition(string(apt.Status), string(target))
}

// releaseSlot frees the slot held by the appointment. Failures are
// logged, not propagated: the status transition has already committed
// and release is retried from cleanup paths, never rolled back.
func (s *Service) releaseSlot(ctx context.Context, apt *model.Appointment) {
	if err := s.reservations.Release(ctx, apt.DoctorID, apt.Date, apt.Time); err != nil {
		s.logger.Error(err, "failed to release slot",
			"appointment_id", apt.ID.String(),
			"doctor_id", apt.DoctorID.String())
	}
}

func cancellableAt(apt *model.Appointment, now time.Time) bool {
	start := slotStart(apt.Date, apt.Time)
	return start.Sub(now) >= patientCancelCutoff
}

func slotStart(date time.Time, slotTime string) time.Time {
	parts := strings.SplitN(slotTime, ":", 2)
	if len(parts) != 2 {
		return date
	}
	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	return date.Add(time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute)
}

func transitionPayload(apt *model.Appointment, extra map[string]interface{}) map[string]interface{} {
	payload := map[string]interface{}{
		"appointment_id": apt.ID,
		"patient_id":     apt.PatientID,
		"doctor_id":      apt.DoctorID,
		"date":           apt.Date.Format("2006-01-02"),
		"time":           apt.Time,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}
