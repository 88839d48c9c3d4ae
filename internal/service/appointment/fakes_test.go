package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/model"
	apperrors "github.com/esante/rdv-service/pkg/errors"
)

// The fakes reproduce the store's guarded-update semantics under a
// mutex: every conditional mutation checks its precondition and the
// write atomically, which is exactly what the conditional SQL updates
// give the real repositories.

type fakeCalendarRepo struct {
	mu   sync.Mutex
	days map[string]*model.TimeSlotDay
}

func newFakeCalendarRepo() *fakeCalendarRepo {
	return &fakeCalendarRepo{days: make(map[string]*model.TimeSlotDay)}
}

func dayKey(doctorID uuid.UUID, date time.Time) string {
	return doctorID.String() + "|" + date.Format("2006-01-02")
}

func copyDay(day *model.TimeSlotDay) *model.TimeSlotDay {
	out := *day
	out.Slots = make([]model.Slot, len(day.Slots))
	copy(out.Slots, day.Slots)
	return &out
}

func (r *fakeCalendarRepo) seedDay(doctorID uuid.UUID, date time.Time, slotTimes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := &model.TimeSlotDay{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Date:        date,
		IsAvailable: true,
	}
	for _, t := range slotTimes {
		day.Slots = append(day.Slots, model.Slot{Time: t})
	}
	r.days[dayKey(doctorID, date)] = day
}

func (r *fakeCalendarRepo) slot(doctorID uuid.UUID, date time.Time, slotTime string) *model.Slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	day, ok := r.days[dayKey(doctorID, date)]
	if !ok {
		return nil
	}
	s := day.FindSlot(slotTime)
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

func (r *fakeCalendarRepo) UpsertDay(ctx context.Context, day *model.TimeSlotDay) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := dayKey(day.DoctorID, day.Date)
	_, exists := r.days[key]
	stored := copyDay(day)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	for i := range stored.Slots {
		stored.Slots[i].IsBooked = false
		stored.Slots[i].AppointmentID = nil
	}
	r.days[key] = stored
	return !exists, nil
}

func (r *fakeCalendarRepo) GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.TimeSlotDay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	day, ok := r.days[dayKey(doctorID, date)]
	if !ok {
		return nil, apperrors.NotFound("availability for this date")
	}
	return copyDay(day), nil
}

func (r *fakeCalendarRepo) ListDays(ctx context.Context, doctorID uuid.UUID, from, to time.Time, onlyAvailable bool) ([]*model.TimeSlotDay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.TimeSlotDay
	for _, day := range r.days {
		if day.DoctorID != doctorID || day.Date.Before(from) || day.Date.After(to) {
			continue
		}
		if onlyAvailable && !day.IsAvailable {
			continue
		}
		out = append(out, copyDay(day))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *fakeCalendarRepo) MarkBooked(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string, appointmentID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	day, ok := r.days[dayKey(doctorID, date)]
	if !ok || !day.IsAvailable {
		return false, nil
	}
	slot := day.FindSlot(slotTime)
	if slot == nil || slot.IsBooked {
		return false, nil
	}
	slot.IsBooked = true
	id := appointmentID
	slot.AppointmentID = &id
	return true, nil
}

func (r *fakeCalendarRepo) MarkFree(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	day, ok := r.days[dayKey(doctorID, date)]
	if !ok {
		return nil
	}
	if slot := day.FindSlot(slotTime); slot != nil {
		slot.IsBooked = false
		slot.AppointmentID = nil
	}
	return nil
}

type fakeAppointmentRepo struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*model.Appointment
	createErr    error
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{appointments: make(map[uuid.UUID]*model.Appointment)}
}

func copyAppointment(apt *model.Appointment) *model.Appointment {
	out := *apt
	if apt.RescheduleRequest != nil {
		req := *apt.RescheduleRequest
		out.RescheduleRequest = &req
	}
	return &out
}

func (r *fakeAppointmentRepo) put(apt *model.Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[apt.ID] = copyAppointment(apt)
}

func (r *fakeAppointmentRepo) Create(ctx context.Context, apt *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	now := time.Now()
	apt.CreatedAt = now
	apt.UpdatedAt = now
	r.appointments[apt.ID] = copyAppointment(apt)
	return nil
}

func (r *fakeAppointmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok {
		return nil, apperrors.NotFound("appointment")
	}
	return copyAppointment(apt), nil
}

func (r *fakeAppointmentRepo) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Appointment
	for _, apt := range r.appointments {
		if filters.PatientID != nil && apt.PatientID != *filters.PatientID {
			continue
		}
		if filters.DoctorID != nil && apt.DoctorID != *filters.DoctorID {
			continue
		}
		if filters.Status != nil && apt.Status != *filters.Status {
			continue
		}
		if filters.Date != nil && !apt.Date.Equal(*filters.Date) {
			continue
		}
		out = append(out, copyAppointment(apt))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, len(out), nil
}

func (r *fakeAppointmentRepo) ExistsActive(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time, slotTime string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, apt := range r.appointments {
		if apt.PatientID == patientID && apt.DoctorID == doctorID &&
			apt.Date.Equal(date) && apt.Time == slotTime &&
			(apt.Status == model.AppointmentStatusPending || apt.Status == model.AppointmentStatusConfirmed) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAppointmentRepo) HasRelationship(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, apt := range r.appointments {
		if apt.PatientID != patientID || apt.DoctorID != doctorID {
			continue
		}
		switch apt.Status {
		case model.AppointmentStatusPending, model.AppointmentStatusConfirmed, model.AppointmentStatusCompleted:
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAppointmentRepo) Confirm(ctx context.Context, id uuid.UUID, notes string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok || apt.Status != model.AppointmentStatusPending {
		return false, nil
	}
	now := time.Now()
	apt.Status = model.AppointmentStatusConfirmed
	apt.ConfirmedAt = &now
	if notes != "" {
		apt.Notes = notes
	}
	return true, nil
}

func (r *fakeAppointmentRepo) Reject(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok || apt.Status != model.AppointmentStatusPending {
		return false, nil
	}
	now := time.Now()
	apt.Status = model.AppointmentStatusRejected
	apt.RejectedAt = &now
	apt.RejectionReason = reason
	return true, nil
}

func (r *fakeAppointmentRepo) Cancel(ctx context.Context, id uuid.UUID, reason string, by model.Actor) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok {
		return false, nil
	}
	if apt.Status != model.AppointmentStatusPending && apt.Status != model.AppointmentStatusConfirmed {
		return false, nil
	}
	now := time.Now()
	actor := by
	apt.Status = model.AppointmentStatusCancelled
	apt.CancelledAt = &now
	apt.CancelledBy = &actor
	apt.CancellationReason = reason
	return true, nil
}

func (r *fakeAppointmentRepo) Complete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok || apt.Status != model.AppointmentStatusConfirmed {
		return false, nil
	}
	now := time.Now()
	apt.Status = model.AppointmentStatusCompleted
	apt.CompletedAt = &now
	return true, nil
}

func (r *fakeAppointmentRepo) MarkNoShow(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok || apt.Status != model.AppointmentStatusConfirmed {
		return false, nil
	}
	apt.Status = model.AppointmentStatusNoShow
	return true, nil
}

func (r *fakeAppointmentRepo) Reschedule(ctx context.Context, id uuid.UUID, oldDate time.Time, oldTime string, newDate time.Time, newTime string, by model.Actor, reason string, approveRequest bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok {
		return false, nil
	}
	if apt.Status != model.AppointmentStatusPending && apt.Status != model.AppointmentStatusConfirmed {
		return false, nil
	}
	if !apt.Date.Equal(oldDate) || apt.Time != oldTime {
		return false, nil
	}
	now := time.Now()
	prevDate := apt.Date
	prevTime := apt.Time
	actor := by
	apt.PreviousDate = &prevDate
	apt.PreviousTime = &prevTime
	apt.Date = newDate
	apt.Time = newTime
	apt.IsRescheduled = true
	apt.RescheduledBy = &actor
	apt.RescheduledAt = &now
	apt.RescheduleReason = reason
	apt.RescheduleCount++
	if approveRequest {
		if apt.RescheduleRequest != nil {
			apt.RescheduleRequest.Status = model.RescheduleRequestApproved
		}
	} else {
		apt.RescheduleRequest = nil
	}
	return true, nil
}

func (r *fakeAppointmentRepo) SetRescheduleRequest(ctx context.Context, id uuid.UUID, req *model.RescheduleRequest) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok {
		return false, nil
	}
	if apt.Status != model.AppointmentStatusPending && apt.Status != model.AppointmentStatusConfirmed {
		return false, nil
	}
	if apt.HasPendingReschedule() {
		return false, nil
	}
	stored := *req
	stored.Status = model.RescheduleRequestPending
	apt.RescheduleRequest = &stored
	return true, nil
}

func (r *fakeAppointmentRepo) RejectRescheduleRequest(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apt, ok := r.appointments[id]
	if !ok || !apt.HasPendingReschedule() {
		return false, nil
	}
	apt.RescheduleRequest.Status = model.RescheduleRequestRejected
	return true, nil
}

func (r *fakeAppointmentRepo) Statistics(ctx context.Context, doctorID uuid.UUID, today time.Time) (*model.AppointmentStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &model.AppointmentStatistics{}
	for _, apt := range r.appointments {
		if apt.DoctorID != doctorID {
			continue
		}
		stats.Total++
		switch apt.Status {
		case model.AppointmentStatusPending:
			stats.Pending++
		case model.AppointmentStatusConfirmed:
			stats.Confirmed++
		case model.AppointmentStatusCompleted:
			stats.Completed++
		case model.AppointmentStatusCancelled:
			stats.Cancelled++
		case model.AppointmentStatusNoShow:
			stats.NoShow++
		}
		if apt.Date.Equal(today) &&
			(apt.Status == model.AppointmentStatusConfirmed || apt.Status == model.AppointmentStatusCompleted) {
			stats.Today++
		}
	}
	return stats, nil
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func (r *fakeOutboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeOutboxRepo) GetPendingWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error { return nil }

func (r *fakeOutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return nil
}

func (r *fakeOutboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeOutboxRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}
