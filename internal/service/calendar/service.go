package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/model"
	"github.com/esante/rdv-service/internal/repository"
	"github.com/esante/rdv-service/internal/service/event"
	apperrors "github.com/esante/rdv-service/pkg/errors"
	"github.com/esante/rdv-service/pkg/logger"
)

const dateLayout = "2006-01-02"

// Service owns the per-doctor calendar: publishing availability and the
// read-only free-slot projection patients browse.
type Service struct {
	repo   repository.CalendarRepository
	cache  *Cache
	events *event.Service
	logger *logger.Logger
}

func NewService(repo repository.CalendarRepository, cache *Cache, events *event.Service, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		events: events,
		logger: logger,
	}
}

// ParseDate normalizes a wire date to UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, apperrors.Validation("date must be formatted as YYYY-MM-DD")
	}
	return d, nil
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

// SetAvailability is an idempotent replace-or-create of the doctor's
// slot list for one date. Re-publishing a day resets all of its slots
// to free; appointments already holding a removed slot are untouched
// and their eventual release becomes a no-op.
func (s *Service) SetAvailability(ctx context.Context, doctorID uuid.UUID, req *model.SetAvailabilityRequest) (*model.TimeSlotDay, error) {
	date, err := ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if date.Before(today()) {
		return nil, apperrors.Validation("cannot set availability for a past date")
	}

	slots, err := buildSlots(req.Slots)
	if err != nil {
		return nil, err
	}

	isAvailable := true
	if req.IsAvailable != nil {
		isAvailable = *req.IsAvailable
	}

	day := &model.TimeSlotDay{
		DoctorID:     doctorID,
		Date:         date,
		Slots:        slots,
		IsAvailable:  isAvailable,
		SpecialNotes: req.SpecialNotes,
	}
	if _, err := s.repo.UpsertDay(ctx, day); err != nil {
		return nil, apperrors.Internal(err)
	}

	s.cache.InvalidateDoctor(ctx, doctorID)
	s.events.Emit(ctx, event.TypeAvailabilitySet, map[string]interface{}{
		"doctor_id":   doctorID,
		"date":        req.Date,
		"slots_count": len(slots),
	})
	return day, nil
}

// BulkSetAvailability applies a batch of day templates. With
// skipExisting set, dates that already have a published day are left
// alone; failures are collected per date instead of aborting the batch.
func (s *Service) BulkSetAvailability(ctx context.Context, doctorID uuid.UUID, req *model.BulkSetAvailabilityRequest) (*model.BulkSetAvailabilityResult, error) {
	skipExisting := true
	if req.SkipExisting != nil {
		skipExisting = *req.SkipExisting
	}

	result := &model.BulkSetAvailabilityResult{}
	for _, availability := range req.Availabilities {
		date, err := ParseDate(availability.Date)
		if err != nil {
			result.Errors = append(result.Errors, model.BulkDateError{Date: availability.Date, Error: err.Error()})
			continue
		}
		if date.Before(today()) {
			result.Errors = append(result.Errors, model.BulkDateError{Date: availability.Date, Error: "date is in the past"})
			continue
		}

		if skipExisting {
			if _, err := s.repo.GetDay(ctx, doctorID, date); err == nil {
				result.Skipped++
				continue
			} else if !apperrors.Is(err, apperrors.CodeNotFound) {
				result.Errors = append(result.Errors, model.BulkDateError{Date: availability.Date, Error: err.Error()})
				continue
			}
		}

		slots, err := buildSlots(availability.Slots)
		if err != nil {
			result.Errors = append(result.Errors, model.BulkDateError{Date: availability.Date, Error: err.Error()})
			continue
		}

		isAvailable := true
		if availability.IsAvailable != nil {
			isAvailable = *availability.IsAvailable
		}

		day := &model.TimeSlotDay{
			DoctorID:     doctorID,
			Date:         date,
			Slots:        slots,
			IsAvailable:  isAvailable,
			SpecialNotes: availability.SpecialNotes,
		}
		created, err := s.repo.UpsertDay(ctx, day)
		if err != nil {
			result.Errors = append(result.Errors, model.BulkDateError{Date: availability.Date, Error: err.Error()})
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	s.cache.InvalidateDoctor(ctx, doctorID)
	s.events.Emit(ctx, event.TypeAvailabilitySet, map[string]interface{}{
		"doctor_id": doctorID,
		"created":   result.Created,
		"updated":   result.Updated,
		"skipped":   result.Skipped,
	})
	return result, nil
}

// GetDoctorAvailability returns the doctor's own days, bookings
// included, for the calendar management view.
func (s *Service) GetDoctorAvailability(ctx context.Context, doctorID uuid.UUID, from, to string) ([]*model.TimeSlotDay, error) {
	fromDate, toDate, err := parseRange(from, to)
	if err != nil {
		return nil, err
	}
	days, err := s.repo.ListDays(ctx, doctorID, fromDate, toDate, false)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return days, nil
}

// GetPublicAvailability is the patient-facing projection: free slots
// only, fully booked or unavailable days omitted, served from the
// short-lived cache. The result is advisory; the booking attempt
// re-checks inside the atomic reservation.
func (s *Service) GetPublicAvailability(ctx context.Context, doctorID uuid.UUID, from, to string) ([]model.DayAvailability, error) {
	fromDate, toDate, err := parseRange(from, to)
	if err != nil {
		return nil, err
	}

	if days, ok := s.cache.GetAvailability(ctx, doctorID, fromDate, toDate); ok {
		return days, nil
	}

	days, err := s.repo.ListDays(ctx, doctorID, fromDate, toDate, true)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	projection := make([]model.DayAvailability, 0, len(days))
	for _, day := range days {
		var free []string
		for _, slot := range day.Slots {
			if !slot.IsBooked {
				free = append(free, slot.Time)
			}
		}
		if len(free) == 0 {
			continue
		}
		projection = append(projection, model.DayAvailability{Date: day.Date, AvailableSlots: free})
	}

	s.cache.SetAvailability(ctx, doctorID, fromDate, toDate, projection)
	return projection, nil
}

// GetDay exposes raw day lookup for internal collaborators.
func (s *Service) GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.TimeSlotDay, error) {
	return s.repo.GetDay(ctx, doctorID, date)
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	if from == "" && to == "" {
		start := today()
		return start, start.AddDate(0, 0, 30), nil
	}
	fromDate, err := ParseDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	toDate, err := ParseDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if toDate.Before(fromDate) {
		return time.Time{}, time.Time{}, apperrors.Validation("end date must not precede start date")
	}
	return fromDate, toDate, nil
}

func buildSlots(inputs []model.SlotInput) ([]model.Slot, error) {
	slots := make([]model.Slot, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.Time] {
			return nil, apperrors.Validation("duplicate slot time: " + in.Time)
		}
		seen[in.Time] = true
		slots = append(slots, model.Slot{Time: in.Time})
	}
	return slots, nil
}
