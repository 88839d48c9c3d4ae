package model

import (
	"time"

	"github.com/google/uuid"
)

// Slot is a single bookable time-of-day unit within a doctor's day.
// A booked slot always references the appointment occupying it; a free
// slot never does.
type Slot struct {
	Time          string     `json:"time" db:"slot_time"`
	IsBooked      bool       `json:"is_booked" db:"is_booked"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty" db:"appointment_id"`
}

// TimeSlotDay holds a doctor's full slot list for one calendar date.
// Unique per (doctor, date); never deleted, only marked unavailable.
type TimeSlotDay struct {
	ID           uuid.UUID `json:"id" db:"id"`
	DoctorID     uuid.UUID `json:"doctor_id" db:"doctor_id"`
	Date         time.Time `json:"date" db:"day"`
	Slots        []Slot    `json:"slots"`
	IsAvailable  bool      `json:"is_available" db:"is_available"`
	SpecialNotes string    `json:"special_notes,omitempty" db:"special_notes"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// FindSlot returns the slot at the given time, or nil.
func (d *TimeSlotDay) FindSlot(t string) *Slot {
	for i := range d.Slots {
		if d.Slots[i].Time == t {
			return &d.Slots[i]
		}
	}
	return nil
}

// SlotOpen reports whether the slot exists, is free and the day accepts
// bookings. Advisory only: the authoritative check is the conditional
// reservation write.
func (d *TimeSlotDay) SlotOpen(t string) bool {
	if !d.IsAvailable {
		return false
	}
	s := d.FindSlot(t)
	return s != nil && !s.IsBooked
}

type SlotInput struct {
	Time string `json:"time" binding:"required,slottime"`
}

type SetAvailabilityRequest struct {
	Date         string      `json:"date" binding:"required"`
	Slots        []SlotInput `json:"slots" binding:"required,min=1,dive"`
	IsAvailable  *bool       `json:"is_available"`
	SpecialNotes string      `json:"special_notes" binding:"max=1000"`
}

type BulkSetAvailabilityRequest struct {
	Availabilities []SetAvailabilityRequest `json:"availabilities" binding:"required,min=1,dive"`
	SkipExisting   *bool                    `json:"skip_existing"`
}

// BulkSetAvailabilityResult accounts per-date outcomes of a bulk upsert.
type BulkSetAvailabilityResult struct {
	Created int             `json:"created"`
	Updated int             `json:"updated"`
	Skipped int             `json:"skipped"`
	Errors  []BulkDateError `json:"errors,omitempty"`
}

type BulkDateError struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

// DayAvailability is the patient-facing projection of one day: only the
// free slots, with occupancy details stripped.
type DayAvailability struct {
	Date           time.Time `json:"date"`
	AvailableSlots []string  `json:"available_slots"`
}
