package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/esante/rdv-service/internal/model"
	apperrors "github.com/esante/rdv-service/pkg/errors"
)

func (r *calendarRepository) UpsertDay(ctx context.Context, day *model.TimeSlotDay) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	day.UpdatedAt = now

	// xmax = 0 only holds for freshly inserted rows, which tells a create
	// apart from a replace.
	query := `
		INSERT INTO time_slot_days (id, doctor_id, day, is_available, special_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (doctor_id, day) DO UPDATE
		SET is_available = EXCLUDED.is_available,
			special_notes = EXCLUDED.special_notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0) AS inserted
	`
	var (
		dayID    uuid.UUID
		inserted bool
	)
	err = tx.QueryRowxContext(ctx, query,
		uuid.New(), day.DoctorID, day.Date, day.IsAvailable, day.SpecialNotes, now,
	).Scan(&dayID, &inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert day: %w", err)
	}
	day.ID = dayID
	if inserted {
		day.CreatedAt = now
	}

	// Replacing the slot list drops any occupancy: a re-published day
	// starts over with every slot free.
	if _, err := tx.ExecContext(ctx, `DELETE FROM time_slots WHERE day_id = $1`, dayID); err != nil {
		return false, fmt.Errorf("failed to clear slots: %w", err)
	}

	insertSlot := `
		INSERT INTO time_slots (id, day_id, slot_time, is_booked, appointment_id)
		VALUES ($1, $2, $3, FALSE, NULL)
	`
	for i := range day.Slots {
		day.Slots[i].IsBooked = false
		day.Slots[i].AppointmentID = nil
		if _, err := tx.ExecContext(ctx, insertSlot, uuid.New(), dayID, day.Slots[i].Time); err != nil {
			return false, fmt.Errorf("failed to insert slot %q: %w", day.Slots[i].Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit day upsert: %w", err)
	}
	return inserted, nil
}

func (r *calendarRepository) GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.TimeSlotDay, error) {
	query := `
		SELECT id, doctor_id, day, is_available, special_notes, created_at, updated_at
		FROM time_slot_days
		WHERE doctor_id = $1 AND day = $2
	`
	var day model.TimeSlotDay
	if err := r.db.GetContext(ctx, &day, query, doctorID, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("availability for this date")
		}
		return nil, fmt.Errorf("failed to get day: %w", err)
	}

	slots, err := r.loadSlots(ctx, []uuid.UUID{day.ID})
	if err != nil {
		return nil, err
	}
	day.Slots = slots[day.ID]
	return &day, nil
}

func (r *calendarRepository) ListDays(ctx context.Context, doctorID uuid.UUID, from, to time.Time, onlyAvailable bool) ([]*model.TimeSlotDay, error) {
	query := `
		SELECT id, doctor_id, day, is_available, special_notes, created_at, updated_at
		FROM time_slot_days
		WHERE doctor_id = $1 AND day >= $2 AND day <= $3
	`
	if onlyAvailable {
		query += " AND is_available"
	}
	query += " ORDER BY day ASC"

	var days []*model.TimeSlotDay
	if err := r.db.SelectContext(ctx, &days, query, doctorID, from, to); err != nil {
		return nil, fmt.Errorf("failed to list days: %w", err)
	}
	if len(days) == 0 {
		return days, nil
	}

	ids := make([]uuid.UUID, len(days))
	for i, d := range days {
		ids[i] = d.ID
	}
	slots, err := r.loadSlots(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		d.Slots = slots[d.ID]
	}
	return days, nil
}

type slotRow struct {
	DayID uuid.UUID `db:"day_id"`
	model.Slot
}

func (r *calendarRepository) loadSlots(ctx context.Context, dayIDs []uuid.UUID) (map[uuid.UUID][]model.Slot, error) {
	query, args, err := sqlx.In(`
		SELECT day_id, slot_time, is_booked, appointment_id
		FROM time_slots
		WHERE day_id IN (?)
		ORDER BY slot_time ASC
	`, dayIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build slot query: %w", err)
	}

	var rows []slotRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load slots: %w", err)
	}

	out := make(map[uuid.UUID][]model.Slot, len(dayIDs))
	for _, row := range rows {
		out[row.DayID] = append(out[row.DayID], row.Slot)
	}
	return out, nil
}

// MarkBooked is the conditional write the whole engine leans on: of N
// concurrent attempts on the same slot exactly one sees is_booked = FALSE
// at write time and flips it.
func (r *calendarRepository) MarkBooked(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string, appointmentID uuid.UUID) (bool, error) {
	query := `
		UPDATE time_slots s
		SET is_booked = TRUE, appointment_id = $4
		FROM time_slot_days d
		WHERE s.day_id = d.id
		  AND d.doctor_id = $1
		  AND d.day = $2
		  AND s.slot_time = $3
		  AND d.is_available
		  AND s.is_booked = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, doctorID, date, slotTime, appointmentID)
	if err != nil {
		return false, fmt.Errorf("failed to book slot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *calendarRepository) MarkFree(ctx context.Context, doctorID uuid.UUID, date time.Time, slotTime string) error {
	query := `
		UPDATE time_slots s
		SET is_booked = FALSE, appointment_id = NULL
		FROM time_slot_days d
		WHERE s.day_id = d.id
		  AND d.doctor_id = $1
		  AND d.day = $2
		  AND s.slot_time = $3
	`
	if _, err := r.db.ExecContext(ctx, query, doctorID, date, slotTime); err != nil {
		return fmt.Errorf("failed to free slot: %w", err)
	}
	return nil
}
