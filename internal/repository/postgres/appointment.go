package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/model"
	apperrors "github.com/esante/rdv-service/pkg/errors"
)

const appointmentColumns = `
	id, patient_id, doctor_id, appointment_date, appointment_time, status, reason, notes,
	is_referral, referred_by, referral_id,
	confirmed_at, rejected_at, rejection_reason,
	cancelled_at, cancelled_by, cancellation_reason, completed_at,
	is_rescheduled, rescheduled_by, rescheduled_at, previous_date, previous_time,
	reschedule_reason, reschedule_count,
	reschedule_requested_date, reschedule_requested_time, reschedule_request_reason,
	reschedule_requested_at, reschedule_request_status,
	created_at, updated_at
`

// appointmentRow flattens the nullable reschedule-request sub-record for
// sqlx scanning; the model keeps it as an optional struct.
type appointmentRow struct {
	ID        uuid.UUID `db:"id"`
	PatientID uuid.UUID `db:"patient_id"`
	DoctorID  uuid.UUID `db:"doctor_id"`
	Date      time.Time `db:"appointment_date"`
	Time      string    `db:"appointment_time"`
	Status    string    `db:"status"`
	Reason    string    `db:"reason"`
	Notes     string    `db:"notes"`

	IsReferral bool       `db:"is_referral"`
	ReferredBy *uuid.UUID `db:"referred_by"`
	ReferralID *uuid.UUID `db:"referral_id"`

	ConfirmedAt        *time.Time `db:"confirmed_at"`
	RejectedAt         *time.Time `db:"rejected_at"`
	RejectionReason    string     `db:"rejection_reason"`
	CancelledAt        *time.Time `db:"cancelled_at"`
	CancelledBy        *string    `db:"cancelled_by"`
	CancellationReason string     `db:"cancellation_reason"`
	CompletedAt        *time.Time `db:"completed_at"`

	IsRescheduled    bool       `db:"is_rescheduled"`
	RescheduledBy    *string    `db:"rescheduled_by"`
	RescheduledAt    *time.Time `db:"rescheduled_at"`
	PreviousDate     *time.Time `db:"previous_date"`
	PreviousTime     *string    `db:"previous_time"`
	RescheduleReason string     `db:"reschedule_reason"`
	RescheduleCount  int        `db:"reschedule_count"`

	ReqDate   *time.Time `db:"reschedule_requested_date"`
	ReqTime   *string    `db:"reschedule_requested_time"`
	ReqReason *string    `db:"reschedule_request_reason"`
	ReqAt     *time.Time `db:"reschedule_requested_at"`
	ReqStatus *string    `db:"reschedule_request_status"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row *appointmentRow) toModel() *model.Appointment {
	apt := &model.Appointment{
		ID:                 row.ID,
		PatientID:          row.PatientID,
		DoctorID:           row.DoctorID,
		Date:               row.Date,
		Time:               row.Time,
		Status:             model.AppointmentStatus(row.Status),
		Reason:             row.Reason,
		Notes:              row.Notes,
		IsReferral:         row.IsReferral,
		ReferredBy:         row.ReferredBy,
		ReferralID:         row.ReferralID,
		ConfirmedAt:        row.ConfirmedAt,
		RejectedAt:         row.RejectedAt,
		RejectionReason:    row.RejectionReason,
		CancelledAt:        row.CancelledAt,
		CancellationReason: row.CancellationReason,
		CompletedAt:        row.CompletedAt,
		IsRescheduled:      row.IsRescheduled,
		RescheduledAt:      row.RescheduledAt,
		PreviousDate:       row.PreviousDate,
		PreviousTime:       row.PreviousTime,
		RescheduleReason:   row.RescheduleReason,
		RescheduleCount:    row.RescheduleCount,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if row.CancelledBy != nil {
		actor := model.Actor(*row.CancelledBy)
		apt.CancelledBy = &actor
	}
	if row.RescheduledBy != nil {
		actor := model.Actor(*row.RescheduledBy)
		apt.RescheduledBy = &actor
	}
	if row.ReqStatus != nil && row.ReqDate != nil && row.ReqTime != nil {
		req := &model.RescheduleRequest{
			RequestedDate: *row.ReqDate,
			RequestedTime: *row.ReqTime,
			Status:        model.RescheduleRequestStatus(*row.ReqStatus),
		}
		if row.ReqReason != nil {
			req.Reason = *row.ReqReason
		}
		if row.ReqAt != nil {
			req.RequestedAt = *row.ReqAt
		}
		apt.RescheduleRequest = req
	}
	return apt
}

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, appointment_date, appointment_time,
			status, reason, notes, is_referral, referred_by, referral_id,
			confirmed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`
	now := time.Now()
	apt.CreatedAt = now
	apt.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		apt.ID,
		apt.PatientID,
		apt.DoctorID,
		apt.Date,
		apt.Time,
		apt.Status,
		apt.Reason,
		apt.Notes,
		apt.IsReferral,
		apt.ReferredBy,
		apt.ReferralID,
		apt.ConfirmedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var row appointmentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("appointment")
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return row.toModel(), nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	addArg := func(clause string, v interface{}) {
		where += fmt.Sprintf(clause, argCount)
		args = append(args, v)
		argCount++
	}

	if filters.PatientID != nil {
		addArg(" AND patient_id = $%d", *filters.PatientID)
	}
	if filters.DoctorID != nil {
		addArg(" AND doctor_id = $%d", *filters.DoctorID)
	}
	if filters.Status != nil {
		addArg(" AND status = $%d", *filters.Status)
	}
	if filters.Date != nil {
		addArg(" AND appointment_date = $%d", *filters.Date)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	order := " ORDER BY appointment_date ASC, appointment_time ASC"
	switch filters.TimeFilter {
	case "upcoming":
		addArg(" AND appointment_date >= $%d", today)
	case "past":
		addArg(" AND appointment_date < $%d", today)
		order = " ORDER BY appointment_date DESC, appointment_time DESC"
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM appointments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	query := "SELECT " + appointmentColumns + " FROM appointments" + where + order +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, (page-1)*limit)

	var rows []appointmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}

	out := make([]*model.Appointment, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, total, nil
}

func (r *appointmentRepository) ExistsActive(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time, slotTime string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND doctor_id = $2
			  AND appointment_date = $3 AND appointment_time = $4
			  AND status IN ('pending', 'confirmed')
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, patientID, doctorID, date, slotTime); err != nil {
		return false, fmt.Errorf("failed to check active appointment: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepository) HasRelationship(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND doctor_id = $2
			  AND status IN ('pending', 'confirmed', 'completed')
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, patientID, doctorID); err != nil {
		return false, fmt.Errorf("failed to check relationship: %w", err)
	}
	return exists, nil
}

// conditionalUpdate runs a guarded status mutation; false means the
// precondition no longer held when the write landed.
func (r *appointmentRepository) conditionalUpdate(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update appointment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *appointmentRepository) Confirm(ctx context.Context, id uuid.UUID, notes string) (bool, error) {
	query := `
		UPDATE appointments
		SET status = 'confirmed',
			confirmed_at = now(),
			notes = CASE WHEN $2 <> '' THEN $2 ELSE notes END,
			updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	return r.conditionalUpdate(ctx, query, id, notes)
}

func (r *appointmentRepository) Reject(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	query := `
		UPDATE appointments
		SET status = 'rejected',
			rejection_reason = $2,
			rejected_at = now(),
			updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	return r.conditionalUpdate(ctx, query, id, reason)
}

func (r *appointmentRepository) Cancel(ctx context.Context, id uuid.UUID, reason string, by model.Actor) (bool, error) {
	query := `
		UPDATE appointments
		SET status = 'cancelled',
			cancellation_reason = $2,
			cancelled_by = $3,
			cancelled_at = now(),
			updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
	`
	return r.conditionalUpdate(ctx, query, id, reason, string(by))
}

func (r *appointmentRepository) Complete(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE appointments
		SET status = 'completed', completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'confirmed'
	`
	return r.conditionalUpdate(ctx, query, id)
}

func (r *appointmentRepository) MarkNoShow(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE appointments
		SET status = 'no-show', updated_at = now()
		WHERE id = $1 AND status = 'confirmed'
	`
	return r.conditionalUpdate(ctx, query, id)
}

func (r *appointmentRepository) Reschedule(ctx context.Context, id uuid.UUID, oldDate time.Time, oldTime string, newDate time.Time, newTime string, by model.Actor, reason string, approveRequest bool) (bool, error) {
	// Guarded on the coordinates the caller read: a racing reschedule
	// that already moved the appointment makes this one fail instead of
	// both releasing the same original slot. Approving a patient request
	// keeps the sub-record with its outcome; a direct reschedule wipes
	// any outstanding one.
	query := `
		UPDATE appointments
		SET previous_date = appointment_date,
			previous_time = appointment_time,
			appointment_date = $2,
			appointment_time = $3,
			is_rescheduled = TRUE,
			rescheduled_by = $4,
			rescheduled_at = now(),
			reschedule_reason = $5,
			reschedule_count = reschedule_count + 1,
			reschedule_request_status = CASE WHEN $6 THEN 'approved' ELSE NULL END,
			reschedule_requested_date = CASE WHEN $6 THEN reschedule_requested_date ELSE NULL END,
			reschedule_requested_time = CASE WHEN $6 THEN reschedule_requested_time ELSE NULL END,
			reschedule_request_reason = CASE WHEN $6 THEN reschedule_request_reason ELSE NULL END,
			reschedule_requested_at   = CASE WHEN $6 THEN reschedule_requested_at ELSE NULL END,
			updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
		  AND appointment_date = $7 AND appointment_time = $8
	`
	return r.conditionalUpdate(ctx, query, id, newDate, newTime, string(by), reason, approveRequest, oldDate, oldTime)
}

func (r *appointmentRepository) SetRescheduleRequest(ctx context.Context, id uuid.UUID, req *model.RescheduleRequest) (bool, error) {
	// The guard on reschedule_request_status makes "at most one
	// outstanding proposal" hold even for concurrent proposals.
	query := `
		UPDATE appointments
		SET reschedule_requested_date = $2,
			reschedule_requested_time = $3,
			reschedule_request_reason = $4,
			reschedule_requested_at = $5,
			reschedule_request_status = 'pending',
			updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
		  AND (reschedule_request_status IS NULL OR reschedule_request_status <> 'pending')
	`
	return r.conditionalUpdate(ctx, query, id, req.RequestedDate, req.RequestedTime, req.Reason, req.RequestedAt)
}

func (r *appointmentRepository) RejectRescheduleRequest(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE appointments
		SET reschedule_request_status = 'rejected', updated_at = now()
		WHERE id = $1 AND reschedule_request_status = 'pending'
	`
	return r.conditionalUpdate(ctx, query, id)
}

func (r *appointmentRepository) Statistics(ctx context.Context, doctorID uuid.UUID, today time.Time) (*model.AppointmentStatistics, error) {
	query := `
		SELECT COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'confirmed') AS confirmed,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled,
			COUNT(*) FILTER (WHERE status = 'no-show') AS no_show,
			COUNT(*) FILTER (WHERE appointment_date = $2 AND status IN ('confirmed', 'completed')) AS today
		FROM appointments
		WHERE doctor_id = $1
	`
	var stats model.AppointmentStatistics
	if err := r.db.GetContext(ctx, &stats, query, doctorID, today); err != nil {
		return nil, fmt.Errorf("failed to load statistics: %w", err)
	}
	return &stats, nil
}
