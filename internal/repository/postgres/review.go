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

const reviewColumns = `
	id, appointment_id, patient_id, doctor_id, rating, comment, created_at, updated_at
`

func (r *reviewRepository) Create(ctx context.Context, review *model.Review) (bool, error) {
	query := `
		INSERT INTO reviews (id, appointment_id, patient_id, doctor_id, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (appointment_id) DO NOTHING
	`
	now := time.Now()
	review.CreatedAt = now
	review.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, query,
		review.ID,
		review.AppointmentID,
		review.PatientID,
		review.DoctorID,
		review.Rating,
		review.Comment,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to create review: %w", err)
	}
	return affected == 1, nil
}

func (r *reviewRepository) Get(ctx context.Context, id uuid.UUID) (*model.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	var review model.Review
	if err := r.db.GetContext(ctx, &review, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("review")
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &review, nil
}

func (r *reviewRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE appointment_id = $1`

	var review model.Review
	if err := r.db.GetContext(ctx, &review, query, appointmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("review")
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &review, nil
}

func (r *reviewRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, page, limit int) ([]*model.Review, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reviews WHERE doctor_id = $1`, doctorID); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	query := `SELECT ` + reviewColumns + `
		FROM reviews
		WHERE doctor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	reviews := []*model.Review{}
	if err := r.db.SelectContext(ctx, &reviews, query, doctorID, limit, (page-1)*limit); err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, total, nil
}

func (r *reviewRepository) Update(ctx context.Context, id uuid.UUID, rating int, comment string) error {
	query := `
		UPDATE reviews
		SET rating = $2, comment = $3, updated_at = now()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, rating, comment); err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	return nil
}

func (r *reviewRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return nil
}

func (r *reviewRepository) RatingStats(ctx context.Context, doctorID uuid.UUID) (*model.DoctorRatingStats, error) {
	query := `
		SELECT COALESCE(ROUND(AVG(rating)::numeric, 1), 0) AS average_rating,
			COUNT(*) AS total_reviews
		FROM reviews
		WHERE doctor_id = $1
	`
	var stats model.DoctorRatingStats
	if err := r.db.GetContext(ctx, &stats, query, doctorID); err != nil {
		return nil, fmt.Errorf("failed to load rating stats: %w", err)
	}
	return &stats, nil
}
