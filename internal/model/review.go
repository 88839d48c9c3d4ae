package model

import (
	"time"

	"github.com/google/uuid"
)

// Review is a patient's post-visit rating of a completed appointment.
// One review per appointment; editable by its author for 24 hours.
type Review struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Rating        int       `db:"rating" json:"rating"`
	Comment       string    `db:"comment" json:"comment,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

type SubmitReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

type UpdateReviewRequest struct {
	Rating  *int    `json:"rating" binding:"omitempty,min=1,max=5"`
	Comment *string `json:"comment" binding:"omitempty,max=2000"`
}

// DoctorRatingStats is the aggregate published alongside reviews and
// emitted for the profile service to denormalize.
type DoctorRatingStats struct {
	AverageRating float64 `db:"average_rating" json:"average_rating"`
	TotalReviews  int     `db:"total_reviews" json:"total_reviews"`
}

// ReviewedAppointment pairs an optional review with whether the caller
// may still submit one.
type ReviewedAppointment struct {
	Review    *Review `json:"review"`
	CanReview bool    `json:"can_review"`
}
