package review

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/model"
	"github.com/esante/rdv-service/internal/repository"
	"github.com/esante/rdv-service/internal/service/event"
	apperrors "github.com/esante/rdv-service/pkg/errors"
	"github.com/esante/rdv-service/pkg/logger"
)

// Authors may correct or withdraw a review for this long after
// submitting it.
const editWindow = 24 * time.Hour

// AppointmentSource is the slice of the appointment store reviews need:
// ownership and completion checks before accepting a review.
type AppointmentSource interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
}

// Service owns post-visit reviews. Every rating mutation re-aggregates
// the doctor's average and emits it for the profile service to
// denormalize.
type Service struct {
	repo         repository.ReviewRepository
	appointments AppointmentSource
	events       *event.Service
	logger       *logger.Logger
}

func NewService(repo repository.ReviewRepository, appointments AppointmentSource, events *event.Service, logger *logger.Logger) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		events:       events,
		logger:       logger,
	}
}

// SubmitReview accepts a patient's rating of their own completed
// appointment. At most one review per appointment; the unique
// constraint decides duplicates, not a racy pre-check.
func (s *Service) SubmitReview(ctx context.Context, appointmentID, patientID uuid.UUID, req *model.SubmitReviewRequest) (*model.Review, *model.DoctorRatingStats, error) {
	apt, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		return nil, nil, apperrors.From(err)
	}
	if apt.PatientID != patientID {
		return nil, nil, apperrors.Forbidden("you can only review your own appointments")
	}
	if apt.Status != model.AppointmentStatusCompleted {
		return nil, nil, apperrors.Validation("only completed appointments can be reviewed")
	}

	review := &model.Review{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		PatientID:     patientID,
		DoctorID:      apt.DoctorID,
		Rating:        req.Rating,
		Comment:       strings.TrimSpace(req.Comment),
	}
	created, err := s.repo.Create(ctx, review)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	if !created {
		return nil, nil, apperrors.Validation("this appointment has already been reviewed")
	}

	stats, err := s.repo.RatingStats(ctx, apt.DoctorID)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	s.events.Emit(ctx, event.TypeReviewCreated, map[string]interface{}{
		"review_id":      review.ID,
		"appointment_id": appointmentID,
		"doctor_id":      apt.DoctorID,
		"patient_id":     patientID,
		"rating":         review.Rating,
		"has_comment":    review.Comment != "",
	})
	s.emitRatingUpdated(ctx, apt.DoctorID, stats)
	return review, stats, nil
}

// GetDoctorReviews is the public listing, newest first, with the
// aggregate alongside.
func (s *Service) GetDoctorReviews(ctx context.Context, doctorID uuid.UUID, page, limit int) ([]*model.Review, *model.Pagination, *model.DoctorRatingStats, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	reviews, total, err := s.repo.ListByDoctor(ctx, doctorID, page, limit)
	if err != nil {
		return nil, nil, nil, apperrors.Internal(err)
	}
	stats, err := s.repo.RatingStats(ctx, doctorID)
	if err != nil {
		return nil, nil, nil, apperrors.Internal(err)
	}

	pagination := &model.Pagination{
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		TotalItems:  total,
	}
	return reviews, pagination, stats, nil
}

// GetAppointmentReview returns the review for one appointment, visible
// to either party. A missing review is not an error; the result says
// whether the caller may still submit one.
func (s *Service) GetAppointmentReview(ctx context.Context, appointmentID, callerID uuid.UUID, role model.Actor) (*model.ReviewedAppointment, error) {
	apt, err := s.appointments.Get(ctx, appointmentID)
	if err != nil {
		return nil, apperrors.From(err)
	}

	isPatient := role == model.ActorPatient && apt.PatientID == callerID
	isDoctor := role == model.ActorDoctor && apt.DoctorID == callerID
	if !isPatient && !isDoctor && role != model.ActorAdmin {
		return nil, apperrors.Forbidden("you do not have access to this review")
	}

	review, err := s.repo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeNotFound) {
			return &model.ReviewedAppointment{
				CanReview: isPatient && apt.Status == model.AppointmentStatusCompleted,
			}, nil
		}
		return nil, apperrors.From(err)
	}
	return &model.ReviewedAppointment{Review: review}, nil
}

// UpdateReview lets the author amend rating or comment within the edit
// window.
func (s *Service) UpdateReview(ctx context.Context, id, patientID uuid.UUID, req *model.UpdateReviewRequest) (*model.Review, *model.DoctorRatingStats, error) {
	review, err := s.getOwned(ctx, id, patientID)
	if err != nil {
		return nil, nil, err
	}

	rating := review.Rating
	if req.Rating != nil {
		rating = *req.Rating
	}
	comment := review.Comment
	if req.Comment != nil {
		comment = strings.TrimSpace(*req.Comment)
	}

	if err := s.repo.Update(ctx, id, rating, comment); err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	stats, err := s.repo.RatingStats(ctx, review.DoctorID)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	s.emitRatingUpdated(ctx, review.DoctorID, stats)

	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, apperrors.From(err)
	}
	return updated, stats, nil
}

// DeleteReview withdraws the author's review within the edit window.
func (s *Service) DeleteReview(ctx context.Context, id, patientID uuid.UUID) (*model.DoctorRatingStats, error) {
	review, err := s.getOwned(ctx, id, patientID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, apperrors.Internal(err)
	}

	stats, err := s.repo.RatingStats(ctx, review.DoctorID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.emitRatingUpdated(ctx, review.DoctorID, stats)
	return stats, nil
}

func (s *Service) getOwned(ctx context.Context, id, patientID uuid.UUID) (*model.Review, error) {
	review, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperrors.From(err)
	}
	if review.PatientID != patientID {
		return nil, apperrors.Forbidden("you can only edit your own reviews")
	}
	if time.Since(review.CreatedAt) > editWindow {
		return nil, apperrors.Validation("reviews can only be changed within 24 hours of submission")
	}
	return review, nil
}

func (s *Service) emitRatingUpdated(ctx context.Context, doctorID uuid.UUID, stats *model.DoctorRatingStats) {
	s.events.Emit(ctx, event.TypeDoctorRatingUpdated, map[string]interface{}{
		"doctor_id":      doctorID,
		"average_rating": stats.AverageRating,
		"total_reviews":  stats.TotalReviews,
	})
}
