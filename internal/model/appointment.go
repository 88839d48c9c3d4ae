package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusRejected  AppointmentStatus = "rejected"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusNoShow    AppointmentStatus = "no-show"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusRejected, AppointmentStatusCancelled,
		AppointmentStatusCompleted, AppointmentStatusNoShow:
		return true
	}
	return false
}

// Actor identifies which party performed an action on an appointment.
type Actor string

const (
	ActorPatient Actor = "patient"
	ActorDoctor  Actor = "doctor"
	ActorAdmin   Actor = "admin"
)

type RescheduleRequestStatus string

const (
	RescheduleRequestPending  RescheduleRequestStatus = "pending"
	RescheduleRequestApproved RescheduleRequestStatus = "approved"
	RescheduleRequestRejected RescheduleRequestStatus = "rejected"
)

// RescheduleRequest is a patient-proposed schedule change awaiting the
// doctor's decision. An appointment holds at most one.
type RescheduleRequest struct {
	RequestedDate time.Time               `json:"requested_date"`
	RequestedTime string                  `json:"requested_time"`
	Reason        string                  `json:"reason,omitempty"`
	RequestedAt   time.Time               `json:"requested_at"`
	Status        RescheduleRequestStatus `json:"status"`
}

// Appointment is the source of truth for what patient and doctor agreed.
// Terminal appointments are kept for audit and statistics, never deleted.
type Appointment struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`

	Date time.Time `json:"date"`
	Time string    `json:"time"`

	Status AppointmentStatus `json:"status"`
	Reason string            `json:"reason,omitempty"`
	Notes  string            `json:"notes,omitempty"`

	IsReferral bool       `json:"is_referral"`
	ReferredBy *uuid.UUID `json:"referred_by,omitempty"`
	ReferralID *uuid.UUID `json:"referral_id,omitempty"`

	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	RejectedAt         *time.Time `json:"rejected_at,omitempty"`
	RejectionReason    string     `json:"rejection_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *Actor     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`

	IsRescheduled    bool       `json:"is_rescheduled"`
	RescheduledBy    *Actor     `json:"rescheduled_by,omitempty"`
	RescheduledAt    *time.Time `json:"rescheduled_at,omitempty"`
	PreviousDate     *time.Time `json:"previous_date,omitempty"`
	PreviousTime     *string    `json:"previous_time,omitempty"`
	RescheduleReason string     `json:"reschedule_reason,omitempty"`
	RescheduleCount  int        `json:"reschedule_count"`

	RescheduleRequest *RescheduleRequest `json:"reschedule_request,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPendingReschedule reports whether a patient reschedule proposal is
// awaiting the doctor's decision.
func (a *Appointment) HasPendingReschedule() bool {
	return a.RescheduleRequest != nil && a.RescheduleRequest.Status == RescheduleRequestPending
}

type RequestAppointmentRequest struct {
	DoctorID uuid.UUID `json:"doctor_id" binding:"required"`
	Date     string    `json:"date" binding:"required"`
	Time     string    `json:"time" binding:"required,slottime"`
	Reason   string    `json:"reason" binding:"max=1000"`
}

type ConfirmAppointmentRequest struct {
	Notes string `json:"notes" binding:"max=1000"`
}

type RejectAppointmentRequest struct {
	RejectionReason string `json:"rejection_reason" binding:"required,max=1000"`
}

type CancelAppointmentRequest struct {
	CancellationReason string `json:"cancellation_reason" binding:"max=1000"`
}

type RescheduleAppointmentRequest struct {
	NewDate string `json:"new_date" binding:"required"`
	NewTime string `json:"new_time" binding:"required,slottime"`
	Reason  string `json:"reason" binding:"max=1000"`
}

type ReferralBookingRequest struct {
	PatientID      uuid.UUID `json:"patient_id" binding:"required"`
	TargetDoctorID uuid.UUID `json:"target_doctor_id" binding:"required"`
	Date           string    `json:"date" binding:"required"`
	Time           string    `json:"time" binding:"required,slottime"`
	ReferralID     uuid.UUID `json:"referral_id" binding:"required"`
	Notes          string    `json:"notes" binding:"max=1000"`
}

// AppointmentFilters narrows list queries for patients, doctors and admins.
type AppointmentFilters struct {
	PatientID  *uuid.UUID
	DoctorID   *uuid.UUID
	Status     *AppointmentStatus
	Date       *time.Time
	TimeFilter string // "", "upcoming" or "past"
	Page       int
	Limit      int
}

// AppointmentStatistics aggregates a doctor's bookings per status.
type AppointmentStatistics struct {
	Total     int `json:"total" db:"total"`
	Pending   int `json:"pending" db:"pending"`
	Confirmed int `json:"confirmed" db:"confirmed"`
	Completed int `json:"completed" db:"completed"`
	Cancelled int `json:"cancelled" db:"cancelled"`
	NoShow    int `json:"no_show" db:"no_show"`
	Today     int `json:"today" db:"today"`
}

type Pagination struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	TotalItems  int `json:"total_items"`
}
