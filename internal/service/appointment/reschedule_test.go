package appointment

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esante/rdv-service/internal/model"
	"github.com/esante/rdv-service/internal/service/event"
	apperrors "github.com/esante/rdv-service/pkg/errors"
)

func TestRescheduleAppointment_Direct(t *testing.T) {
	ctx := context.Background()
	patientID := uuid.New()
	doctorID := uuid.New()
	oldDate := futureDate(7)
	newDate := futureDate(8)

	book := func(env *testEnv) *model.Appointment {
		env.cal.seedDay(doctorID, oldDate, "09:00")
		env.cal.seedDay(doctorID, newDate, "10:00", "11:00")
		apt, err := env.svc.RequestAppointment(ctx, patientID, &model.RequestAppointmentRequest{
			DoctorID: doctorID, Date: wireDate(oldDate), Time: "09:00",
		})
		require.NoError(t, err)
		return apt
	}

	t.Run("doctor moves the appointment and swaps the slots", func(t *testing.T) {
		env := newTestEnv(t)
		apt := book(env)

		moved, err := env.svc.RescheduleAppointment(ctx, apt.ID, doctorID, model.ActorDoctor, &model.RescheduleAppointmentRequest{
			NewDate: wireDate(newDate), NewTime: "10:00", Reason: "surgery overran",
		})
		require.NoError(t, err)

		assert.Equal(t, newDate, moved.Date)
		assert.Equal(t, "10:00", moved.Time)
		assert.True(t, moved.IsRescheduled)
		assert.Equal(t, 1, moved.RescheduleCount)
		require.NotNil(t, moved.PreviousDate)
		assert.Equal(t, oldDate, *moved.PreviousDate)
		require.NotNil(t, moved.PreviousTime)
		assert.Equal(t, "09:00", *moved.PreviousTime)

		assert.False(t, env.cal.slot(doctorID, oldDate, "09:00").IsBooked)
		newSlot := env.cal.slot(doctorID, newDate, "10:00")
		assert.True(t, newSlot.IsBooked)
		assert.Equal(t, apt.ID, *newSlot.AppointmentID)

		assert.Contains(t, env.outbox.eventTypes(), event.TypeAppointmentRescheduled)
	})

	t.Run("a full target slot leaves everything unchanged", func(t *testing.T) {
		env := newTestEnv(t)
		apt := book(env)

		// Occupy the target first.
		_, err := env.svc.RequestAppointment(ctx, uuid.New(), &model.RequestAppointmentRequest{
			DoctorID: doctorID, Date: wireDate(newDate), Time: "10:00",
		})
		require.NoError(t, err)

		_, err = env.svc.RescheduleAppointment(ctx, apt.ID, doctorID, model.ActorDoctor, &model.RescheduleAppointmentRequest{
			NewDate: wireDate(newDate), NewTime: "10:00",
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeSlotNotAvailable))

		current, err := env.svc.GetAppointment(ctx, apt.ID, doctorID, model.ActorDoctor)
		require.NoError(t, err)
		assert.Equal(t, oldDate, current.Date)
		assert.Equal(t, "09:00", current.Time)
		assert.False(t, current.IsRescheduled)
		assert.True(t, env.cal.slot(doctorID, oldDate, "09:00").IsBooked)
	})

	t.Run("patients cannot reschedule directly", func(t *testing.T) {
		env := newTestEnv(t)
		apt := book(env)

		_, err := env.svc.RescheduleAppointment(ctx, apt.ID, patientID, model.ActorPatient, &model.RescheduleAppointmentRequest{
			NewDate: wireDate(newDate), NewTime: "10:00",
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	t.Run("same slot is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		apt := book(env)

		_, err := env.svc.RescheduleAppointment(ctx, apt.ID, doctorID, model.ActorDoctor, &model.RescheduleAppointmentRequest{
			NewDate: wireDate(oldDate), NewTime: "09:00",
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	})

	t.Run("terminal appointments cannot move", func(t *testing.T) {
		env := newTestEnv(t)
		id := uuid.New()
		env.apts.put(&model.Appointment{
			ID: id, PatientID: patientID, DoctorID: doctorID,
			Date: oldDate, Time: "09:00", Status: model.AppointmentStatusCancelled,
		})
		env.cal.seedDay(doctorID, newDate, "10:00")

		_, err := env.svc.RescheduleAppointment(ctx, id, doctorID, model.ActorDoctor, &model.RescheduleAppointmentRequest{
			NewDate: wireDate(newDate), NewTime: "10:00",
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidStatusTransition))
	})

	t.Run("a writer holding stale coordinates loses", func(t *testing.T) {
		env := newTestEnv(t)
		apt := book(env)

		moved, err := env.svc.RescheduleAppointment(ctx, apt.ID, doctorID, model.ActorDoctor, &model.RescheduleAppointmentRequest{
			NewDate: wireDate(newDate), NewTime: "10:00",
		})
		require.NoError(t, err)

		// A second writer still carrying the pre-move coordinates must
		// fail the guarded update instead of moving the record again.
		ok, err := env.apts.Reschedule(ctx, apt.ID, oldDate, "09:00", newDate, "11:00", model.ActorDoctor, "", false)
		require.NoError(t, err)
		assert.False(t, ok)

		current, err := env.svc.GetAppointment(ctx, apt.ID, doctorID, model.ActorDoctor)
		require.NoError(t, err)
		assert.Equal(t, moved.Date, current.Date)
		assert.Equal(t, moved.Time, current.Time)
		assert.Equal(t, 1, current.RescheduleCount)
	})

	t.Run("racing reschedules never strand a slot", func(t *testing.T) {
		env := newTestEnv(t)
		apt := book(env)

		targets := []string{"10:00", "11:00"}
		var wg sync.WaitGroup
		for _, slotTime := range targets {
			wg.Add(1)
			go func(slotTime string) {
				defer wg.Done()
				env.svc.RescheduleAppointment(ctx, apt.ID, doctorID, model.ActorDoctor, &model.RescheduleAppointmentRequest{
					NewDate: wireDate(newDate), NewTime: slotTime,
				})
			}(slotTime)
		}
		wg.Wait()

		// Whatever the interleaving, exactly the slot the appointment
		// ended on is booked; the original and the losing target are free.
		current, err := env.svc.GetAppointment(ctx, apt.ID, doctorID, model.ActorDoctor)
		require.NoError(t, err)
		assert.False(t, env.cal.slot(doctorID, oldDate, "09:00").IsBooked)
		for _, slotTime := range targets {
			slot := env.cal.slot(doctorID, newDate, slotTime)
			if current.Date.Equal(newDate) && current.Time == slotTime {
				assert.True(t, slot.IsBooked)
				require.NotNil(t, slot.AppointmentID)
				assert.Equal(t, apt.ID, *slot.AppointmentID)
			} else {
				assert.False(t, slot.IsBooked, slotTime)
			}
		}
	})
}

func TestRequestReschedule(t *testing.T) {
	ctx := context.Background()
	patientID := uuid.New()
	doctorID := uuid.New()
	oldDate := futureDate(7)
	newDate := futureDate(8)

	book := func(env *testEnv) *model.Appointment {
		env.cal.seedDay(doctorID, oldDate, "09:00")
		env.cal.seedDay(doctorID, newDate, "10:00", "11:00")
		apt, err := env.svc.RequestAppointment(ctx, patientID, &model.RequestAppointmentRequest{
			DoctorID: doctorID, Date: wireDate(oldDate), Time: "09:00",
		})
		require.NoError(t, err)
		return apt
	}

	t.Run("records the request without touching slots", func(t *testing.T) {
		env := newTestEnv(t)
		apt := book(env)

		updated, err := env.svc.RequestReschedule(ctx, apt.ID, patientID, &model.RescheduleAppointmentRequest{
			NewDate: wireDate(newDate), NewTime: "10:00", Reason: "work trip",
		})
		require.NoError(t, err)

		require.NotNil(t, updated.RescheduleRequest)
		assert.Equal(t, model.RescheduleRequestPending, updated.RescheduleRequest.Status)
		assert.Equal(t, "10:00", updated.RescheduleRequest.RequestedTime)

		// Appointment and calendar are untouched until the doctor decides.
		assert.Equal(t, oldDate, updated.Date)
		assert.True(t, env.cal.slot(doctorID, oldDate, "09:00").IsBooked)
		assert.False(t, env.cal.slot(doctorID, newDate, "10:00").IsBooked)
	})

	t.Run("only one outstanding request at a time", func(t *testing.T) {
		env := newTestEnv(t)
		apt := book(env)

		_, err := env.svc.RequestReschedule(ctx, apt.ID, patientID, &model.RescheduleAppointmentRequest{
			NewDate: wireDate(newDate), NewTime: "10:00",
		})
		require.NoError(t, err)

		_, err = env.svc.RequestReschedule(ctx, apt.ID, patientID, &model.RescheduleAppointmentRequest{
			NewDate: wireDate(newDate), NewTime: "11:00",
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeReschedulePending))
	})

	t.Run("rejects a target slot that is not open", func(t *testing.T) {
		env := newTestEnv(t)
		apt := book(env)

		_, err := env.svc.RequestReschedule(ctx, apt.ID, patientID, &model.RescheduleAppointmentRequest{
			NewDate: wireDate(newDate), NewTime: "23:30",
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeSlotNotAvailable))
	})

	t.Run("only the booking patient may ask", func(t *testing.T) {
		env := newTestEnv(t)
		apt := book(env)

		_, err := env.svc.RequestReschedule(ctx, apt.ID, uuid.New(), &model.RescheduleAppointmentRequest{
			NewDate: wireDate(newDate), NewTime: "10:00",
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})
}

func TestApproveReschedule(t *testing.T) {
	ctx := context.Background()
	patientID := uuid.New()
	doctorID := uuid.New()
	oldDate := futureDate(7)
	newDate := futureDate(8)

	withRequest := func(env *testEnv) *model.Appointment {
		env.cal.seedDay(doctorID, oldDate, "09:00")
		env.cal.seedDay(doctorID, newDate, "10:00")
		apt, err := env.svc.RequestAppointment(ctx, patientID, &model.RequestAppointmentRequest{
			DoctorID: doctorID, Date: wireDate(oldDate), Time: "09:00",
		})
		require.NoError(t, err)
		_, err = env.svc.RequestReschedule(ctx, apt.ID, patientID, &model.RescheduleAppointmentRequest{
			NewDate: wireDate(newDate), NewTime: "10:00", Reason: "work trip",
		})
		require.NoError(t, err)
		return apt
	}

	t.Run("approval moves the appointment to the requested slot", func(t *testing.T) {
		env := newTestEnv(t)
		apt := withRequest(env)

		moved, err := env.svc.ApproveReschedule(ctx, apt.ID, doctorID)
		require.NoError(t, err)

		assert.Equal(t, newDate, moved.Date)
		assert.Equal(t, "10:00", moved.Time)
		require.NotNil(t, moved.RescheduleRequest)
		assert.Equal(t, model.RescheduleRequestApproved, moved.RescheduleRequest.Status)

		assert.False(t, env.cal.slot(doctorID, oldDate, "09:00").IsBooked)
		assert.True(t, env.cal.slot(doctorID, newDate, "10:00").IsBooked)
	})

	t.Run("approval fails when the requested slot was taken meanwhile", func(t *testing.T) {
		env := newTestEnv(t)
		apt := withRequest(env)

		_, err := env.svc.RequestAppointment(ctx, uuid.New(), &model.RequestAppointmentRequest{
			DoctorID: doctorID, Date: wireDate(newDate), Time: "10:00",
		})
		require.NoError(t, err)

		_, err = env.svc.ApproveReschedule(ctx, apt.ID, doctorID)
		assert.True(t, apperrors.Is(err, apperrors.CodeSlotNotAvailable))

		// The original booking still stands, and so does the request.
		current, getErr := env.svc.GetAppointment(ctx, apt.ID, doctorID, model.ActorDoctor)
		require.NoError(t, getErr)
		assert.Equal(t, oldDate, current.Date)
		assert.True(t, current.HasPendingReschedule())
	})

	t.Run("approval without a pending request fails", func(t *testing.T) {
		env := newTestEnv(t)
		env.cal.seedDay(doctorID, oldDate, "09:00")
		apt, err := env.svc.RequestAppointment(ctx, patientID, &model.RequestAppointmentRequest{
			DoctorID: doctorID, Date: wireDate(oldDate), Time: "09:00",
		})
		require.NoError(t, err)

		_, err = env.svc.ApproveReschedule(ctx, apt.ID, doctorID)
		assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	})
}

func TestRejectReschedule(t *testing.T) {
	ctx := context.Background()
	patientID := uuid.New()
	doctorID := uuid.New()
	oldDate := futureDate(7)
	newDate := futureDate(8)

	env := newTestEnv(t)
	env.cal.seedDay(doctorID, oldDate, "09:00")
	env.cal.seedDay(doctorID, newDate, "10:00")

	apt, err := env.svc.RequestAppointment(ctx, patientID, &model.RequestAppointmentRequest{
		DoctorID: doctorID, Date: wireDate(oldDate), Time: "09:00",
	})
	require.NoError(t, err)
	_, err = env.svc.RequestReschedule(ctx, apt.ID, patientID, &model.RescheduleAppointmentRequest{
		NewDate: wireDate(newDate), NewTime: "10:00",
	})
	require.NoError(t, err)

	updated, err := env.svc.RejectReschedule(ctx, apt.ID, doctorID)
	require.NoError(t, err)

	// Coordinates unchanged, request closed, and a new one may follow.
	assert.Equal(t, oldDate, updated.Date)
	assert.Equal(t, "09:00", updated.Time)
	require.NotNil(t, updated.RescheduleRequest)
	assert.Equal(t, model.RescheduleRequestRejected, updated.RescheduleRequest.Status)

	_, err = env.svc.RequestReschedule(ctx, apt.ID, patientID, &model.RescheduleAppointmentRequest{
		NewDate: wireDate(newDate), NewTime: "10:00",
	})
	assert.NoError(t, err)
}

func TestBookReferral(t *testing.T) {
	ctx := context.Background()
	referringDoctor := uuid.New()
	targetDoctor := uuid.New()
	patientID := uuid.New()
	date := futureDate(7)
	referralID := uuid.New()

	t.Run("books a confirmed appointment for the referred patient", func(t *testing.T) {
		env := newTestEnv(t)
		env.cal.seedDay(targetDoctor, date, "09:00")

		apt, err := env.svc.BookReferral(ctx, referringDoctor, &model.ReferralBookingRequest{
			PatientID:      patientID,
			TargetDoctorID: targetDoctor,
			Date:           wireDate(date),
			Time:           "09:00",
			ReferralID:     referralID,
		})
		require.NoError(t, err)

		assert.Equal(t, model.AppointmentStatusConfirmed, apt.Status)
		assert.True(t, apt.IsReferral)
		require.NotNil(t, apt.ReferredBy)
		assert.Equal(t, referringDoctor, *apt.ReferredBy)
		require.NotNil(t, apt.ReferralID)
		assert.Equal(t, referralID, *apt.ReferralID)
		assert.NotNil(t, apt.ConfirmedAt)

		slot := env.cal.slot(targetDoctor, date, "09:00")
		assert.True(t, slot.IsBooked)
		assert.Contains(t, env.outbox.eventTypes(), event.TypeReferralBooked)
	})

	t.Run("loses a full slot like any other booking", func(t *testing.T) {
		env := newTestEnv(t)
		env.cal.seedDay(targetDoctor, date, "09:00")

		_, err := env.svc.RequestAppointment(ctx, uuid.New(), &model.RequestAppointmentRequest{
			DoctorID: targetDoctor, Date: wireDate(date), Time: "09:00",
		})
		require.NoError(t, err)

		_, err = env.svc.BookReferral(ctx, referringDoctor, &model.ReferralBookingRequest{
			PatientID:      patientID,
			TargetDoctorID: targetDoctor,
			Date:           wireDate(date),
			Time:           "09:00",
			ReferralID:     referralID,
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeSlotNotAvailable))
	})

	t.Run("self-referral is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		env.cal.seedDay(referringDoctor, date, "09:00")

		_, err := env.svc.BookReferral(ctx, referringDoctor, &model.ReferralBookingRequest{
			PatientID:      patientID,
			TargetDoctorID: referringDoctor,
			Date:           wireDate(date),
			Time:           "09:00",
			ReferralID:     referralID,
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	})
}
