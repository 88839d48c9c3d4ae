package appointment

import (
	"github.com/esante/rdv-service/internal/model"
)

// transitions is the closed edge set of the appointment state machine.
// Anything not listed here is rejected before a write is attempted; the
// guarded updates in the repository enforce the same edges under
// concurrency.
var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending: {
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusRejected,
		model.AppointmentStatusCancelled,
	},
	model.AppointmentStatusConfirmed: {
		model.AppointmentStatusCancelled,
		model.AppointmentStatusCompleted,
		model.AppointmentStatusNoShow,
	},
}

func canTransition(from, to model.AppointmentStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// reschedulable reports whether the active (date, time) may still move.
func reschedulable(status model.AppointmentStatus) bool {
	return status == model.AppointmentStatusPending || status == model.AppointmentStatusConfirmed
}
