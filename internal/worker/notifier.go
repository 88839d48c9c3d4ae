package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/esante/rdv-service/internal/email"
	"github.com/esante/rdv-service/internal/service/event"
	"github.com/esante/rdv-service/pkg/logger"
	"github.com/esante/rdv-service/pkg/messaging"
)

// Notifier consumes scheduling events off the broker and forwards them
// to the front-desk inbox. User-facing notifications (push, in-app) are
// handled by the notification service downstream of the same channels.
type Notifier struct {
	broker messaging.Broker
	mailer *email.Mailer
	inbox  string
	logger *logger.Logger
}

func NewNotifier(broker messaging.Broker, mailer *email.Mailer, inbox string, logger *logger.Logger) *Notifier {
	return &Notifier{
		broker: broker,
		mailer: mailer,
		inbox:  inbox,
		logger: logger,
	}
}

var subjects = map[string]string{
	event.TypeAppointmentRequested:   "New appointment request",
	event.TypeAppointmentConfirmed:   "Appointment confirmed",
	event.TypeAppointmentRejected:    "Appointment rejected",
	event.TypeAppointmentCancelled:   "Appointment cancelled",
	event.TypeAppointmentCompleted:   "Appointment completed",
	event.TypeAppointmentNoShow:      "Patient did not show up",
	event.TypeAppointmentRescheduled: "Appointment rescheduled",
	event.TypeRescheduleRequested:    "Reschedule requested",
	event.TypeRescheduleRejected:     "Reschedule request declined",
	event.TypeReferralBooked:         "Referral appointment booked",
	event.TypeReviewCreated:          "New review received",
}

// Start subscribes to every notifiable channel and blocks until ctx is
// cancelled.
func (n *Notifier) Start(ctx context.Context) error {
	for eventType := range subjects {
		ch, err := n.broker.Subscribe(ctx, eventType)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
		}
		go n.consume(ctx, eventType, ch)
	}

	<-ctx.Done()
	return nil
}

func (n *Notifier) consume(ctx context.Context, eventType string, ch <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			if err := n.notify(eventType, raw); err != nil {
				n.logger.Error(err, "failed to send notification", "event_type", eventType)
			}
		}
	}
}

func (n *Notifier) notify(eventType string, raw []byte) error {
	var msg messaging.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	subject, ok := subjects[eventType]
	if !ok {
		return nil
	}

	body, err := json.MarshalIndent(msg.Payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render payload: %w", err)
	}

	return n.mailer.Send(n.inbox, subject, string(body))
}
