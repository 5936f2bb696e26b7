package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medgrid/appointment-pipeline/internal/appointment"
	"github.com/medgrid/appointment-pipeline/internal/bus"
)

// CompletionStore advances an appointment to completed.
type CompletionStore interface {
	CompleteAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// Notification consumes completion events and flips the matching
// appointment's status.
type Notification struct {
	store CompletionStore
	log   *zap.Logger
}

func NewNotification(store CompletionStore, log *zap.Logger) *Notification {
	return &Notification{store: store, log: log}
}

// HandleMessage extracts the appointment id from one completion event and
// issues the status update. A missing appointment is a non-fatal miss: it is
// logged and the message is acknowledged so the queue does not redeliver it.
func (p *Notification) HandleMessage(ctx context.Context, msg bus.Message) error {
	raw, err := bus.ExtractAppointmentID(msg.Body)
	if err != nil {
		return fmt.Errorf("extract appointment id: %w", err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse appointment id %q: %w", raw, err)
	}

	appt, err := p.store.CompleteAppointment(ctx, id)
	if errors.Is(err, appointment.ErrAppointmentNotFound) {
		p.log.Warn("no appointment found for completion event",
			zap.String("appointment_id", raw),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete appointment %s: %w", raw, err)
	}

	p.log.Info("appointment completed",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("insured_id", appt.InsuredID),
	)

	return nil
}
