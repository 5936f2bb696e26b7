package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/medgrid/appointment-pipeline/internal/appointment"
	"github.com/medgrid/appointment-pipeline/internal/bus"
	"github.com/medgrid/appointment-pipeline/internal/detail"
)

var ErrDetailStoreUnavailable = errors.New("country database connection is not available")

// DetailStore persists country-local appointment detail rows.
type DetailStore interface {
	Insert(ctx context.Context, d *detail.AppointmentDetail) (*detail.AppointmentDetail, error)
}

// CompletionEmitter puts completion events on the event bus.
type CompletionEmitter interface {
	EmitCompletion(ctx context.Context, entry bus.Entry) error
}

// Country handles one country's queue. The same processor serves PE and CL;
// the country and its store handle are fixed at construction.
type Country struct {
	country      appointment.CountryISO
	details      DetailStore // nil when the relational store is disabled for this deployment
	emitter      CompletionEmitter
	eventBusName string
	log          *zap.Logger
}

func NewCountry(country appointment.CountryISO, details DetailStore, emitter CompletionEmitter, eventBusName string, log *zap.Logger) *Country {
	return &Country{
		country:      country,
		details:      details,
		emitter:      emitter,
		eventBusName: eventBusName,
		log:          log.With(zap.String("country", string(country))),
	}
}

type completionDetail struct {
	ID                string                    `json:"id"`
	AppointmentDetail *detail.AppointmentDetail `json:"appointmentDetail"`
}

type completionPayload struct {
	ID         string           `json:"id"`
	CountryISO string           `json:"countryISO"`
	Detail     completionDetail `json:"detail"`
}

// HandleMessage processes one queue message: decode, persist the detail row,
// emit the completion event. Any error is isolated to this message; the
// detail insert is not rolled back when the emit fails.
func (p *Country) HandleMessage(ctx context.Context, msg bus.Message) error {
	m, err := bus.DecodeAppointmentMessage(msg.Body)
	if err != nil {
		return fmt.Errorf("decode appointment message: %w", err)
	}

	if p.details == nil {
		return fmt.Errorf("country %s: %w", p.country, ErrDetailStoreUnavailable)
	}

	row, err := p.details.Insert(ctx, &detail.AppointmentDetail{
		InsuredID:  m.InsuredID,
		ScheduleID: m.ScheduleID,
		CountryISO: m.CountryISO,
		Status:     detail.StatusCompleted,
	})
	if err != nil {
		return fmt.Errorf("persist detail for appointment %s: %w", m.ID, err)
	}

	p.log.Info("appointment detail persisted",
		zap.String("appointment_id", m.ID),
		zap.String("detail_id", row.ID),
	)

	payload, err := json.Marshal(completionPayload{
		ID:         m.ID,
		CountryISO: string(p.country),
		Detail: completionDetail{
			ID:                m.ID,
			AppointmentDetail: row,
		},
	})
	if err != nil {
		return fmt.Errorf("encode completion payload for %s: %w", m.ID, err)
	}

	entry := bus.Entry{
		EventBusName: p.eventBusName,
		Source:       bus.SourceAppointmentService,
		DetailType:   bus.DetailTypeCompleted,
		Detail:       string(payload),
	}
	if err := p.emitter.EmitCompletion(ctx, entry); err != nil {
		return fmt.Errorf("emit completion for appointment %s: %w", m.ID, err)
	}

	return nil
}
