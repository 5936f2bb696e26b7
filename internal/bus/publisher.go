package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medgrid/appointment-pipeline/internal/appointment"
)

const (
	StreamPE        = "appointments:pe"
	StreamCL        = "appointments:cl"
	StreamCompleted = "appointments:completed"

	SourceAppointmentService = "appointment-service"
	DetailTypeCompleted      = "appointment.completed"

	bodyField    = "body"
	countryField = "countryISO"
)

// StreamForCountry routes an appointment to its country queue. The bus and
// the per-country queue collapse into one routed stream each: publishing
// with a country attribute is the topic side, the stream is the queue side.
func StreamForCountry(c appointment.CountryISO) string {
	if c == appointment.CountryCL {
		return StreamCL
	}
	return StreamPE
}

// Entry is one completion event put on the event bus. Detail carries a
// JSON-encoded string, the way event-bus entries do.
type Entry struct {
	EventBusName string `json:"EventBusName"`
	Source       string `json:"Source"`
	DetailType   string `json:"DetailType"`
	Detail       string `json:"Detail"`
}

type Publisher struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewPublisher(rdb *redis.Client, log *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, log: log}
}

// PublishAppointment puts the full record on the country stream selected by
// the appointment's countryISO. The payload is wrapped in a Message field,
// matching how a pub/sub topic hands messages to its queue subscribers.
func (p *Publisher) PublishAppointment(ctx context.Context, appt *appointment.Appointment) error {
	payload, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("encode appointment %s: %w", appt.ID, err)
	}

	wrapped, err := json.Marshal(struct {
		Message string `json:"Message"`
	}{Message: string(payload)})
	if err != nil {
		return fmt.Errorf("wrap appointment %s: %w", appt.ID, err)
	}

	stream := StreamForCountry(appt.Country)
	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			bodyField:    string(wrapped),
			countryField: string(appt.Country),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish appointment %s to %s: %w", appt.ID, stream, err)
	}

	p.log.Info("appointment published",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("stream", stream),
		zap.String("message_id", id),
	)

	return nil
}

// EmitCompletion puts one completion event on the completion stream. The
// entry is lowered to the shape the event bus delivers to queue consumers:
// metadata keys in lower case, Detail inlined as an object.
func (p *Publisher) EmitCompletion(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(struct {
		Source     string          `json:"source"`
		DetailType string          `json:"detail-type"`
		Detail     json.RawMessage `json:"detail"`
	}{
		Source:     entry.Source,
		DetailType: entry.DetailType,
		Detail:     json.RawMessage(entry.Detail),
	})
	if err != nil {
		return fmt.Errorf("encode completion event: %w", err)
	}

	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamCompleted,
		Values: map[string]any{bodyField: string(body)},
	}).Result()
	if err != nil {
		return fmt.Errorf("emit completion event: %w", err)
	}

	p.log.Info("completion event emitted",
		zap.String("detail_type", entry.DetailType),
		zap.String("message_id", id),
	)

	return nil
}
