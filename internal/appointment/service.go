package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher puts a freshly created appointment on the notification bus,
// routed by its country.
type Publisher interface {
	PublishAppointment(ctx context.Context, appt *Appointment) error
}

type Service struct {
	store Store
	bus   Publisher
	log   *zap.Logger
}

func NewService(store Store, bus Publisher, log *zap.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   log,
	}
}

// Create validates the intake input, persists a pending appointment and
// publishes it to the notification bus. Validation failures happen before
// any side effect. A store failure means nothing was published; a publish
// failure leaves the record pending in the store, to be picked up by the
// reconciliation sweep.
func (s *Service) Create(ctx context.Context, in NewAppointment) (*Appointment, error) {
	if !ValidInsuredID(in.InsuredID) {
		return nil, ErrInvalidInsuredID
	}
	if in.ScheduleID <= 0 {
		return nil, ErrInvalidScheduleID
	}
	if in.Country == "" {
		in.Country = CountryPE
	}
	if !in.Country.Valid() {
		return nil, ErrInvalidCountry
	}

	now := time.Now().UTC()
	appt := Appointment{
		ID:         uuid.New(),
		InsuredID:  in.InsuredID,
		ScheduleID: in.ScheduleID,
		Country:    in.Country,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	stored, err := s.store.CreateAppointment(ctx, appt)
	if err != nil {
		return nil, fmt.Errorf("save appointment: %w", err)
	}

	if err := s.bus.PublishAppointment(ctx, stored); err != nil {
		return nil, fmt.Errorf("publish appointment %s: %w", stored.ID, err)
	}

	s.log.Info("appointment created",
		zap.String("appointment_id", stored.ID.String()),
		zap.String("insured_id", stored.InsuredID),
		zap.String("country", string(stored.Country)),
	)

	return stored, nil
}

// ListByInsured returns every appointment for the insured party. The id is
// checked before the store is touched.
func (s *Service) ListByInsured(ctx context.Context, insuredID string) ([]Appointment, error) {
	if !ValidInsuredID(insuredID) {
		return nil, ErrInvalidInsuredID
	}

	appts, err := s.store.ListByInsuredID(ctx, insuredID)
	if err != nil {
		return nil, fmt.Errorf("list appointments for insured %s: %w", insuredID, err)
	}

	return appts, nil
}

// RepublishStalePending re-publishes pending appointments older than maxAge.
// It closes the gap left when an intake request stored its record but failed
// to publish. Downstream consumers tolerate the resulting duplicates.
func (s *Service) RepublishStalePending(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	stale, err := s.store.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	republished := 0
	for i := range stale {
		appt := stale[i]
		if err := s.bus.PublishAppointment(ctx, &appt); err != nil {
			s.log.Error("failed to republish stale appointment",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err),
			)
			continue
		}
		republished++
		s.log.Info("republished stale pending appointment",
			zap.String("appointment_id", appt.ID.String()),
			zap.Time("created_at", appt.CreatedAt),
		)
	}

	return republished, nil
}
