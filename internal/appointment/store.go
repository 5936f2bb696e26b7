package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidInsuredID    = errors.New("insured id must be exactly 5 digits")
	ErrInvalidScheduleID   = errors.New("schedule id is required")
	ErrInvalidCountry      = errors.New("country must be PE or CL")
)

// Store contains all Appointment Store interactions needed by the pipeline.
type Store interface {
	// CreateAppointment persists a new record and returns the stored row.
	CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)

	// ListByInsuredID returns every appointment for the insured party,
	// in no particular order.
	ListByInsuredID(ctx context.Context, insuredID string) ([]Appointment, error)

	// CompleteAppointment sets status to completed and refreshes updated_at,
	// returning the post-update record. ErrAppointmentNotFound when no row
	// exists under the id.
	CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListStalePending returns pending appointments created before cutoff.
	// Used by the reconciliation sweep.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]Appointment, error)
}
