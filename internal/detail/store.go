package detail

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store writes appointment details to one country's relational database.
// Each worker process owns exactly one Store bound to its own country; it is
// shared across all messages the process handles.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&AppointmentDetail{}); err != nil {
		return fmt.Errorf("migrate appointment_details: %w", err)
	}
	return nil
}

// Insert creates one detail row and returns it. Inserts are deliberately not
// keyed by appointment id: a redelivered message creates a second row.
func (s *Store) Insert(ctx context.Context, d *AppointmentDetail) (*AppointmentDetail, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = StatusCompleted
	}

	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, fmt.Errorf("insert appointment detail: %w", err)
	}

	return d, nil
}
