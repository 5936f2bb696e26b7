package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Migrate creates the appointments table and the insured_id lookup index.
func (s *PgStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS appointments (
			id          UUID PRIMARY KEY,
			insured_id  TEXT NOT NULL,
			schedule_id BIGINT NOT NULL,
			country_iso TEXT NOT NULL,
			status      TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create appointments table: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_appointments_insured_id
		ON appointments (insured_id)
	`)
	if err != nil {
		return fmt.Errorf("create insured_id index: %w", err)
	}

	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.InsuredID,
		&a.ScheduleID,
		&a.Country,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (s *PgStore) CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, insured_id, schedule_id, country_iso, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, insured_id, schedule_id, country_iso, status, created_at, updated_at
	`, appt.ID, appt.InsuredID, appt.ScheduleID, appt.Country, appt.Status, appt.CreatedAt, appt.UpdatedAt)

	return scanAppointment(row)
}

func (s *PgStore) ListByInsuredID(ctx context.Context, insuredID string) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, insured_id, schedule_id, country_iso, status, created_at, updated_at
		FROM appointments
		WHERE insured_id = $1
	`, insuredID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CompleteAppointment is a single conditional statement so concurrent calls
// for different ids never interfere. Completed is the terminal status, so a
// redelivered completion event only refreshes updated_at.
func (s *PgStore) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, insured_id, schedule_id, country_iso, status, created_at, updated_at
	`, id, StatusCompleted)

	return scanAppointment(row)
}

func (s *PgStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, insured_id, schedule_id, country_iso, status, created_at, updated_at
		FROM appointments
		WHERE status = $1
		  AND created_at < $2
	`, StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
