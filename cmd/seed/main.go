package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medgrid/appointment-pipeline/internal/appointment"
	"github.com/medgrid/appointment-pipeline/internal/db"
)

// Seeds the appointment store with historical records so the query endpoint
// and the reconcile worker have data to work against.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	count := 1000
	if v := os.Getenv("SEED_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	store := appointment.NewPgStore(pool)
	if err := store.Migrate(context.Background()); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedAppointments(context.Background(), pool, count); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d appointments", count)

	countries := []appointment.CountryISO{appointment.CountryPE, appointment.CountryCL}

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			insuredID := fmt.Sprintf("%05d", gofakeit.Number(0, 99999))
			scheduleID := int64(gofakeit.Number(1, 10000))
			country := countries[gofakeit.Number(0, len(countries)-1)]

			// Roughly a tenth stay pending, the rest are long done.
			status := appointment.StatusCompleted
			if gofakeit.Number(0, 9) == 0 {
				status = appointment.StatusPending
			}
			createdAt := gofakeit.DateRange(time.Now().AddDate(0, -6, 0), time.Now().Add(-time.Hour))

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, insured_id, schedule_id, country_iso, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $6)
			`, id, insuredID, scheduleID, country, status, createdAt)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("appointments seeded: %d/%d", end, count)
	}

	return nil
}
