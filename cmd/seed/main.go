package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roza-in/client-sub001/internal/db"
	"github.com/roza-in/client-sub001/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if _, err := seedHospitals(context.Background(), pool, 10); err != nil {
		log.Fatalf("seed hospitals: %v", err)
	}

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}

	if err := seedScheduleWindows(context.Background(), pool, doctorIDs); err != nil {
		log.Fatalf("seed schedule windows: %v", err)
	}

	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedHospitals(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d hospitals", count)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := pool.Exec(ctx, `
			INSERT INTO hospitals (id, name, city, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Company()+" Hospital", gofakeit.City())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		onlineEnabled := gofakeit.Bool()

		// Fees in paise
		onlineFee := int64(gofakeit.Number(300, 1500)) * 100
		inPersonFee := int64(gofakeit.Number(500, 2500)) * 100

		_, err := pool.Exec(ctx, `
			INSERT INTO doctors (
				id, name, specialty,
				slot_duration_min, buffer_min, max_patients_per_slot,
				online_enabled, online_fee, in_person_fee, currency,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8, 'INR', now(), now())
		`, id,
			"Dr. "+gofakeit.Name(),
			specialties[gofakeit.Number(0, len(specialties)-1)],
			[]int{15, 20, 30}[gofakeit.Number(0, 2)],
			[]int{0, 5, 10}[gofakeit.Number(0, 2)],
			onlineEnabled, onlineFee, inPersonFee,
		)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func seedScheduleWindows(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	log.Printf("seeding schedule windows for %d doctors", len(doctorIDs))

	for _, doctorID := range doctorIDs {
		// Monday through Saturday, morning in-person plus evening online.
		for weekday := 1; weekday <= 6; weekday++ {
			morning, _ := schedule.ParseTimeOfDay("09:00")
			noon, _ := schedule.ParseTimeOfDay("13:00")
			_, err := pool.Exec(ctx, `
				INSERT INTO doctor_schedule_windows (id, doctor_id, weekday, start_min, end_min, consultation_type)
				VALUES ($1, $2, $3, $4, $5, 'in_person')
			`, uuid.New(), doctorID, weekday, morning, noon)
			if err != nil {
				return err
			}

			evening, _ := schedule.ParseTimeOfDay("17:00")
			night, _ := schedule.ParseTimeOfDay("20:00")
			_, err = pool.Exec(ctx, `
				INSERT INTO doctor_schedule_windows (id, doctor_id, weekday, start_min, end_min, consultation_type)
				VALUES ($1, $2, $3, $4, $5, 'online')
			`, uuid.New(), doctorID, weekday, evening, night)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	for i := 0; i < count; i++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, name, phone, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, uuid.New(), gofakeit.Name(), gofakeit.Phone())
		if err != nil {
			return err
		}
	}

	return nil
}
