package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/weili-projects/reservation-api/internal/appointment"
	"github.com/weili-projects/reservation-api/internal/config"
	"github.com/weili-projects/reservation-api/internal/db"
	"github.com/weili-projects/reservation-api/internal/logging"
)

var (
	fixedProviders = []string{"Li", "Jekyll", "Meds"}
	fixedClients   = []string{"C1", "C2", "C3"}
)

func main() {
	providers := flag.Int("providers", 20, "random providers to add on top of the fixed ones")
	clients := flag.Int("clients", 500, "random clients to add on top of the fixed ones")
	days := flag.Int("days", 7, "days of morning availability to publish per provider, starting in two days")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{})
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	providerIDs, err := seedPeople(ctx, pool, "providers", fixedProviders, *providers)
	if err != nil {
		logger.Fatal("seed providers", zap.Error(err))
	}
	if _, err := seedPeople(ctx, pool, "clients", fixedClients, *clients); err != nil {
		logger.Fatal("seed clients", zap.Error(err))
	}
	logger.Info("people seeded", zap.Int("providers", len(providerIDs)))

	svc := appointment.NewService(appointment.NewPgRepository(pool), logger)
	total := 0
	for _, id := range providerIDs {
		slots, err := svc.CreateAvailability(ctx, id, morningRanges(time.Now().UTC(), *days))
		if err != nil {
			logger.Fatal("publish availability", zap.Stringer("provider_id", id), zap.Error(err))
		}
		total += len(slots)
	}

	logger.Info("seed complete", zap.Int("slots_created", total))
}

// seedPeople inserts the fixed names with stable ids, then count random names.
func seedPeople(ctx context.Context, pool *pgxpool.Pool, table string, fixed []string, count int) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insert := `INSERT INTO ` + table + ` (id, name, created_at) VALUES ($1, $2, now()) ON CONFLICT (id) DO NOTHING`

	ids := make([]uuid.UUID, 0, len(fixed)+count)
	for _, name := range fixed {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("reservation:"+table+":"+name))
		if _, err := tx.Exec(ctx, insert, id, name); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	for i := 0; i < count; i++ {
		id := uuid.New()
		if _, err := tx.Exec(ctx, insert, id, gofakeit.Name()); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// morningRanges returns 09:00-12:00 UTC windows for days consecutive days starting
// two days after now, so every slot is bookable under the 24 hour rule.
func morningRanges(now time.Time, days int) []appointment.TimeRange {
	first := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, time.UTC).AddDate(0, 0, 2)
	out := make([]appointment.TimeRange, 0, days)
	for d := 0; d < days; d++ {
		start := first.AddDate(0, 0, d)
		out = append(out, appointment.TimeRange{Start: start, End: start.Add(3 * time.Hour)})
	}
	return out
}
