// Command seed populates the Postgres reference tables the reconciliation
// engine depends on: the valid entity registry and the per-date model
// context. It can also seed historical settlement facts so detector runs
// have a local side to compare against, which is how load tests are set up.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dsn          string
	entityPrefix string
	entityCount  int
	startDate    string
	days         int
	contextValue string
	seedFacts    bool
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.entityCount <= 0 {
		log.Fatal("entity-count must be > 0")
	}
	if cfg.days <= 0 {
		log.Fatal("days must be > 0")
	}

	start, err := parseStartDate(cfg.startDate)
	if err != nil {
		log.Fatalf("invalid start-date: %v", err)
	}

	entityIDs := buildEntityIDs(cfg.entityPrefix, cfg.entityCount)

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	log.Printf("seeding valid_entities: count=%d", cfg.entityCount)
	if err := seedEntities(ctx, db, entityIDs); err != nil {
		log.Fatalf("seed entities: %v", err)
	}

	log.Printf("seeding model_context: start=%s days=%d value=%s", start.Format("2006-01-02"), cfg.days, cfg.contextValue)
	if err := seedModelContext(ctx, db, start, cfg.days, cfg.contextValue); err != nil {
		log.Fatalf("seed model context: %v", err)
	}

	if cfg.seedFacts {
		log.Printf("seeding settlement_facts: entities=%d days=%d", cfg.entityCount, cfg.days)
		if err := seedFacts(ctx, db, entityIDs, start, cfg.days); err != nil {
			log.Fatalf("seed facts: %v", err)
		}
	}

	log.Printf("seed completed")
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.entityPrefix, "entity-prefix", envOrDefault("ENTITY_PREFIX", "E-"), "entity id prefix")
	flag.IntVar(&cfg.entityCount, "entity-count", envOrInt("ENTITY_COUNT", 10), "number of entities to register")
	flag.StringVar(&cfg.startDate, "start-date", envOrDefault("START_DATE", ""), "start date (YYYY-MM-DD)")
	flag.IntVar(&cfg.days, "days", envOrInt("DAYS", 7), "number of days to seed")
	flag.StringVar(&cfg.contextValue, "context-value", envOrDefault("CONTEXT_VALUE", "1"), "model context value per date")
	flag.BoolVar(&cfg.seedFacts, "seed-facts", envOrBool("SEED_FACTS", false), "seed historical settlement facts")
	flag.Parse()
	return cfg
}

func parseStartDate(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Now().UTC().AddDate(0, 0, -7).Truncate(24 * time.Hour), nil
	}
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func buildEntityIDs(prefix string, count int) []string {
	list := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		list = append(list, fmt.Sprintf("%s%03d", prefix, i))
	}
	return list
}

func seedEntities(ctx context.Context, db *sql.DB, entities []string) error {
	const insertSQL = `
INSERT INTO valid_entities (entity_id, is_valid)
VALUES ($1, TRUE)
ON CONFLICT (entity_id) DO UPDATE SET is_valid = TRUE`

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, entityID := range entities {
		if _, err := stmt.ExecContext(ctx, entityID); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return err
		}
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func seedModelContext(ctx context.Context, db *sql.DB, start time.Time, days int, value string) error {
	const insertSQL = `
INSERT INTO model_context (date_key, context_value)
VALUES ($1, $2)
ON CONFLICT (date_key) DO UPDATE SET context_value = EXCLUDED.context_value`

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for day := 0; day < days; day++ {
		dateKey := start.AddDate(0, 0, day).Format("2006-01-02")
		if _, err := stmt.ExecContext(ctx, dateKey, value); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return err
		}
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func seedFacts(ctx context.Context, db *sql.DB, entities []string, start time.Time, days int) error {
	const insertSQL = `
INSERT INTO settlement_facts (
	settlement_date,
	period,
	entity_id,
	quantity,
	unit_price,
	payment,
	so_flag,
	cadl_flag
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	for day := 0; day < days; day++ {
		date := start.AddDate(0, 0, day).Format("2006-01-02")
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		for period := 1; period <= 48; period++ {
			for idx, entityID := range entities {
				quantity := -float64(period) - float64(idx)/10
				price := 40.0
				payment := quantity * price
				if _, err := stmt.ExecContext(
					ctx,
					date,
					period,
					entityID,
					quantity,
					price,
					payment,
					idx%2 == 0,
					idx%2 == 1,
				); err != nil {
					_ = stmt.Close()
					_ = tx.Rollback()
					return err
				}
			}
		}
		if err := stmt.Close(); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Printf("seeded facts for %s (%d/%d)", date, day+1, days)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envOrBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
