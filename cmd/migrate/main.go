// Command migrate применяет миграции Postgres и при необходимости загружает каталог книг.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
	"github.com/AndriyBorkovich/OnlineBookstore/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "BOOKSTORE_POSTGRES_DSN"
)

type options struct {
	direction string
	steps     int
	dsn       string
	seedPath  string
}

func parseOptions(args []string, lookup func(string) (string, bool)) (options, error) {
	var opts options

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	fs.StringVar(&opts.seedPath, "seed", "", "JSON file with catalog items to upsert after migrating up")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	switch opts.direction {
	case "up", "down", "status":
	default:
		return options{}, fmt.Errorf("unsupported direction: %s (use up|down|status)", opts.direction)
	}
	if opts.seedPath != "" && opts.direction != "up" {
		return options{}, errors.New("-seed is only supported with -direction=up")
	}

	opts.dsn = strings.TrimSpace(opts.dsn)
	if opts.dsn == "" {
		if v, ok := lookup(envPostgresDSN); ok {
			opts.dsn = strings.TrimSpace(v)
		}
	}
	if opts.dsn == "" {
		return options{}, fmt.Errorf("%s (or -dsn) is required", envPostgresDSN)
	}
	return opts, nil
}

type seedItem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	TotalStock int64  `json:"total_stock"`
}

// readSeed разбирает JSON-массив книг и проверяет каждую запись.
func readSeed(r io.Reader) ([]domain.StockItem, error) {
	var raw []seedItem
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	items := make([]domain.StockItem, 0, len(raw))
	for idx, entry := range raw {
		item := domain.StockItem{ID: strings.TrimSpace(entry.ID), Title: entry.Title, TotalStock: entry.TotalStock}
		if errs := item.Validate(); len(errs) > 0 {
			return nil, fmt.Errorf("seed item %d: %w", idx, errors.Join(errs...))
		}
		items = append(items, item)
	}
	return items, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := store.MigrateDown(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}

	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d\n", opts.direction, version, count)

	if opts.seedPath == "" {
		return nil
	}
	f, err := os.Open(opts.seedPath)
	if err != nil {
		return fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()

	items, err := readSeed(f)
	if err != nil {
		return err
	}
	ledger := postgres.NewStockLedger(store)
	for _, item := range items {
		if _, err := ledger.Upsert(ctx, item); err != nil {
			return fmt.Errorf("seed %s: %w", item.ID, err)
		}
	}
	_, _ = fmt.Fprintf(out, "seeded %d catalog items\n", len(items))
	return nil
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
