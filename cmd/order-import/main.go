package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"

	"github.com/xenking/order-registry/internal/domain/audit"
	"github.com/xenking/order-registry/internal/domain/auth"
	"github.com/xenking/order-registry/internal/domain/order"
	"github.com/xenking/order-registry/internal/repository"
)

func main() {
	var (
		input       string
		databaseURL string
		workers     int
		expected    uint
		fpr         float64
	)

	flag.StringVar(&input, "input", "data/*.jsonl.gz", "glob of gzip compressed JSON lines order files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "files decompressed concurrently")
	flag.UintVar(&expected, "expected-orders", 1_000_000, "expected number of input lines, sizes the duplicate filter")
	flag.Float64Var(&fpr, "fpr", 1e-6, "false positive rate of the duplicate filter")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, input, databaseURL, workers, expected, fpr); err != nil {
		slog.Error("order import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("order import completed successfully")
}

func run(ctx context.Context, input, databaseURL string, workers int, expected uint, fpr float64) error {
	files, err := filepath.Glob(input)
	if err != nil {
		return errors.Wrapf(err, "match %s", input)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", input)
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	svc, err := order.NewService(repository.NewOrderRepository(pool), nil,
		order.WithObserver(audit.NewRecorder(repository.NewChangeLogRepository(pool))),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	im := &importer{
		orders:  svc,
		filter:  bloom.NewWithEstimates(expected, fpr),
		workers: workers,
	}
	ctx = auth.WithKey(ctx, &auth.APIKeyInfo{ID: "order-import", Name: "order-import"})

	slog.Info("importing orders", slog.Int("files", len(files)))

	st, err := im.run(ctx, files)
	slog.Info("import finished",
		slog.Int("imported", st.imported),
		slog.Int("duplicates", st.duplicates),
		slog.Int("failed", st.failed),
	)
	if err != nil {
		return err
	}
	if st.failed > 0 {
		return errors.Errorf("%d orders could not be imported", st.failed)
	}
	return nil
}
