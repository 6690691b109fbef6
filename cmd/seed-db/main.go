package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/order-registry/internal/domain/audit"
	"github.com/xenking/order-registry/internal/domain/auth"
	"github.com/xenking/order-registry/internal/domain/order"
	"github.com/xenking/order-registry/internal/handler"
	"github.com/xenking/order-registry/internal/repository"
)

func main() {
	var (
		databaseURL  string
		ordersFile   string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&ordersFile, "orders-file", "db/seed/orders.jsonl", "path to JSON lines file with sample orders")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or ORDERS_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ORDERS_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ORDERS_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or ORDERS_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ORDERS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, ordersFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, ordersFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	key := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default test key",
		Scopes:  []string{"orders:write"},
	}
	if err := repository.NewAPIKeyRepository(pool).Save(ctx, key); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	slog.Info("upserted API key", slog.String("id", key.ID), slog.String("name", key.Name))

	orders := repository.NewOrderRepository(pool)
	existing, err := orders.List(ctx, order.Filter{Limit: 1})
	if err != nil {
		return errors.Wrap(err, "list orders")
	}
	if len(existing) > 0 {
		slog.Info("orders already present, skipping sample orders")
		return nil
	}

	svc, err := order.NewService(orders, nil,
		order.WithObserver(audit.NewRecorder(repository.NewChangeLogRepository(pool))),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	if err := seedOrders(auth.WithKey(ctx, &key), svc, ordersFile); err != nil {
		return errors.Wrap(err, "seed orders")
	}
	return nil
}

func seedOrders(ctx context.Context, svc *order.Service, ordersFile string) error {
	slog.Info("reading orders file", slog.String("path", ordersFile))

	f, err := os.Open(ordersFile)
	if err != nil {
		return errors.Wrap(err, "open orders file")
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		req, err := handler.DecodeCreateRequest(data)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		o, err := svc.Create(ctx, req)
		if err != nil {
			return errors.Wrapf(err, "create order on line %d", line)
		}

		slog.Info("created order",
			slog.String("reference", o.Reference),
			slog.String("price", o.Price().String()),
		)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan orders file")
	}
	return nil
}
