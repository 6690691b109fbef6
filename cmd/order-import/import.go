package main

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-registry/internal/domain/order"
	"github.com/xenking/order-registry/internal/handler"
)

const (
	maxLineSize   = 1 << 20
	progressEvery = 1_000
)

type creator interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
}

type record struct {
	file string
	line int
	data []byte
}

type stats struct {
	imported   int
	duplicates int
	failed     int
}

// importer reads orders from gzip compressed JSON lines files and creates
// them. Identical lines are imported once; duplicates are detected with a
// bloom filter, so a false positive skips an order and is logged with its
// position for a manual retry.
type importer struct {
	orders  creator
	filter  *bloom.BloomFilter
	workers int
}

func (im *importer) run(ctx context.Context, files []string) (stats, error) {
	var st stats
	records := make(chan record, 1024)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(records)

		readers, rctx := errgroup.WithContext(ctx)
		readers.SetLimit(max(im.workers, 1))
		for _, f := range files {
			readers.Go(func() error {
				return streamGzFile(rctx, f, func(line int, data []byte) error {
					select {
					case records <- record{file: f, line: line, data: data}:
						return nil
					case <-rctx.Done():
						return rctx.Err()
					}
				})
			})
		}
		return readers.Wait()
	})

	g.Go(func() error {
		for rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if im.filter.TestAndAdd(rec.data) {
				st.duplicates++
				slog.Warn("skipping duplicate order", slog.String("file", rec.file), slog.Int("line", rec.line))
				continue
			}
			if err := im.create(ctx, rec.data); err != nil {
				st.failed++
				slog.Warn("order not imported",
					slog.String("file", rec.file),
					slog.Int("line", rec.line),
					slog.String("error", err.Error()),
				)
				continue
			}

			st.imported++
			if st.imported%progressEvery == 0 {
				slog.Info("import progress", slog.Int("imported", st.imported))
			}
		}
		return nil
	})

	err := g.Wait()
	return st, err
}

func (im *importer) create(ctx context.Context, data []byte) error {
	req, err := handler.DecodeCreateRequest(data)
	if err != nil {
		return err
	}
	_, err = im.orders.Create(ctx, req)
	return err
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty
// line. The slice passed to fn is owned by the callee.
func streamGzFile(ctx context.Context, path string, fn func(line int, data []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := fn(line, bytes.Clone(data)); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
