// Command catalog-ingest loads supplier catalog feeds into the products
// table. Feeds are gzip-compressed CSV files (sku,title,category,price,stock),
// one row per product, and suppliers routinely ship overlapping catalogs that
// are far too large to deduplicate with an in-memory set. A bloom filter
// tracks SKUs already written: the first feed to mention a SKU wins, later
// duplicates are skipped. False positives drop a legitimate row with
// probability bloomFPR, which is acceptable for bulk catalog sync since the
// next run picks it up.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/circuitshop/api/internal/repository"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.0001
	batchSize     = 500
	progressEvery = 1_000_000
)

const insertProductSQL = `
INSERT INTO products (sku, title, description, price, stock, category, is_active)
VALUES ($1, $2, NULL, $3, $4, NULLIF($5, ''), TRUE)
ON CONFLICT (sku) DO NOTHING`

// feedRow is one parsed line of a supplier feed.
type feedRow struct {
	sku      string
	title    string
	category string
	price    decimal.Decimal
	stock    int32
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing supplier *.gz feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz feed files in %s", dataDir)
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

	slog.Info("ingesting feeds", slog.Int("files", len(files)))

	rows := make(chan feedRow, 4*batchSize)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// One parser per feed, one writer draining them all. A writer failure
	// cancels the parsers so they do not block on a dead channel.
	seen := newSkuFilter()
	for _, f := range files {
		g.Go(parseFeed(gctx, f, seen, rows))
	}

	writerErr := make(chan error, 1)
	go func() {
		err := writeRows(gctx, pool, rows)
		if err != nil {
			cancel()
		}
		writerErr <- err
	}()

	parseErr := g.Wait()
	close(rows)
	if err := <-writerErr; err != nil {
		return errors.Wrap(err, "write products")
	}
	if parseErr != nil {
		return errors.Wrap(parseErr, "parse feeds")
	}

	return nil
}

// skuFilter is a bloom filter shared by all parser goroutines.
type skuFilter struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func newSkuFilter() *skuFilter {
	return &skuFilter{filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR)}
}

// testAndAdd reports whether sku was (probably) seen before, marking it seen.
func (s *skuFilter) testAndAdd(sku string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.TestAndAddString(sku)
}

func parseFeed(ctx context.Context, path string, seen *skuFilter, out chan<- feedRow) func() error {
	return func() error {
		var total, dupes, malformed uint64

		if err := streamGzFile(ctx, path, func(line string) error {
			total++
			if total%progressEvery == 0 {
				slog.Info("ingest progress", slog.String("file", filepath.Base(path)), slog.Uint64("rows", total))
			}

			row, err := parseLine(line)
			if err != nil {
				malformed++
				return nil
			}
			if seen.testAndAdd(row.sku) {
				dupes++
				return nil
			}

			select {
			case out <- row:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}); err != nil {
			return errors.Wrapf(err, "stream %s", path)
		}

		slog.Info("feed complete",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("rows", total),
			slog.Uint64("duplicates", dupes),
			slog.Uint64("malformed", malformed),
		)

		return nil
	}
}

// parseLine parses "sku,title,category,price,stock". Titles containing commas
// are not supported by the supplier export format.
func parseLine(line string) (feedRow, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return feedRow{}, errors.Errorf("expected 5 fields, got %d", len(fields))
	}

	sku := strings.TrimSpace(fields[0])
	title := strings.TrimSpace(fields[1])
	if sku == "" || title == "" {
		return feedRow{}, errors.New("blank sku or title")
	}

	price, err := decimal.NewFromString(strings.TrimSpace(fields[3]))
	if err != nil || price.IsNegative() {
		return feedRow{}, errors.New("bad price")
	}

	stock, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 32)
	if err != nil || stock < 0 {
		return feedRow{}, errors.New("bad stock")
	}

	return feedRow{
		sku:      sku,
		title:    title,
		category: strings.TrimSpace(fields[2]),
		price:    price,
		stock:    int32(stock),
	}, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
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
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeRows drains the row channel, flushing inserts in batches.
func writeRows(ctx context.Context, pool *pgxpool.Pool, rows <-chan feedRow) error {
	var (
		batch   pgx.Batch
		written uint64
	)

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := pool.SendBatch(ctx, &batch).Close(); err != nil {
			return errors.Wrap(err, "send batch")
		}
		written += uint64(batch.Len())
		batch = pgx.Batch{}
		return nil
	}

	for row := range rows {
		batch.Queue(insertProductSQL, row.sku, row.title, row.price, row.stock, row.category)
		if batch.Len() >= batchSize {
			if err := flush(); err != nil {
				return err
			}
			if written%uint64(100*batchSize) == 0 {
				slog.Info("write progress", slog.Uint64("written", written))
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}

	slog.Info("writes complete", slog.Uint64("written", written))
	return nil
}
