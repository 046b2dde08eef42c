// query-optimizer compares Bloom-filter-guarded query plans with plain scans
// on synthetic in-memory tables.
//
// Usage
// =====
//
//	query-optimizer [-customers 10000] [-orders 50000] [-products 5000] [flags]
//
// Three tables are generated from -seed: customers, orders referencing
// customers, and products. Each table carries a Bloom filter on its primary
// and foreign key columns (sized by -bloom-fp), a skip list index on its
// primary key, and a HyperLogLog of distinct foreign keys.
//
// Benchmarks
// ==========
//
//   - Point queries: -point-queries customer IDs, about half of them absent,
//     answered by filter plus index and by a full scan.
//   - Range queries: -range-queries windows of -range-width IDs over the
//     customer index.
//   - Foreign key lookups: orders of -point-queries customer IDs, with and
//     without the orders foreign key filter.
//   - Join: orders joined with customers, with the customers primary key
//     filter in front of every inner scan and as a plain nested loop.
//
// The naive join reads orders x customers rows; shrink the tables for quick
// runs.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"sketch.lopezb.com/internal/config"
	"sketch.lopezb.com/internal/query"
)

type tableSpec struct {
	name    string
	rows    int
	pkStart int
	fkRange int
}

type application struct {
	config       *config.Config
	logger       *slog.Logger
	out          io.Writer
	customers    int
	orders       int
	products     int
	pointQueries int
	rangeQueries int
	rangeWidth   int
}

type database struct {
	customers *query.Table
	orders    *query.Table
	products  *query.Table
}

func main() {
	fs := flag.CommandLine
	flags := config.Default()
	flags.Flags(fs)
	configPath := fs.String("config", "", "Optional YAML config file")
	customers := fs.Int("customers", 10000, "Rows in the customers table")
	orders := fs.Int("orders", 50000, "Rows in the orders table")
	products := fs.Int("products", 5000, "Rows in the products table")
	pointQueries := fs.Int("point-queries", 10000, "Number of point and foreign key lookups")
	rangeQueries := fs.Int("range-queries", 1000, "Number of range queries")
	rangeWidth := fs.Int("range-width", 100, "Width of each range query in IDs")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Resolve(fs, flags, *configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	app := &application{
		config:       cfg,
		logger:       logger,
		out:          os.Stdout,
		customers:    *customers,
		orders:       *orders,
		products:     *products,
		pointQueries: *pointQueries,
		rangeQueries: *rangeQueries,
		rangeWidth:   *rangeWidth,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.run(ctx); err != nil {
		logger.Error("query benchmark failed", "error", err)
		os.Exit(1)
	}
}

func (app *application) run(ctx context.Context) error {
	rng := app.rng()

	db, err := app.build(ctx, rng)
	if err != nil {
		return err
	}

	steps := []func(*rand.Rand){
		func(rng *rand.Rand) { app.pointQueryBench(db, rng) },
		func(rng *rand.Rand) { app.rangeQueryBench(db, rng) },
		func(rng *rand.Rand) { app.foreignKeyBench(db, rng) },
		func(*rand.Rand) { app.joinBench(db) },
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		step(rng)
	}

	return app.printMemory(db)
}

func (app *application) rng() *rand.Rand {
	seed := app.config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed))
}

// build generates every table's rows from rng in a fixed order, then indexes
// the tables concurrently. Each index gets its own source seeded from rng, so
// the result does not depend on scheduling.
func (app *application) build(ctx context.Context, rng *rand.Rand) (*database, error) {
	specs := []tableSpec{
		{name: "customers", rows: app.customers, pkStart: 1, fkRange: app.customers},
		{name: "orders", rows: app.orders, pkStart: app.customers*10 + 1, fkRange: app.customers},
		{name: "products", rows: app.products, pkStart: 1, fkRange: 1000},
	}

	rows := make([][]query.Row, len(specs))
	seeds := make([]uint64, len(specs))
	for i, spec := range specs {
		var err error
		if rows[i], err = query.Generate(spec.rows, spec.pkStart, spec.fkRange, rng); err != nil {
			return nil, fmt.Errorf("%s: %w", spec.name, err)
		}
		seeds[i] = rng.Uint64()
	}

	start := time.Now()
	tables := make([]*query.Table, len(specs))
	eg, ctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := query.NewTable(spec.name, rows[i], query.Options{
				FalsePositiveRate: app.config.Bloom.FalsePositiveRate,
				Precision:         app.config.HyperLogLog.Precision,
				Rng:               rand.New(rand.NewPCG(seeds[i], uint64(i))),
			})
			tables[i] = t
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	fmt.Fprintf(app.out, "Tables (seed %d, target false positive rate %.2f%%):\n",
		app.config.Seed, app.config.Bloom.FalsePositiveRate*100)
	for _, t := range tables {
		fmt.Fprintf(app.out, "  %-10s %8d rows, index level %d, ~%d distinct foreign keys\n",
			t.Name, t.Len(), t.IndexLevel(), t.DistinctForeignKeys())
	}
	app.logger.Info("tables built", "tables", len(tables), "duration", time.Since(start))

	return &database{customers: tables[0], orders: tables[1], products: tables[2]}, nil
}

// pointQueryBench looks up IDs drawn from [0, 2 x customers), so about half
// miss.
func (app *application) pointQueryBench(db *database, rng *rand.Rand) {
	ids := make([]int, app.pointQueries)
	for i := range ids {
		ids[i] = rng.IntN(2 * db.customers.Len())
	}

	var bloomStats, scanStats query.Stats
	var bloomFound, scanFound int

	start := time.Now()
	for _, id := range ids {
		if _, ok := db.customers.PointBloom(id, &bloomStats); ok {
			bloomFound++
		}
	}
	bloomStats.Elapsed = time.Since(start)

	start = time.Now()
	for _, id := range ids {
		if _, ok := db.customers.PointScan(id, &scanStats); ok {
			scanFound++
		}
	}
	scanStats.Elapsed = time.Since(start)

	fmt.Fprintf(app.out, "\n== Point queries (%d on customers) ==\n", len(ids))
	app.printStats("bloom + index", bloomFound, bloomStats)
	app.printStats("full scan", scanFound, scanStats)
	fmt.Fprintf(app.out, "  bloom false positives: %d (%.2f%% of absent keys)\n",
		bloomStats.BloomFalsePositives, bloomStats.FalsePositiveRate()*100)
	app.printSpeedup(bloomStats, scanStats)
}

func (app *application) rangeQueryBench(db *database, rng *rand.Rand) {
	var s query.Stats
	returned := 0

	start := time.Now()
	for range app.rangeQueries {
		low := 1 + rng.IntN(db.customers.Len())
		returned += len(db.customers.Range(low, low+app.rangeWidth-1, app.rangeWidth, &s))
	}
	s.Elapsed = time.Since(start)

	fmt.Fprintf(app.out, "\n== Range queries (%d, width %d on customers) ==\n", app.rangeQueries, app.rangeWidth)
	app.printStats("skip list", returned, s)
}

// foreignKeyBench finds the orders of customer IDs drawn from
// [0, 2 x customers), so about half have none.
func (app *application) foreignKeyBench(db *database, rng *rand.Rand) {
	ids := make([]int, app.pointQueries)
	for i := range ids {
		ids[i] = rng.IntN(2 * db.customers.Len())
	}

	var bloomStats, scanStats query.Stats
	var bloomFound, scanFound int

	start := time.Now()
	for _, id := range ids {
		bloomFound += len(db.orders.ReferencingBloom(id, &bloomStats))
	}
	bloomStats.Elapsed = time.Since(start)

	start = time.Now()
	for _, id := range ids {
		scanFound += len(db.orders.ReferencingScan(id, &scanStats))
	}
	scanStats.Elapsed = time.Since(start)

	fmt.Fprintf(app.out, "\n== Foreign key lookups (%d on orders) ==\n", len(ids))
	app.printStats("bloom + scan", bloomFound, bloomStats)
	app.printStats("full scan", scanFound, scanStats)
	app.printSpeedup(bloomStats, scanStats)
}

func (app *application) joinBench(db *database) {
	var bloomStats, naiveStats query.Stats

	start := time.Now()
	bloomMatches := query.JoinBloom(db.orders, db.customers, &bloomStats)
	bloomStats.Elapsed = time.Since(start)

	start = time.Now()
	naiveMatches := query.JoinNaive(db.orders, db.customers, &naiveStats)
	naiveStats.Elapsed = time.Since(start)

	fmt.Fprintf(app.out, "\n== Join orders x customers (%d x %d rows) ==\n", db.orders.Len(), db.customers.Len())
	app.printStats("bloom join", bloomMatches, bloomStats)
	app.printStats("naive join", naiveMatches, naiveStats)
	fmt.Fprintf(app.out, "  inner scans skipped: %d of %d\n",
		bloomStats.BloomLookups-bloomStats.BloomPositives, bloomStats.BloomLookups)
	app.printSpeedup(bloomStats, naiveStats)

	app.logger.Info("join compared",
		"matches", bloomMatches,
		"bloom_rows", bloomStats.RowsExamined,
		"naive_rows", naiveStats.RowsExamined)
}

func (app *application) printStats(plan string, results int, s query.Stats) {
	fmt.Fprintf(app.out, "  %-14s %8d results, %10d rows examined, %6d full scans, %v\n",
		plan+":", results, s.RowsExamined, s.FullScans, s.Elapsed.Round(time.Microsecond))
}

func (app *application) printSpeedup(fast, slow query.Stats) {
	if fast.RowsExamined == 0 {
		fmt.Fprintf(app.out, "  rows examined: no rows read by the filtered plan\n")
		return
	}
	fmt.Fprintf(app.out, "  rows examined: %.1fx fewer\n", float64(slow.RowsExamined)/float64(fast.RowsExamined))
}

func (app *application) printMemory(db *database) error {
	fmt.Fprintf(app.out, "\n== Memory ==\n")

	tw := tabwriter.NewWriter(app.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "table\trows\tpk bloom\tfk bloom\tindex\thll\ttotal")
	for _, t := range []*query.Table{db.customers, db.orders, db.products} {
		m := t.MemoryUsage()
		fmt.Fprintf(tw, "%s\t%d B\t%d B\t%d B\t%d B\t%d B\t%d B\n",
			t.Name, m.Rows, m.PKBloom, m.FKBloom, m.Index, m.HLL, m.Total())
	}
	return tw.Flush()
}
