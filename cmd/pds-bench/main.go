// pds-bench measures accuracy, memory and concurrent throughput of the
// probabilistic structures on synthetic data.
//
// Usage
// =====
//
//	pds-bench -structure bloom|cbf|cms|hll|all [-n 100000] [flags]
//
// Each run has two parts:
//
// Accuracy: the structure is compared with a reference implementation and an
// exact answer over the same keys (see internal/compare). Bloom filters are
// queried with n keys that were never inserted; HyperLogLog sees n keys drawn
// with repetition from [0, n); Count-Min sees n Zipf-distributed keys. The
// counting Bloom filter (cbf) takes n keys, has half of them deleted, and is
// compared with a plain filter of the same geometry that cannot delete.
//
// Throughput: the same keys are fed through the sharded, concurrent variant
// by -workers goroutines, and the insert rate is reported. The counting filter
// has no sharded variant and skips this part.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sketch.lopezb.com/internal/compare"
	"sketch.lopezb.com/internal/config"
	"sketch.lopezb.com/internal/pds/sharded"
	"sketch.lopezb.com/internal/stream"
)

var errUnknownStructure = errors.New("unknown structure")

type application struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer
	n      int
}

func main() {
	fs := flag.CommandLine
	flags := config.Default()
	flags.Flags(fs)
	configPath := fs.String("config", "", "Optional YAML config file")
	structure := fs.String("structure", "all", "Structure to benchmark: bloom, cbf, cms, hll or all")
	n := fs.Int("n", 100000, "Number of keys per run")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Resolve(fs, flags, *configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	app := &application{config: cfg, logger: logger, out: os.Stdout, n: *n}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.run(ctx, *structure); err != nil {
		logger.Error("benchmark failed", "structure", *structure, "error", err)
		os.Exit(1)
	}
}

func (app *application) run(ctx context.Context, structure string) error {
	if app.n < 1 {
		return fmt.Errorf("n must be >= 1, got %d", app.n)
	}

	benches := map[string]func(context.Context, *rand.Rand) error{
		"bloom": app.benchBloom,
		"cbf":   app.benchCountingBloom,
		"cms":   app.benchCountMin,
		"hll":   app.benchHLL,
	}

	names := []string{structure}
	if structure == "all" {
		names = []string{"bloom", "cbf", "cms", "hll"}
	}

	for _, name := range names {
		bench, ok := benches[name]
		if !ok {
			return fmt.Errorf("%w: %q", errUnknownStructure, name)
		}

		fmt.Fprintf(app.out, "== %s (n=%d) ==\n", name, app.n)
		if err := bench(ctx, app.rng()); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintln(app.out)
	}
	return nil
}

func (app *application) rng() *rand.Rand {
	seed := app.config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed))
}

func (app *application) benchBloom(ctx context.Context, _ *rand.Rand) error {
	cfg := app.config
	keys := sequentialKeys("member", app.n)

	report, err := compare.Bloom(keys, sequentialKeys("absent", app.n), cfg.Bloom.FalsePositiveRate)
	if err != nil {
		return err
	}
	if _, err := report.WriteTo(app.out); err != nil {
		return err
	}

	filter, err := sharded.NewBloom(cfg.Shards, uint64(app.n), cfg.Bloom.FalsePositiveRate)
	if err != nil {
		return err
	}
	return app.throughput(ctx, keys, filter.Insert)
}

func (app *application) benchCountingBloom(_ context.Context, _ *rand.Rand) error {
	report, err := compare.Deletion(sequentialKeys("member", app.n), app.n/2, app.config.Bloom.FalsePositiveRate)
	if err != nil {
		return err
	}
	_, err = report.WriteTo(app.out)
	return err
}

func (app *application) benchCountMin(ctx context.Context, rng *rand.Rand) error {
	cfg := app.config

	// Zipf with s=1.1 over key ids [0, n].
	zipf := rand.NewZipf(rng, 1.1, 1, uint64(app.n))
	keys := make([][]byte, app.n)
	events := make([]compare.Event, app.n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%d", zipf.Uint64()))
		events[i] = compare.Event{Key: keys[i], Count: 1}
	}

	report, err := compare.Frequency(events, cfg.CountMin.Epsilon, cfg.CountMin.Delta)
	if err != nil {
		return err
	}
	if _, err := report.WriteTo(app.out); err != nil {
		return err
	}

	sketch, err := sharded.NewCountMin(cfg.Shards, cfg.CountMin.Epsilon, cfg.CountMin.Delta)
	if err != nil {
		return err
	}
	return app.throughput(ctx, keys, func(key []byte) { sketch.Update(key, 1) })
}

func (app *application) benchHLL(ctx context.Context, rng *rand.Rand) error {
	cfg := app.config

	keys := make([][]byte, app.n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("user-%d", rng.IntN(app.n)))
	}

	report, err := compare.Cardinality(keys, cfg.HyperLogLog.Precision)
	if err != nil {
		return err
	}
	if _, err := report.WriteTo(app.out); err != nil {
		return err
	}

	counter, err := sharded.NewHLL(cfg.HyperLogLog.Precision)
	if err != nil {
		return err
	}
	return app.throughput(ctx, keys, func(key []byte) { counter.Add(key) })
}

// throughput feeds keys to insert from app.config.Workers goroutines and
// prints the achieved rate.
func (app *application) throughput(ctx context.Context, keys [][]byte, insert func([]byte)) error {
	start := time.Now()

	produce := func(ctx context.Context, out chan<- []byte) error {
		for _, k := range keys {
			if err := stream.Send(ctx, out, k); err != nil {
				return err
			}
		}
		return nil
	}
	sink := func(key []byte) error {
		insert(key)
		return nil
	}

	if err := stream.Ingest(ctx, app.config.Workers, produce, sink); err != nil {
		return err
	}

	elapsed := time.Since(start)
	rate := float64(len(keys)) / elapsed.Seconds()
	fmt.Fprintf(app.out, "concurrent inserts: %d keys, %d workers, %d shards, %.0f ops/s\n",
		len(keys), app.config.Workers, app.config.Shards, rate)

	app.logger.Info("throughput measured", "keys", len(keys), "elapsed", elapsed)
	return nil
}

func sequentialKeys(prefix string, n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("%s-%d", prefix, i))
	}
	return keys
}
