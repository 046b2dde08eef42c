// url-dedup filters duplicate URLs out of a stream with a Bloom filter and
// measures what the filter gets wrong against an exact set.
//
// Usage
// =====
//
//	url-dedup [flags] [urls.txt]
//
// Each line of the input is one URL. URLs are normalized (lowercase, default
// ports and trailing slashes removed) before they are hashed. Without an input
// file, -urls synthetic URLs with a -dup-rate share of repeats are generated
// into -sample first.
//
// Sizing
// ======
//
// The filter is sized from -bloom-items when set; otherwise from the number of
// input lines for a real file, or from 1.2 x (1 - dup-rate) x urls for a
// synthetic stream.
//
// A false positive here means a new URL was dropped as a duplicate. The filter
// never lets a true duplicate through.

package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"

	"sketch.lopezb.com/internal/config"
	"sketch.lopezb.com/internal/pds/bloom"
	"sketch.lopezb.com/internal/pds/exact"
	"sketch.lopezb.com/internal/stream"
)

type application struct {
	config     *config.Config
	logger     *slog.Logger
	out        io.Writer
	samplePath string
	urls       int
	dupRate    float64
	sized      bool // -bloom-items given explicitly
}

// dedupStats is the outcome of one pass over a URL stream.
type dedupStats struct {
	Total           uint64
	UniqueBloom     uint64
	DuplicatesBloom uint64
	UniqueExact     uint64
	DuplicatesExact uint64
	FalsePositives  uint64
	BloomMemory     uint64
	ExactMemory     uint64
	NumBits         uint64
	NumHashes       uint64
	TheoreticalFPR  float64
}

// FalsePositiveRate is the share of new URLs the filter wrongly dropped.
func (s dedupStats) FalsePositiveRate() float64 {
	if s.UniqueExact == 0 {
		return 0
	}
	return float64(s.FalsePositives) / float64(s.UniqueExact)
}

func main() {
	fs := flag.CommandLine
	flags := config.Default()
	flags.Flags(fs)
	configPath := fs.String("config", "", "Optional YAML config file")
	samplePath := fs.String("sample", "url_stream.txt", "Where to write the synthetic stream when no file is given")
	urls := fs.Int("urls", 100000, "Number of synthetic URLs to generate")
	dupRate := fs.Float64("dup-rate", 0.3, "Share of synthetic URLs that repeat a recent one")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Resolve(fs, flags, *configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	sized := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "bloom-items" {
			sized = true
		}
	})

	app := &application{
		config:     cfg,
		logger:     logger,
		out:        os.Stdout,
		samplePath: *samplePath,
		urls:       *urls,
		dupRate:    *dupRate,
		sized:      sized,
	}

	if err := app.run(flag.Arg(0)); err != nil {
		logger.Error("url dedup failed", "error", err)
		os.Exit(1)
	}
}

func (app *application) run(path string) error {
	var expected uint64

	if path == "" {
		if err := app.generate(); err != nil {
			return err
		}
		path = app.samplePath
		expected = uint64(float64(app.urls) * (1 - app.dupRate) * 1.2)
	} else {
		n, err := countLines(path)
		if err != nil {
			return err
		}
		expected = n
	}
	if app.sized {
		expected = app.config.Bloom.ExpectedItems
	}
	if expected == 0 {
		expected = 1
	}

	fmt.Fprintf(app.out, "Processing URL stream from: %s\n", path)
	fmt.Fprintf(app.out, "Expected unique URLs: ~%d\n", expected)
	fmt.Fprintf(app.out, "Target false positive rate: %.2f%%\n", app.config.Bloom.FalsePositiveRate*100)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	stats, err := dedup(f, expected, app.config.Bloom.FalsePositiveRate)
	if err != nil {
		return err
	}

	app.logger.Info("url stream processed",
		"file", path,
		"urls", stats.Total,
		"false_positives", stats.FalsePositives)

	app.print(stats)
	return nil
}

func (app *application) generate() error {
	f, err := os.Create(app.samplePath)
	if err != nil {
		return err
	}

	seed := app.config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	fmt.Fprintf(app.out, "Generating %d URLs with %.0f%% duplicate rate...\n", app.urls, app.dupRate*100)
	if err := stream.GenerateURLs(f, app.urls, app.dupRate, rng); err != nil {
		_ = f.Close()
		return fmt.Errorf("generate urls: %w", err)
	}
	return f.Close()
}

func countLines(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	var n uint64
	err = stream.ReadLines(f, func(string) error {
		n++
		return nil
	})
	return n, err
}

// dedup runs every normalized URL of r through a Bloom filter sized for
// expected items and through an exact set. A URL the filter reports as seen is
// dropped; it is a false positive when the exact set has not seen it.
func dedup(r io.Reader, expected uint64, fpRate float64) (dedupStats, error) {
	filter, err := bloom.NewOptimal(expected, fpRate)
	if err != nil {
		return dedupStats{}, err
	}
	set := exact.NewSet()

	var s dedupStats
	err = stream.ReadLines(r, func(line string) error {
		url := []byte(stream.NormalizeURL(line))
		if len(url) == 0 {
			return nil
		}
		s.Total++

		bloomSeen := filter.Query(url)
		exactNew := set.Add(url)

		if bloomSeen {
			s.DuplicatesBloom++
			if exactNew {
				s.FalsePositives++
			}
		} else {
			filter.Insert(url)
			s.UniqueBloom++
		}

		if exactNew {
			s.UniqueExact++
		} else {
			s.DuplicatesExact++
		}
		return nil
	})
	if err != nil {
		return dedupStats{}, err
	}

	s.BloomMemory = filter.MemoryUsage()
	s.ExactMemory = set.MemoryUsage()
	s.NumBits = filter.NumBits()
	s.NumHashes = filter.NumHashes()
	s.TheoreticalFPR = filter.FalsePositiveRate()
	return s, nil
}

func (app *application) print(s dedupStats) {
	w := app.out
	kb := func(b uint64) float64 { return float64(b) / 1024 }

	fmt.Fprintf(w, "\nTotal URLs processed:        %10d\n", s.Total)

	fmt.Fprintf(w, "\nBloom filter (%d bits, %d hashes)\n", s.NumBits, s.NumHashes)
	fmt.Fprintf(w, "  Unique URLs detected:      %10d\n", s.UniqueBloom)
	fmt.Fprintf(w, "  Duplicates filtered:       %10d\n", s.DuplicatesBloom)
	fmt.Fprintf(w, "  Memory usage:              %10.2f KB\n", kb(s.BloomMemory))

	fmt.Fprintf(w, "\nExact set\n")
	fmt.Fprintf(w, "  Unique URLs:               %10d\n", s.UniqueExact)
	fmt.Fprintf(w, "  Actual duplicates:         %10d\n", s.DuplicatesExact)
	fmt.Fprintf(w, "  Memory usage:              %10.2f KB\n", kb(s.ExactMemory))

	fmt.Fprintf(w, "\nAccuracy\n")
	fmt.Fprintf(w, "  False positives:           %10d\n", s.FalsePositives)
	fmt.Fprintf(w, "  False positive rate:       %10.4f%%\n", s.FalsePositiveRate()*100)
	fmt.Fprintf(w, "  Theoretical rate:          %10.4f%%\n", s.TheoreticalFPR*100)
	if s.BloomMemory > 0 {
		fmt.Fprintf(w, "  Memory savings:            %10.2fx\n", float64(s.ExactMemory)/float64(s.BloomMemory))
	}
}
