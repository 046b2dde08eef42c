// spellcheck loads a dictionary into a Bloom filter and reports the words of a
// text that the filter has definitely never seen.
//
// Usage
// =====
//
//	spellcheck [-bloom-fp 0.01] [-config sketch.yaml] <dictionary> <text>
//
// The dictionary holds one word per line. The filter is sized for the number
// of dictionary lines at the configured false positive rate. Every word of the
// text is normalized (lowercased, letters and apostrophes only) before the
// lookup, so "Hello," matches a dictionary entry "hello".
//
// A word the filter rejects is certainly absent from the dictionary. A word it
// accepts may still be misspelled with probability close to the target rate,
// which is why the report says "possibly".

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"sketch.lopezb.com/internal/config"
	"sketch.lopezb.com/internal/pds/bloom"
	"sketch.lopezb.com/internal/stream"
)

type application struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer
}

// checkResult summarizes a pass over the text.
type checkResult struct {
	Checked    int
	Misspelled []string
}

func main() {
	fs := flag.CommandLine
	flags := config.Default()
	flags.Flags(fs)
	configPath := fs.String("config", "", "Optional YAML config file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <dictionary> <text>\n", os.Args[0])
		fs.PrintDefaults()
	}
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if flag.NArg() < 2 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Resolve(fs, flags, *configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	app := &application{config: cfg, logger: logger, out: os.Stdout}
	if err := app.run(flag.Arg(0), flag.Arg(1)); err != nil {
		logger.Error("spellcheck failed", "error", err)
		os.Exit(1)
	}
}

func (app *application) run(dictPath, textPath string) error {
	filter, err := app.loadDictionary(dictPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "Bloom filter: %d bits, %d hashes, %d bytes\n",
		filter.NumBits(), filter.NumHashes(), filter.MemoryUsage())
	fmt.Fprintf(app.out, "Loaded %d words\n", filter.NumItems())
	fmt.Fprintf(app.out, "Theoretical FP rate: %.4f%%\n", filter.FalsePositiveRate()*100)

	f, err := os.Open(textPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	res, err := check(filter, f)
	if err != nil {
		return fmt.Errorf("check %s: %w", textPath, err)
	}

	fmt.Fprintf(app.out, "\nChecking words from %q:\n", textPath)
	for _, w := range res.Misspelled {
		fmt.Fprintf(app.out, "  x %q possibly misspelled\n", w)
	}
	fmt.Fprintf(app.out, "Total words checked: %d\n", res.Checked)
	fmt.Fprintf(app.out, "Possibly misspelled: %d\n", len(res.Misspelled))

	app.logger.Info("spellcheck complete",
		"dictionary", dictPath,
		"checked", res.Checked,
		"misspelled", len(res.Misspelled))
	return nil
}

// loadDictionary counts the dictionary's lines to size the filter, then
// inserts every normalized entry.
func (app *application) loadDictionary(path string) (*bloom.Filter, error) {
	lines, err := countLines(path)
	if err != nil {
		return nil, err
	}
	if lines == 0 {
		return nil, errors.New("empty dictionary")
	}
	fmt.Fprintf(app.out, "Dictionary entries: %d\n", lines)

	filter, err := bloom.NewOptimal(lines, app.config.Bloom.FalsePositiveRate)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	err = stream.ReadLines(f, func(line string) error {
		if w := stream.NormalizeWord(line); w != "" {
			filter.Insert([]byte(w))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return filter, nil
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

// check looks up every word of r. Words are reported in order of first
// appearance, each once.
func check(filter *bloom.Filter, r io.Reader) (checkResult, error) {
	var res checkResult
	reported := make(map[string]bool)

	err := stream.ReadLines(r, func(line string) error {
		for _, w := range stream.Words(line) {
			res.Checked++
			if filter.Query([]byte(w)) || reported[w] {
				continue
			}
			reported[w] = true
			res.Misspelled = append(res.Misspelled, w)
		}
		return nil
	})
	return res, err
}
