package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"sketch.lopezb.com/internal/config"
)

func newTestApp(n int) (*application, *bytes.Buffer) {
	cfg := config.Default()
	cfg.Seed = 1

	var out bytes.Buffer
	return &application{
		config: cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		out:    &out,
		n:      n,
	}, &out
}

func TestRun(t *testing.T) {
	const throughput = "concurrent inserts: 2000 keys, 4 workers, 16 shards"

	tests := []struct {
		structure string
		want      []string
	}{
		{structure: "bloom", want: []string{"== bloom (n=2000) ==", "bits-and-blooms/bloom", "exact set", throughput}},
		{structure: "cbf", want: []string{"== cbf (n=2000) ==", "counting bloom (4-bit)", "bloom (no delete)", "deleted=1000"}},
		{structure: "cms", want: []string{"== cms (n=2000) ==", "count-min (conservative)", "exact counter", throughput}},
		{structure: "hll", want: []string{"== hll (n=2000) ==", "axiomhq/hyperloglog", "precision=14", throughput}},
		{structure: "all", want: []string{"== bloom", "== cbf", "== cms", "== hll", throughput}},
	}

	for _, tt := range tests {
		t.Run(tt.structure, func(t *testing.T) {
			defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

			app, out := newTestApp(2000)
			if err := app.run(context.Background(), tt.structure); err != nil {
				t.Fatalf("run(%q) failed: %v", tt.structure, err)
			}

			got := out.String()
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("output missing %q:\n%s", want, got)
				}
			}
		})
	}
}

func TestRun_CountingSkipsThroughput(t *testing.T) {
	app, out := newTestApp(500)
	if err := app.run(context.Background(), "cbf"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.Contains(out.String(), "concurrent inserts") {
		t.Errorf("counting filter reported throughput:\n%s", out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	app, _ := newTestApp(10)
	if err := app.run(context.Background(), "treap"); !errors.Is(err, errUnknownStructure) {
		t.Errorf("got %v, want errUnknownStructure", err)
	}

	app, _ = newTestApp(0)
	if err := app.run(context.Background(), "bloom"); err == nil {
		t.Error("expected error for n=0")
	}
}

func TestSequentialKeys(t *testing.T) {
	keys := sequentialKeys("k", 3)
	if len(keys) != 3 || string(keys[0]) != "k-0" || string(keys[2]) != "k-2" {
		t.Errorf("got %q", keys)
	}
}
