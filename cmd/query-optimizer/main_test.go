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
	"sketch.lopezb.com/internal/query"
)

func newTestApp() (*application, *bytes.Buffer) {
	cfg := config.Default()
	cfg.Seed = 7

	var out bytes.Buffer
	return &application{
		config:       cfg,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		out:          &out,
		customers:    200,
		orders:       500,
		products:     100,
		pointQueries: 400,
		rangeQueries: 20,
		rangeWidth:   10,
	}, &out
}

// results returns the result count printed on the line for plan.
func results(t *testing.T, out, plan string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "  "+plan+":"); ok {
			return strings.Fields(rest)[0]
		}
	}
	t.Fatalf("no line for %q:\n%s", plan, out)
	return ""
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	app, out := newTestApp()
	if err := app.run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Tables (seed 7, target false positive rate 1.00%):",
		"customers       200 rows",
		"orders          500 rows",
		"products        100 rows",
		"== Point queries (400 on customers) ==",
		"== Range queries (20, width 10 on customers) ==",
		"== Foreign key lookups (400 on orders) ==",
		"== Join orders x customers (500 x 200 rows) ==",
		"inner scans skipped:",
		"== Memory ==",
		"pk bloom",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	pairs := [][2]string{
		{"bloom + index", "full scan"},
		{"bloom join", "naive join"},
	}
	for _, p := range pairs {
		if a, b := results(t, got, p[0]), results(t, got, p[1]); a != b {
			t.Errorf("%s found %s results, %s found %s", p[0], a, p[1], b)
		}
	}
	// Every window starts inside [1, 200], so the last one may be clipped.
	if n := results(t, got, "skip list"); n == "0" {
		t.Error("range queries returned nothing")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	build := func() *database {
		app, _ := newTestApp()
		db, err := app.build(context.Background(), app.rng())
		if err != nil {
			t.Fatalf("build failed: %v", err)
		}
		return db
	}

	a, b := build(), build()
	pairs := [][2]*query.Table{
		{a.customers, b.customers},
		{a.orders, b.orders},
		{a.products, b.products},
	}
	for _, p := range pairs {
		if p[0].Len() != p[1].Len() || p[0].IndexLevel() != p[1].IndexLevel() {
			t.Errorf("%s: len %d/%d, level %d/%d", p[0].Name,
				p[0].Len(), p[1].Len(), p[0].IndexLevel(), p[1].IndexLevel())
			continue
		}
		for i := range p[0].Len() {
			if p[0].Row(i) != p[1].Row(i) {
				t.Fatalf("%s row %d: %+v vs %+v", p[0].Name, i, p[0].Row(i), p[1].Row(i))
			}
		}
	}

	if got := a.orders.Row(0).ID; got != 2001 {
		t.Errorf("first order ID: got %d, want 2001", got)
	}
}

func TestRun_Errors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	app, _ := newTestApp()
	app.customers = 0
	if err := app.run(context.Background()); !errors.Is(err, query.ErrInvalidTable) {
		t.Errorf("empty customers: got %v, want ErrInvalidTable", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	app, _ = newTestApp()
	if err := app.run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: got %v, want context.Canceled", err)
	}
}
