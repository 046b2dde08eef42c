// Package compare measures the structures of internal/pds against exact
// answers and against established third-party implementations:
//
//   - bloom.Filter against github.com/bits-and-blooms/bloom/v3, sized for the
//     same n and p.
//   - hyperloglog.HLL against github.com/axiomhq/hyperloglog (HLL++ with
//     sparse mode and bias correction) at the same precision.
//   - cms.Sketch, with standard and conservative update, against an exact
//     counter.
//   - bloom.CountingFilter against a plain bloom.Filter of the same geometry,
//     after deletions.
//
// Each function returns a report the command line tools print as a table.
package compare

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	axiom "github.com/axiomhq/hyperloglog"
	refbloom "github.com/bits-and-blooms/bloom/v3"

	"sketch.lopezb.com/internal/pds/bloom"
	"sketch.lopezb.com/internal/pds/cms"
	"sketch.lopezb.com/internal/pds/exact"
	"sketch.lopezb.com/internal/pds/hyperloglog"
)

// MembershipRow is one filter's result in a BloomReport.
type MembershipRow struct {
	Name           string
	Bits           uint64
	Hashes         uint64
	FalsePositives int
	Rate           float64
	MemoryBytes    uint64
}

// BloomReport compares false positive rates on a fixed query set.
type BloomReport struct {
	Items       int
	Queries     int
	Target      float64
	Rows        []MembershipRow
	ExactMemory uint64
}

// Bloom inserts keys into both filters, sized for len(keys) items at rate p,
// then counts how many queries not among keys each filter reports present.
func Bloom(keys, queries [][]byte, p float64) (BloomReport, error) {
	n := uint64(len(keys))
	if n == 0 {
		n = 1
	}

	ours, err := bloom.NewOptimal(n, p)
	if err != nil {
		return BloomReport{}, err
	}
	ref := refbloom.NewWithEstimates(uint(n), p)
	set := exact.NewSet()

	for _, k := range keys {
		ours.Insert(k)
		ref.Add(k)
		set.Add(k)
	}

	var oursFP, refFP, negatives int
	for _, q := range queries {
		if set.Contains(q) {
			continue
		}
		negatives++
		if ours.Query(q) {
			oursFP++
		}
		if ref.Test(q) {
			refFP++
		}
	}

	rate := func(fp int) float64 {
		if negatives == 0 {
			return 0
		}
		return float64(fp) / float64(negatives)
	}

	return BloomReport{
		Items:  len(keys),
		Queries: negatives,
		Target: p,
		Rows: []MembershipRow{
			{
				Name:           "bloom (murmur64a)",
				Bits:           ours.NumBits(),
				Hashes:         ours.NumHashes(),
				FalsePositives: oursFP,
				Rate:           rate(oursFP),
				MemoryBytes:    ours.MemoryUsage(),
			},
			{
				Name:           "bits-and-blooms/bloom",
				Bits:           uint64(ref.Cap()),
				Hashes:         uint64(ref.K()),
				FalsePositives: refFP,
				Rate:           rate(refFP),
				MemoryBytes:    (uint64(ref.Cap()) + 7) / 8,
			},
		},
		ExactMemory: set.MemoryUsage(),
	}, nil
}

// WriteTo prints the report as an aligned table.
func (r BloomReport) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "items=%d\tnegative queries=%d\ttarget p=%.4f\n", r.Items, r.Queries, r.Target)
	fmt.Fprintln(tw, "filter\tbits\tk\tfalse positives\trate\tmemory")
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.4f\t%d B\n",
			row.Name, row.Bits, row.Hashes, row.FalsePositives, row.Rate, row.MemoryBytes)
	}
	fmt.Fprintf(tw, "exact set\t-\t-\t0\t0\t%d B\n", r.ExactMemory)

	err := tw.Flush()
	return cw.n, err
}

// EstimateRow is one estimator's result in a CardinalityReport.
type EstimateRow struct {
	Name        string
	Estimate    uint64
	RelError    float64
	MemoryBytes uint64
}

// CardinalityReport compares distinct-count estimates.
type CardinalityReport struct {
	Precision uint8
	True      uint64
	Rows      []EstimateRow
}

// Cardinality adds keys to both HLLs and an exact set at the given precision.
func Cardinality(keys [][]byte, precision uint8) (CardinalityReport, error) {
	ours, err := hyperloglog.New(precision)
	if err != nil {
		return CardinalityReport{}, err
	}
	ref, err := axiom.NewSketch(precision, true)
	if err != nil {
		return CardinalityReport{}, fmt.Errorf("reference hll: %w", err)
	}
	set := exact.NewSet()

	for _, k := range keys {
		ours.Add(k)
		ref.Insert(k)
		set.Add(k)
	}

	truth := uint64(set.Len())

	// The serialized size stands in for the reference sketch's footprint.
	refMem := uint64(0)
	if b, err := ref.MarshalBinary(); err == nil {
		refMem = uint64(len(b))
	}

	return CardinalityReport{
		Precision: precision,
		True:      truth,
		Rows: []EstimateRow{
			{Name: "hyperloglog", Estimate: ours.Count(), RelError: relErr(ours.Count(), truth), MemoryBytes: ours.MemoryUsage()},
			{Name: "axiomhq/hyperloglog", Estimate: ref.Estimate(), RelError: relErr(ref.Estimate(), truth), MemoryBytes: refMem},
			{Name: "exact set", Estimate: truth, MemoryBytes: set.MemoryUsage()},
		},
	}, nil
}

// WriteTo prints the report as an aligned table.
func (r CardinalityReport) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "precision=%d\ttrue distinct=%d\n", r.Precision, r.True)
	fmt.Fprintln(tw, "estimator\testimate\terror\tmemory")
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%d\t%.2f%%\t%d B\n", row.Name, row.Estimate, row.RelError*100, row.MemoryBytes)
	}

	err := tw.Flush()
	return cw.n, err
}

// Event is one weighted occurrence in a frequency stream.
type Event struct {
	Key   []byte
	Count uint32
}

// FrequencyRow is one sketch's result in a FrequencyReport.
type FrequencyRow struct {
	Name           string
	MeanAbsError   float64
	MaxError       uint64
	OverBound      int
	Underestimates int
	MemoryBytes    uint64
}

// FrequencyReport compares per-key frequency estimates with exact counts.
type FrequencyReport struct {
	Width, Depth uint32
	Total        uint64
	Distinct     int
	Bound        float64
	Rows         []FrequencyRow
}

// Frequency feeds events to a standard and a conservative-update sketch sized
// from epsilon and delta, then measures every distinct key's overestimate.
// OverBound counts keys whose error exceeds epsilon times the stream total.
func Frequency(events []Event, epsilon, delta float64) (FrequencyReport, error) {
	std, err := cms.NewOptimal(epsilon, delta)
	if err != nil {
		return FrequencyReport{}, err
	}
	cu, err := cms.New(std.Width(), std.Depth())
	if err != nil {
		return FrequencyReport{}, err
	}
	counter := exact.NewCounter()

	for _, ev := range events {
		std.Update(ev.Key, int32(ev.Count))
		cu.UpdateConservative(ev.Key, ev.Count)
		counter.Add(ev.Key, uint64(ev.Count))
	}

	bound := epsilon * float64(counter.Total())
	rows := []FrequencyRow{
		{Name: "count-min", MemoryBytes: std.MemoryUsage()},
		{Name: "count-min (conservative)", MemoryBytes: cu.MemoryUsage()},
	}
	sketches := []*cms.Sketch{std, cu}

	var sumErr [2]float64
	counter.Each(func(key string, want uint64) {
		for i, s := range sketches {
			got := uint64(s.Query([]byte(key)))
			if got < want {
				rows[i].Underestimates++
				continue
			}
			e := got - want
			sumErr[i] += float64(e)
			if e > rows[i].MaxError {
				rows[i].MaxError = e
			}
			if float64(e) > bound {
				rows[i].OverBound++
			}
		}
	})

	if d := counter.Len(); d > 0 {
		for i := range rows {
			rows[i].MeanAbsError = sumErr[i] / float64(d)
		}
	}

	rows = append(rows, FrequencyRow{Name: "exact counter", MemoryBytes: counter.MemoryUsage()})

	return FrequencyReport{
		Width:    std.Width(),
		Depth:    std.Depth(),
		Total:    counter.Total(),
		Distinct: counter.Len(),
		Bound:    bound,
		Rows:     rows,
	}, nil
}

// WriteTo prints the report as an aligned table.
func (r FrequencyReport) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "width=%d\tdepth=%d\ttotal=%d\tdistinct=%d\teps*N=%.1f\n",
		r.Width, r.Depth, r.Total, r.Distinct, r.Bound)
	fmt.Fprintln(tw, "sketch\tmean error\tmax error\tover bound\tunder\tmemory")
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%.2f\t%d\t%d\t%d\t%d B\n",
			row.Name, row.MeanAbsError, row.MaxError, row.OverBound, row.Underestimates, row.MemoryBytes)
	}

	err := tw.Flush()
	return cw.n, err
}

// DeletionRow is one filter's result in a DeletionReport.
type DeletionRow struct {
	Name           string
	Cells          uint64
	Hashes         uint64
	KeptMissing    int
	DeletedPresent int
	Rate           float64
	MemoryBytes    uint64
}

// DeletionReport shows what each filter reports for removed keys.
type DeletionReport struct {
	Inserted int
	Deleted  int
	Target   float64
	Rows     []DeletionRow
}

// Deletion inserts keys, which must be distinct, into a counting filter and
// a plain filter, both with the geometry NewOptimal picks for len(keys) items
// at rate p. The first remove keys are then deleted from the counting filter;
// the plain filter cannot delete and keeps them.
//
// KeptMissing counts remaining keys a filter no longer reports, which is only
// possible after a 4-bit counter saturated. DeletedPresent counts removed keys
// still reported present.
func Deletion(keys [][]byte, remove int, p float64) (DeletionReport, error) {
	n := uint64(len(keys))
	if n == 0 {
		n = 1
	}
	remove = max(0, min(remove, len(keys)))

	m, k, err := bloom.EstimateParameters(n, p)
	if err != nil {
		return DeletionReport{}, err
	}
	counting, err := bloom.NewCounting(m, k)
	if err != nil {
		return DeletionReport{}, err
	}
	plain, err := bloom.New(m, k)
	if err != nil {
		return DeletionReport{}, err
	}

	for _, key := range keys {
		counting.Insert(key)
		plain.Insert(key)
	}
	for _, key := range keys[:remove] {
		counting.Delete(key)
	}

	rows := []DeletionRow{
		{Name: "counting bloom (4-bit)", Cells: counting.NumCounters(), Hashes: counting.NumHashes(), MemoryBytes: counting.MemoryUsage()},
		{Name: "bloom (no delete)", Cells: plain.NumBits(), Hashes: plain.NumHashes(), MemoryBytes: plain.MemoryUsage()},
	}
	queries := []func([]byte) bool{counting.Query, plain.Query}

	for i, query := range queries {
		for _, key := range keys[:remove] {
			if query(key) {
				rows[i].DeletedPresent++
			}
		}
		for _, key := range keys[remove:] {
			if !query(key) {
				rows[i].KeptMissing++
			}
		}
		if remove > 0 {
			rows[i].Rate = float64(rows[i].DeletedPresent) / float64(remove)
		}
	}

	return DeletionReport{
		Inserted: len(keys),
		Deleted:  remove,
		Target:   p,
		Rows:     rows,
	}, nil
}

// WriteTo prints the report as an aligned table.
func (r DeletionReport) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "inserted=%d\tdeleted=%d\ttarget p=%.4f\n", r.Inserted, r.Deleted, r.Target)
	fmt.Fprintln(tw, "filter\tcells\tk\tkept missing\tdeleted present\trate\tmemory")
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.4f\t%d B\n",
			row.Name, row.Cells, row.Hashes, row.KeptMissing, row.DeletedPresent, row.Rate, row.MemoryBytes)
	}

	err := tw.Flush()
	return cw.n, err
}

func relErr(got, want uint64) float64 {
	if want == 0 {
		if got == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(float64(got)-float64(want)) / float64(want)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
