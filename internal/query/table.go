// Package query runs point, range and join queries over in-memory tables and
// counts the work each access path does, so a Bloom-guarded plan can be
// compared with a plain scan.
//
// ============================================================================
// ACCESS PATHS
// ============================================================================
//
// Every Table keeps three auxiliary structures next to its rows:
//
//	pkBloom   Bloom filter over primary keys
//	fkBloom   Bloom filter over foreign key values
//	pkIndex   skip list from primary key to row position
//
// A lookup asks the filter first. A negative answer is final, so a miss costs
// k hash positions and no row access. A positive answer falls through to the
// index or to a scan and may turn out to be a false positive.
//
// Keys are hashed as 4-byte little-endian integers.
package query

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"

	"sketch.lopezb.com/internal/pds/bloom"
	"sketch.lopezb.com/internal/pds/hyperloglog"
	"sketch.lopezb.com/internal/pds/skiplist"
)

// ErrDuplicateKey is returned by NewTable when two rows share a primary key.
var ErrDuplicateKey = errors.New("query: duplicate primary key")

// ErrInvalidTable is returned by Generate for a non-positive row count or
// foreign key range.
var ErrInvalidTable = errors.New("query: invalid table shape")

// DefaultFalsePositiveRate sizes both filters when Options leaves it unset.
const DefaultFalsePositiveRate = 0.01

// Row is one record. ForeignKey refers to the ID of a row in another table.
type Row struct {
	ID         int
	Name       string
	ForeignKey int
	Value      float64
}

// Options configures the auxiliary structures of a Table.
type Options struct {
	// FalsePositiveRate of both Bloom filters. Zero means
	// DefaultFalsePositiveRate.
	FalsePositiveRate float64
	// Precision of the distinct foreign key counter. Values outside the
	// valid HLL range fall back to the HLL default.
	Precision uint8
	// Rng drives the skip list tower heights. Nil means randomly seeded.
	Rng *rand.Rand
}

// Table is an immutable set of rows with a Bloom filter on each key column and
// an ordered primary key index. Queries do not modify the table, so a Table is
// safe for concurrent queries as long as each goroutine uses its own Stats.
type Table struct {
	Name string

	rows       []Row
	pkBloom    *bloom.Filter
	fkBloom    *bloom.Filter
	pkIndex    *skiplist.List[int, int]
	fkDistinct *hyperloglog.HLL
}

// Generate returns n rows with IDs pkStart, pkStart+1, ... and foreign keys
// drawn uniformly from [0, fkRange). Values are uniform in [0, 1000).
func Generate(n, pkStart, fkRange int, rng *rand.Rand) ([]Row, error) {
	if n < 1 || fkRange < 1 {
		return nil, fmt.Errorf("%w: %d rows, foreign key range %d", ErrInvalidTable, n, fkRange)
	}

	rows := make([]Row, n)
	for i := range rows {
		id := pkStart + i
		rows[i] = Row{
			ID:         id,
			Name:       fmt.Sprintf("record_%d", id),
			ForeignKey: rng.IntN(fkRange),
			Value:      rng.Float64() * 1000,
		}
	}
	return rows, nil
}

// NewTable indexes rows. The table keeps the slice; callers must not modify it
// afterwards.
func NewTable(name string, rows []Row, opts Options) (*Table, error) {
	fp := opts.FalsePositiveRate
	if fp == 0 {
		fp = DefaultFalsePositiveRate
	}
	n := uint64(max(len(rows), 1))

	pkBloom, err := bloom.NewOptimal(n, fp)
	if err != nil {
		return nil, fmt.Errorf("table %s: primary key filter: %w", name, err)
	}
	fkBloom, err := bloom.NewOptimal(n, fp)
	if err != nil {
		return nil, fmt.Errorf("table %s: foreign key filter: %w", name, err)
	}

	t := &Table{
		Name:       name,
		rows:       rows,
		pkBloom:    pkBloom,
		fkBloom:    fkBloom,
		pkIndex:    skiplist.New[int, int](opts.Rng),
		fkDistinct: hyperloglog.NewLenient(opts.Precision),
	}

	for i, r := range rows {
		if !t.pkIndex.Insert(r.ID, i) {
			return nil, fmt.Errorf("table %s: %w: %d", name, ErrDuplicateKey, r.ID)
		}
		t.pkBloom.Insert(key(r.ID))
		fk := key(r.ForeignKey)
		t.fkBloom.Insert(fk)
		t.fkDistinct.Add(fk)
	}
	return t, nil
}

func key(v int) []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, 4), uint32(v))
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns the row at position i.
func (t *Table) Row(i int) Row { return t.rows[i] }

// DistinctForeignKeys estimates how many different foreign key values the
// table holds.
func (t *Table) DistinctForeignKeys() uint64 { return t.fkDistinct.Count() }

// IndexLevel returns the height of the primary key skip list.
func (t *Table) IndexLevel() int { return t.pkIndex.Level() }

// Memory is the approximate footprint of a table in bytes, per structure.
type Memory struct {
	Rows    uint64
	PKBloom uint64
	FKBloom uint64
	Index   uint64
	HLL     uint64
}

// Total returns the sum of all parts.
func (m Memory) Total() uint64 {
	return m.Rows + m.PKBloom + m.FKBloom + m.Index + m.HLL
}

// rowOverhead is the fixed size of a Row: two ints, a float64 and a string
// header.
const rowOverhead = 40

// MemoryUsage returns the approximate footprint of the table.
func (t *Table) MemoryUsage() Memory {
	var rowBytes uint64
	for _, r := range t.rows {
		rowBytes += rowOverhead + uint64(len(r.Name))
	}
	return Memory{
		Rows:    rowBytes,
		PKBloom: t.pkBloom.MemoryUsage(),
		FKBloom: t.fkBloom.MemoryUsage(),
		Index:   t.pkIndex.MemoryUsage(),
		HLL:     t.fkDistinct.MemoryUsage(),
	}
}
