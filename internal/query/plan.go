package query

import "time"

// Stats counts the work done by one or more queries. A Stats value is not
// safe for concurrent use.
type Stats struct {
	BloomLookups        uint64
	BloomPositives      uint64
	BloomFalsePositives uint64
	IndexLookups        uint64
	FullScans           uint64
	RowsExamined        uint64
	RowsMatched         uint64
	Elapsed             time.Duration
}

// FalsePositiveRate returns the share of Bloom lookups for absent keys that
// the filter let through.
func (s Stats) FalsePositiveRate() float64 {
	negatives := s.BloomLookups - (s.BloomPositives - s.BloomFalsePositives)
	if negatives == 0 {
		return 0
	}
	return float64(s.BloomFalsePositives) / float64(negatives)
}

// PointBloom finds the row with primary key id. The primary key filter rules
// out absent keys before the index is touched.
func (t *Table) PointBloom(id int, s *Stats) (Row, bool) {
	s.BloomLookups++
	if !t.pkBloom.Query(key(id)) {
		return Row{}, false
	}
	s.BloomPositives++

	s.IndexLookups++
	i, ok := t.pkIndex.Get(id)
	if !ok {
		s.BloomFalsePositives++
		return Row{}, false
	}
	s.RowsExamined++
	s.RowsMatched++
	return t.rows[i], true
}

// PointScan finds the row with primary key id by reading rows in order.
func (t *Table) PointScan(id int, s *Stats) (Row, bool) {
	s.FullScans++
	for _, r := range t.rows {
		s.RowsExamined++
		if r.ID == id {
			s.RowsMatched++
			return r, true
		}
	}
	return Row{}, false
}

// Range returns rows with low <= ID <= high in ascending ID order, at most
// limit of them. A limit <= 0 means no limit.
func (t *Table) Range(low, high, limit int, s *Stats) []Row {
	s.IndexLookups++
	var out []Row
	t.pkIndex.Range(low, high, func(_, i int) bool {
		s.RowsExamined++
		s.RowsMatched++
		out = append(out, t.rows[i])
		return limit <= 0 || len(out) < limit
	})
	return out
}

// ReferencingBloom returns the rows whose foreign key is fk. The foreign key
// filter skips the scan when no row can match.
func (t *Table) ReferencingBloom(fk int, s *Stats) []Row {
	s.BloomLookups++
	if !t.fkBloom.Query(key(fk)) {
		return nil
	}
	s.BloomPositives++

	out := t.scanForeign(fk, s)
	if len(out) == 0 {
		s.BloomFalsePositives++
	}
	return out
}

// ReferencingScan returns the rows whose foreign key is fk with a full scan.
func (t *Table) ReferencingScan(fk int, s *Stats) []Row {
	return t.scanForeign(fk, s)
}

func (t *Table) scanForeign(fk int, s *Stats) []Row {
	s.FullScans++
	var out []Row
	for _, r := range t.rows {
		s.RowsExamined++
		if r.ForeignKey == fk {
			s.RowsMatched++
			out = append(out, r)
		}
	}
	return out
}

// JoinBloom counts the pairs (o, i) with o.ForeignKey == i.ID, o from outer and
// i from inner. Outer rows whose foreign key is not in inner's primary key
// filter skip the inner scan.
func JoinBloom(outer, inner *Table, s *Stats) int {
	matches := 0
	for _, o := range outer.rows {
		s.BloomLookups++
		if !inner.pkBloom.Query(key(o.ForeignKey)) {
			continue
		}
		s.BloomPositives++

		n := inner.joinScan(o.ForeignKey, s)
		if n == 0 {
			s.BloomFalsePositives++
		}
		matches += n
	}
	return matches
}

// JoinNaive counts the same pairs as JoinBloom with a nested loop.
func JoinNaive(outer, inner *Table, s *Stats) int {
	matches := 0
	for _, o := range outer.rows {
		matches += inner.joinScan(o.ForeignKey, s)
	}
	return matches
}

func (t *Table) joinScan(id int, s *Stats) int {
	s.FullScans++
	n := 0
	for _, r := range t.rows {
		s.RowsExamined++
		if r.ID == id {
			s.RowsMatched++
			n++
		}
	}
	return n
}
