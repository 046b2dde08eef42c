package topk

// Item is a tracked heavy hitter and its estimated count.
type Item struct {
	Key   string
	Count uint64

	// fingerprint breaks count ties so the heap order does not depend on
	// insertion order.
	fingerprint uint64
}

// list is a min-heap of Items keyed by Count. We implement heap operations
// manually instead of using container/heap to avoid interface{} allocation
// overhead on every operation.
type list []Item

// linearSearch finds an item by key using a backwards linear scan. For the
// small k used for heavy hitters the slice fits in cache and a scan beats a
// map lookup plus the bookkeeping to keep the map in sync with heap moves.
func (l list) linearSearch(key string) (int, bool) {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].Key == key {
			return i, true
		}
	}
	return -1, false
}

func (l list) swap(i, j int) { l[i], l[j] = l[j], l[i] }

// less orders by count (min-heap) with fingerprint as tiebreaker.
func (l list) less(i, j int) bool {
	if l[i].Count != l[j].Count {
		return l[i].Count < l[j].Count
	}
	return l[i].fingerprint < l[j].fingerprint
}

// push appends an item and bubbles it up to restore the heap invariant.
func (l *list) push(x Item) {
	*l = append(*l, x)
	l.up(len(*l) - 1)
}

// up bubbles element j toward the root until the heap invariant is restored.
func (l list) up(j int) {
	for {
		i := (j - 1) / 2 // parent
		if i == j || !l.less(j, i) {
			break
		}
		l.swap(i, j)
		j = i
	}
}

// down sinks element i0 toward the leaves. It reports whether the element
// moved.
func (l list) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 { // j1 < 0 after int overflow
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && l.less(j2, j1) {
			j = j2
		}
		if !l.less(j, i) {
			break
		}
		l.swap(i, j)
		i = j
	}
	return i > i0
}

// fix restores the heap invariant after element i changed its count.
func (l list) fix(i int) {
	if !l.down(i, len(l)) {
		l.up(i)
	}
}
