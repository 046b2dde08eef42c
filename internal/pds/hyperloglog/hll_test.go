package hyperloglog

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestNew(t *testing.T) {
	for p := uint8(MinPrecision); p <= MaxPrecision; p++ {
		h, err := New(p)
		if err != nil {
			t.Fatalf("New(%d) failed: %v", p, err)
		}
		if h.Precision() != p {
			t.Errorf("Precision: got %d, want %d", h.Precision(), p)
		}
		if h.NumRegisters() != 1<<p {
			t.Errorf("NumRegisters at p=%d: got %d, want %d", p, h.NumRegisters(), 1<<p)
		}
		if h.MemoryUsage() != 1<<p {
			t.Errorf("MemoryUsage at p=%d: got %d, want %d", p, h.MemoryUsage(), 1<<p)
		}
	}
}

func TestNew_InvalidPrecision(t *testing.T) {
	for _, p := range []uint8{0, 3, 19, 64, 255} {
		h, err := New(p)
		if !errors.Is(err, ErrInvalidPrecision) {
			t.Errorf("New(%d): got error %v, want ErrInvalidPrecision", p, err)
		}
		if h != nil {
			t.Errorf("New(%d): expected nil HLL on error", p)
		}
	}
}

func TestNewLenient(t *testing.T) {
	tests := []struct {
		precision uint8
		want      uint8
	}{
		{precision: 2, want: DefaultPrecision},
		{precision: 20, want: DefaultPrecision},
		{precision: 4, want: 4},
		{precision: 18, want: 18},
		{precision: 10, want: 10},
	}

	for _, tt := range tests {
		if got := NewLenient(tt.precision).Precision(); got != tt.want {
			t.Errorf("NewLenient(%d).Precision(): got %d, want %d", tt.precision, got, tt.want)
		}
	}

	if n := NewLenient(2).NumRegisters(); n != 16384 {
		t.Errorf("NumRegisters after fallback: got %d, want 16384", n)
	}
}

func TestHashToIndexAndRank(t *testing.T) {
	// hash.Sum64("hello", Seed) = 0xac79a73e236129ef
	tests := []struct {
		p         uint8
		wantIndex uint32
		wantRank  uint8
	}{
		{p: 4, wantIndex: 10, wantRank: 1},
		{p: 14, wantIndex: 11038, wantRank: 2},
		{p: 18, wantIndex: 176614, wantRank: 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("p=%d", tt.p), func(t *testing.T) {
			index, rank := hashToIndexAndRank([]byte("hello"), tt.p)
			if index != tt.wantIndex {
				t.Errorf("index: got %d, want %d", index, tt.wantIndex)
			}
			if rank != tt.wantRank {
				t.Errorf("rank: got %d, want %d", rank, tt.wantRank)
			}
		})
	}
}

func TestAlpha(t *testing.T) {
	tests := []struct {
		p    uint8
		want float64
	}{
		{p: 4, want: 0.673},
		{p: 5, want: 0.697},
		{p: 6, want: 0.709},
		{p: 7, want: 0.7213 / (1 + 1.079/128)},
		{p: 14, want: 0.7213 / (1 + 1.079/16384)},
	}

	for _, tt := range tests {
		if got := alpha(tt.p); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("alpha(%d): got %v, want %v", tt.p, got, tt.want)
		}
	}
}

// TestAdd verifies register updates and the Add return value.
func TestAdd(t *testing.T) {
	t.Run("first add changes a register", func(t *testing.T) {
		h, _ := New(14)
		if !h.Add([]byte("hello")) {
			t.Error("first Add should return true")
		}
		if got := h.Registers()[11038]; got != 2 {
			t.Errorf("register 11038: got %d, want 2", got)
		}
	})

	t.Run("duplicate add is a no-op", func(t *testing.T) {
		h, _ := New(14)
		h.Add([]byte("hello"))
		before := h.Registers()

		if h.Add([]byte("hello")) {
			t.Error("duplicate Add should return false")
		}

		after := h.Registers()
		for i := range before {
			if before[i] != after[i] {
				t.Fatalf("register %d changed on duplicate add", i)
			}
		}
	})

	t.Run("registers are monotonic and bounded", func(t *testing.T) {
		const p = 10
		h, _ := New(p)
		prev := h.Registers()

		for i := 0; i < 20000; i++ {
			h.Add([]byte(fmt.Sprintf("mono-%d", i)))

			if i%1000 != 0 {
				continue
			}
			cur := h.Registers()
			for j := range cur {
				if cur[j] < prev[j] {
					t.Fatalf("register %d decreased from %d to %d", j, prev[j], cur[j])
				}
				if cur[j] > 64-p+1 {
					t.Fatalf("register %d holds rank %d, above bound %d", j, cur[j], 64-p+1)
				}
			}
			prev = cur
		}
	})
}

func TestRegistersReturnsCopy(t *testing.T) {
	h, _ := New(4)
	h.Add([]byte("hello"))

	regs := h.Registers()
	regs[10] = 60

	if h.Registers()[10] == 60 {
		t.Error("mutating the returned slice changed the HLL")
	}
}

// TestCount validates accuracy across different cardinalities and precisions.
func TestCount(t *testing.T) {
	t.Run("empty HLL returns zero", func(t *testing.T) {
		for _, p := range []uint8{4, 14, 18} {
			h, _ := New(p)
			if got := h.Count(); got != 0 {
				t.Errorf("p=%d: expected empty HLL to have cardinality 0, got %d", p, got)
			}
		}
	})

	t.Run("ten distinct keys", func(t *testing.T) {
		h, _ := New(10)
		for i := 0; i < 10; i++ {
			h.Add([]byte(fmt.Sprintf("key-%d", i)))
		}

		// Linear counting is exact enough at this load to land on 10.
		if got := h.Count(); got != 10 {
			t.Errorf("got %d, want 10", got)
		}
	})

	t.Run("duplicates do not inflate", func(t *testing.T) {
		h, _ := New(14)
		for round := 0; round < 5; round++ {
			for i := 0; i < 1000; i++ {
				h.Add([]byte(fmt.Sprintf("item-%d", i)))
			}
		}

		once, _ := New(14)
		for i := 0; i < 1000; i++ {
			once.Add([]byte(fmt.Sprintf("item-%d", i)))
		}

		if h.Count() != once.Count() {
			t.Errorf("5x duplicates: got %d, single pass %d", h.Count(), once.Count())
		}
	})

	tests := []struct {
		name      string
		precision uint8
		n         int
		tolerance float64
	}{
		{name: "p=14 n=1000", precision: 14, n: 1000, tolerance: 0.03},
		{name: "p=14 n=100000", precision: 14, n: 100000, tolerance: 0.03},
		{name: "p=4 n=1000", precision: 4, n: 1000, tolerance: 0.30},
		{name: "p=18 n=50000", precision: 18, n: 50000, tolerance: 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := New(tt.precision)
			for i := 0; i < tt.n; i++ {
				h.Add([]byte(fmt.Sprintf("item-%d", i)))
			}

			cardinality := h.Count()
			relativeError := math.Abs(float64(cardinality)-float64(tt.n)) / float64(tt.n)

			t.Logf("True=%d, Estimated=%d, Error=%.2f%%", tt.n, cardinality, relativeError*100)

			if relativeError > tt.tolerance {
				t.Errorf("error too high: got %.4f, want less than %.4f", relativeError, tt.tolerance)
			}
		})
	}

	t.Run("one million within three standard errors", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping large cardinality test in short mode")
		}

		const n = 1000000
		h, _ := New(14)
		for i := 0; i < n; i++ {
			h.Add([]byte(fmt.Sprintf("item-%d", i)))
		}

		cardinality := h.Count()
		relativeError := math.Abs(float64(cardinality)-n) / n
		bound := 3 * h.StandardError()

		t.Logf("True=%d, Estimated=%d, Error=%.2f%%", n, cardinality, relativeError*100)

		if relativeError > bound {
			t.Errorf("error too high: got %.4f, want less than %.4f", relativeError, bound)
		}
	})
}

func TestCountIdempotent(t *testing.T) {
	h, _ := New(12)
	for i := 0; i < 5000; i++ {
		h.Add([]byte(fmt.Sprintf("idem-%d", i)))
	}

	first := h.Count()
	for i := 0; i < 3; i++ {
		if got := h.Count(); got != first {
			t.Fatalf("Count changed between calls: %d then %d", first, got)
		}
	}
}

func TestStandardError(t *testing.T) {
	h, _ := New(14)
	want := 1.04 / 128.0
	if got := h.StandardError(); math.Abs(got-want) > 1e-15 {
		t.Errorf("StandardError: got %v, want %v", got, want)
	}
}

func BenchmarkAdd(b *testing.B) {
	h, _ := New(DefaultPrecision)
	elements := make([][]byte, 4096)
	for i := range elements {
		elements[i] = []byte(fmt.Sprintf("bench-%d", i))
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		h.Add(elements[i%len(elements)])
	}
}

func BenchmarkCount(b *testing.B) {
	for _, p := range []uint8{10, 14, 18} {
		h, _ := New(p)
		for i := 0; i < 100000; i++ {
			h.Add([]byte(fmt.Sprintf("bench-%d", i)))
		}

		b.Run(fmt.Sprintf("p=%d", p), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				h.Count()
			}
		})
	}
}
