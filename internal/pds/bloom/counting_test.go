package bloom

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewCounting_Errors(t *testing.T) {
	if _, err := NewCounting(0, 3); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("zero counters: got %v, want ErrInvalidParameter", err)
	}
	if _, err := NewCounting(100, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("zero hashes: got %v, want ErrInvalidParameter", err)
	}
	if _, err := NewCounting(MaxBits, 3); !errors.Is(err, ErrTooLarge) {
		t.Errorf("oversized: got %v, want ErrTooLarge", err)
	}
}

func TestCounting_MemoryUsage(t *testing.T) {
	cf, _ := NewCounting(1001, 4)
	// Two counters per byte, rounded up.
	if cf.MemoryUsage() != 501 {
		t.Errorf("MemoryUsage: got %d, want 501", cf.MemoryUsage())
	}
}

func TestCounting_NibblePacking(t *testing.T) {
	cf, _ := NewCounting(4, 1)

	cf.set(0, 3)
	cf.set(1, 12)
	cf.set(2, 15)

	if cf.counters[0] != 0xC3 {
		t.Errorf("byte 0: got %#x, want 0xc3", cf.counters[0])
	}
	if cf.get(0) != 3 || cf.get(1) != 12 || cf.get(2) != 15 || cf.get(3) != 0 {
		t.Errorf("got counters [%d %d %d %d], want [3 12 15 0]",
			cf.get(0), cf.get(1), cf.get(2), cf.get(3))
	}
}

func TestCounting_InsertDelete(t *testing.T) {
	cf, err := NewCounting(1000, 5)
	if err != nil {
		t.Fatalf("NewCounting failed: %v", err)
	}

	apple := []byte("apple")
	banana := []byte("banana")

	// 1. Insert both
	cf.Insert(apple)
	cf.Insert(banana)
	if !cf.Query(apple) || !cf.Query(banana) {
		t.Fatal("inserted elements not found")
	}
	if cf.NumItems() != 2 {
		t.Errorf("NumItems: got %d, want 2", cf.NumItems())
	}

	// 2. Delete apple. The two keys share no counter at m=1000, k=5, so
	// apple becomes a definite negative while banana survives.
	cf.Delete(apple)
	if cf.Query(apple) {
		t.Error("apple still present after delete")
	}
	if !cf.Query(banana) {
		t.Error("banana lost after deleting apple")
	}
	if cf.NumItems() != 1 {
		t.Errorf("NumItems: got %d, want 1", cf.NumItems())
	}
}

func TestCounting_DuplicateInsert(t *testing.T) {
	cf, _ := NewCounting(1000, 5)
	key := []byte("twice")

	cf.Insert(key)
	cf.Insert(key)
	cf.Delete(key)

	// One copy remains.
	if !cf.Query(key) {
		t.Error("key missing after deleting one of two copies")
	}

	cf.Delete(key)
	if cf.Query(key) {
		t.Error("key present after deleting both copies")
	}
}

func TestCounting_DeleteFloorsAtZero(t *testing.T) {
	cf, _ := NewCounting(64, 3)

	cf.Delete([]byte("ghost"))
	if cf.NumItems() != 0 {
		t.Errorf("NumItems: got %d, want 0", cf.NumItems())
	}
	for i, b := range cf.counters {
		if b != 0 {
			t.Fatalf("counter byte %d underflowed to %#x", i, b)
		}
	}
}

func TestCounting_Saturation(t *testing.T) {
	cf, _ := NewCounting(16, 1)
	key := []byte("hot")

	for i := 0; i < 40; i++ {
		cf.Insert(key)
	}

	for i := uint64(0); i < cf.NumCounters(); i++ {
		if v := cf.get(i); v > counterMax {
			t.Fatalf("counter %d exceeded %d: %d", i, counterMax, v)
		}
	}
	if !cf.Query(key) {
		t.Error("saturated key not found")
	}
}

func TestCounting_NoFalseNegatives(t *testing.T) {
	cf, _ := NewCounting(20000, 5)

	for i := 0; i < 1000; i++ {
		cf.Insert([]byte(fmt.Sprintf("cbf-%d", i)))
	}
	// Remove the odd half.
	for i := 1; i < 1000; i += 2 {
		cf.Delete([]byte(fmt.Sprintf("cbf-%d", i)))
	}

	for i := 0; i < 1000; i += 2 {
		if !cf.Query([]byte(fmt.Sprintf("cbf-%d", i))) {
			t.Fatalf("false negative for cbf-%d", i)
		}
	}
}
