package topk

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew_Errors(t *testing.T) {
	if _, err := New(0, 100, 3); !errors.Is(err, ErrInvalidK) {
		t.Errorf("k=0: got %v, want ErrInvalidK", err)
	}
	if _, err := New(5, 0, 3); err == nil {
		t.Error("width=0: expected an error from the sketch")
	}
}

// TestHeapMinProperty verifies the min-heap invariant.
func TestHeapMinProperty(t *testing.T) {
	h := make(list, 0)

	// Push items with varying counts
	h.push(Item{Key: "A", Count: 10})
	h.push(Item{Key: "B", Count: 5})
	h.push(Item{Key: "C", Count: 20})
	h.push(Item{Key: "D", Count: 1})

	// Root should be minimum
	if h[0].Key != "D" || h[0].Count != 1 {
		t.Errorf("Expected root to be D(1), got %s(%d)", h[0].Key, h[0].Count)
	}

	// Update D to 50 and fix: B becomes the root.
	idx, _ := h.linearSearch("D")
	h[idx].Count = 50
	h.fix(idx)

	if h[0].Key != "B" || h[0].Count != 5 {
		t.Errorf("After fix, expected root to be B(5), got %s(%d)", h[0].Key, h[0].Count)
	}

	for i := range h {
		for _, c := range []int{2*i + 1, 2*i + 2} {
			if c < len(h) && h.less(c, i) {
				t.Errorf("child %d (%d) smaller than parent %d (%d)", c, h[c].Count, i, h[i].Count)
			}
		}
	}
}

// TestHeapLinearScan verifies the custom heap search.
func TestHeapLinearScan(t *testing.T) {
	tk, _ := New(10, 512, 3)

	tk.Add([]byte("A"), 1)
	tk.Add([]byte("B"), 1)
	tk.Add([]byte("C"), 1)

	idx, found := tk.heap.linearSearch("A")
	if !found {
		t.Error("Linear scan failed to find existing key 'A'")
	}
	if tk.heap[idx].Key != "A" {
		t.Error("Linear scan returned wrong index")
	}

	if _, found = tk.heap.linearSearch("Z"); found {
		t.Error("Linear scan found non-existent key 'Z'")
	}
}

// TestHeavyHittersSurviveNoise verifies that heavy keys stay tracked.
func TestHeavyHittersSurviveNoise(t *testing.T) {
	tk, _ := New(5, 2048, 4)

	// The Elephant: "heavy" appears 1000 times
	for i := 0; i < 1000; i++ {
		tk.Add([]byte("heavy"), 1)
	}

	// The Noise: 5000 unique items appear once
	for i := 0; i < 5000; i++ {
		tk.Add([]byte(fmt.Sprintf("mouse-%d", i)), 1)
	}

	found, count := tk.Query([]byte("heavy"))
	if !found {
		t.Fatal("Heavy hitter was evicted by noise!")
	}

	// The sketch never underestimates.
	if count < 1000 {
		t.Errorf("Heavy hitter count: got %d, want >= 1000", count)
	}
}

func TestList_Order(t *testing.T) {
	tk, _ := New(3, 4096, 4)

	weights := map[string]uint32{
		"alpha": 50,
		"beta":  40,
		"gamma": 30,
		"delta": 20,
		"eps":   10,
	}
	for key, n := range weights {
		tk.Add([]byte(key), n)
	}

	got := tk.List()
	want := []string{"alpha", "beta", "gamma"}

	if len(got) != len(want) {
		t.Fatalf("List length: got %d, want %d", len(got), len(want))
	}
	for i, key := range want {
		if got[i].Key != key {
			t.Errorf("List[%d]: got %s(%d), want %s", i, got[i].Key, got[i].Count, key)
		}
		if got[i].Count < uint64(weights[key]) {
			t.Errorf("List[%d] count %d below true count %d", i, got[i].Count, weights[key])
		}
	}
}

// TestAddReturnSemantics verifies which item Add reports as expelled.
func TestAddReturnSemantics(t *testing.T) {
	// K=2 for easy testing
	tk, _ := New(2, 512, 3)

	if r := tk.Add([]byte("first"), 100); r.Expelled {
		t.Errorf("First item should not expel anything, got %v", r)
	}
	if r := tk.Add([]byte("second"), 50); r.Expelled {
		t.Errorf("Second item should not expel anything, got %v", r)
	}

	// "third" with count 1 fails to enter and is returned as expelled.
	r := tk.Add([]byte("third"), 1)
	if !r.Expelled || r.Key != "third" {
		t.Errorf("expected third to be rejected, got %+v", r)
	}

	// A heavier newcomer evicts the root.
	r = tk.Add([]byte("fourth"), 70)
	if !r.Expelled || r.Key != "second" {
		t.Errorf("expected second to be evicted, got %+v", r)
	}
	if found, _ := tk.Query([]byte("second")); found {
		t.Error("evicted key still tracked")
	}
}

func TestAddExistingItem(t *testing.T) {
	tk, _ := New(5, 512, 3)

	tk.Add([]byte("existing"), 1)

	// Adding the same item again never expels.
	if r := tk.Add([]byte("existing"), 1); r.Expelled {
		t.Errorf("Adding existing item should not expel, got %v", r)
	}
	if found, count := tk.Query([]byte("existing")); !found || count != 2 {
		t.Errorf("Query: got (%v, %d), want (true, 2)", found, count)
	}
}

func TestAddZeroIsNoop(t *testing.T) {
	tk, _ := New(2, 512, 3)

	tk.Add([]byte("x"), 0)
	if len(tk.List()) != 0 {
		t.Error("zero-count add entered the heap")
	}
	if tk.Total() != 0 {
		t.Errorf("Total: got %d, want 0", tk.Total())
	}
}

func TestEstimateUntracked(t *testing.T) {
	tk, _ := New(1, 1024, 4)

	tk.Add([]byte("big"), 10)
	tk.Add([]byte("small"), 3)

	if found, _ := tk.Query([]byte("small")); found {
		t.Error("small should not be tracked with k=1")
	}
	if got := tk.Estimate([]byte("small")); got < 3 {
		t.Errorf("Estimate(small): got %d, want >= 3", got)
	}
	if tk.Total() != 13 {
		t.Errorf("Total: got %d, want 13", tk.Total())
	}
}

func BenchmarkAdd(b *testing.B) {
	tk, _ := New(100, 2048, 4)
	keys := make([][]byte, 10000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%d", i%997))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tk.Add(keys[i%len(keys)], 1)
	}
}
