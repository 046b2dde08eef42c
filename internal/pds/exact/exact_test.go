package exact

import "testing"

func TestSet(t *testing.T) {
	s := NewSet()

	if !s.Add([]byte("a")) {
		t.Error("first Add should return true")
	}
	if s.Add([]byte("a")) {
		t.Error("duplicate Add should return false")
	}
	s.Add([]byte("bc"))

	if !s.Contains([]byte("a")) || !s.Contains([]byte("bc")) {
		t.Error("added keys not found")
	}
	if s.Contains([]byte("z")) {
		t.Error("unknown key reported present")
	}
	if s.Len() != 2 {
		t.Errorf("Len: got %d, want 2", s.Len())
	}
	if want := uint64(3 + 2*bytesPerEntry); s.MemoryUsage() != want {
		t.Errorf("MemoryUsage: got %d, want %d", s.MemoryUsage(), want)
	}
}

func TestSet_ByteKeysAreCopied(t *testing.T) {
	s := NewSet()
	buf := []byte("key")
	s.Add(buf)

	buf[0] = 'x'
	if !s.Contains([]byte("key")) {
		t.Error("mutating the caller's buffer changed the stored key")
	}
}

func TestCounter(t *testing.T) {
	c := NewCounter()

	c.Add([]byte("10.0.0.1"), 1500)
	c.Add([]byte("10.0.0.1"), 500)
	c.Add([]byte("10.0.0.2"), 40)

	tests := []struct {
		key  string
		want uint64
	}{
		{key: "10.0.0.1", want: 2000},
		{key: "10.0.0.2", want: 40},
		{key: "10.0.0.3", want: 0},
	}
	for _, tt := range tests {
		if got := c.Get([]byte(tt.key)); got != tt.want {
			t.Errorf("Get(%s): got %d, want %d", tt.key, got, tt.want)
		}
	}

	if c.Len() != 2 {
		t.Errorf("Len: got %d, want 2", c.Len())
	}
	if c.Total() != 2040 {
		t.Errorf("Total: got %d, want 2040", c.Total())
	}

	sum := uint64(0)
	c.Each(func(_ string, n uint64) { sum += n })
	if sum != c.Total() {
		t.Errorf("Each visited %d, want %d", sum, c.Total())
	}

	if want := uint64(16 + 2*(bytesPerEntry+8)); c.MemoryUsage() != want {
		t.Errorf("MemoryUsage: got %d, want %d", c.MemoryUsage(), want)
	}
}
