package bloom

import (
	"errors"
	"math"
	"testing"
)

func TestEstimateParameters(t *testing.T) {
	tests := []struct {
		name  string
		n     uint64
		p     float64
		wantM uint64
		wantK uint64
	}{
		// m = -100 * ln(0.01) / ln(2)^2 ~= 958.5 -> 959
		// k = 959/100 * ln(2) ~= 6.65 -> 7
		{name: "small capacity", n: 100, p: 0.01, wantM: 959, wantK: 7},
		{name: "medium capacity", n: 10000, p: 0.01, wantM: 95851, wantK: 7},
		{name: "large capacity", n: 1000000, p: 0.01, wantM: 9585059, wantK: 7},
		{name: "tighter rate", n: 1000, p: 0.001, wantM: 14378, wantK: 10},
		{name: "single item", n: 1, p: 0.5, wantM: 2, wantK: 2},
		// k rounds up from ~0.69, and never drops below 1.
		{name: "loose rate", n: 1, p: 0.999, wantM: 1, wantK: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, k, err := EstimateParameters(tt.n, tt.p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m != tt.wantM {
				t.Errorf("m: got %d, want %d", m, tt.wantM)
			}
			if k != tt.wantK {
				t.Errorf("k: got %d, want %d", k, tt.wantK)
			}
		})
	}
}

func TestEstimateParameters_Errors(t *testing.T) {
	tests := []struct {
		name string
		n    uint64
		p    float64
		want error
	}{
		{name: "zero items", n: 0, p: 0.01, want: ErrInvalidParameter},
		{name: "zero rate", n: 100, p: 0, want: ErrInvalidParameter},
		{name: "rate of one", n: 100, p: 1, want: ErrInvalidParameter},
		{name: "negative rate", n: 100, p: -0.5, want: ErrInvalidParameter},
		{name: "NaN rate", n: 100, p: math.NaN(), want: ErrInvalidParameter},
		{name: "too many bits", n: 1 << 40, p: 0.0001, want: ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := EstimateParameters(tt.n, tt.p)
			if !errors.Is(err, tt.want) {
				t.Errorf("got error %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewOptimal(t *testing.T) {
	f, err := NewOptimal(1000, 0.01)
	if err != nil {
		t.Fatalf("NewOptimal failed: %v", err)
	}
	if f.NumBits() != 9586 || f.NumHashes() != 7 {
		t.Errorf("got m=%d k=%d, want m=9586 k=7", f.NumBits(), f.NumHashes())
	}

	if _, err := NewOptimal(0, 0.01); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("NewOptimal(0, 0.01): got %v, want ErrInvalidParameter", err)
	}
}
