package cms

import (
	"fmt"
	"math"
)

// DimensionsFromProb calculates optimal CMS dimensions from error parameters.
//
// The epsilon parameter controls the relative error bound. The estimated count
// will be at most (true_count + epsilon * N) where N is the total count of all
// items. Smaller epsilon means higher accuracy but wider tables (more memory).
// Typical values are 0.01 (1% error) or 0.001 (0.1% error).
//
// The delta parameter controls the probability of exceeding the error bound.
// Smaller delta means higher confidence but more rows (deeper tables).
// Typical values are 0.01 (1% probability) or 0.001 (0.1% probability).
//
// The formulas are the standard CMS bounds from the literature:
//
//	width = ceil(e / epsilon)     where e is Euler's number
//	depth = ceil(ln(1 / delta))
//
// Memory usage is width * depth * 4 bytes. Some examples:
//
//	epsilon=0.001, delta=0.01  -> width=2719, depth=5 (~54KB)
//	epsilon=0.01, delta=0.01   -> width=272, depth=5 (~5.4KB)
//	epsilon=0.001, delta=0.001 -> width=2719, depth=7 (~76KB)
//
// epsilon must be positive and delta must lie strictly between 0 and 1.
func DimensionsFromProb(epsilon, delta float64) (width, depth uint32, err error) {
	if !(epsilon > 0) || math.IsInf(epsilon, 0) {
		return 0, 0, fmt.Errorf("%w: epsilon must be > 0, got %v", ErrInvalidParameter, epsilon)
	}
	if !(delta > 0 && delta < 1) {
		return 0, 0, fmt.Errorf("%w: delta must be in (0, 1), got %v", ErrInvalidParameter, delta)
	}

	w := math.Ceil(math.E / epsilon)
	d := math.Ceil(math.Log(1 / delta))
	if w > MaxCells || w*d > MaxCells {
		return 0, 0, fmt.Errorf("%w: %.0fx%.0f counters needed, limit is %d", ErrTooLarge, w, d, uint64(MaxCells))
	}

	width = uint32(w)
	depth = uint32(d)

	if width < 1 {
		width = 1
	}
	// delta close to 1 gives ln(1/delta) close to 0.
	if depth < 1 {
		depth = 1
	}

	return width, depth, nil
}
