package cms_test

import (
	"fmt"

	"sketch.lopezb.com/internal/pds/cms"
)

func ExampleSketch_Query() {
	s, err := cms.New(2000, 5)
	if err != nil {
		panic(err)
	}

	for _, item := range []string{"a", "a", "a", "b"} {
		s.Update([]byte(item), 1)
	}

	fmt.Println(s.Query([]byte("a")), s.Query([]byte("b")), s.Query([]byte("c")))
	fmt.Println(s.Total())
	// Output:
	// 3 1 0
	// 4
}

// Dimensions for an error of at most 1% of the stream total, 99% of the time.
func ExampleDimensionsFromProb() {
	w, d, err := cms.DimensionsFromProb(0.01, 0.01)
	if err != nil {
		panic(err)
	}
	fmt.Println(w, d)
	// Output: 272 5
}
