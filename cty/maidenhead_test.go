package cty

import (
	"math"
	"testing"
)

func TestGridSquareReferencePoints(t *testing.T) {
	want := map[[2]float64]string{
		{0, 0}:           "JJ00",
		{42.36, -71.06}:  "FN42",
		{51.5, -0.12}:    "IO91",
		{-33.87, 151.21}: "QF56",
		{90, 180}:        "RR99",
		{-90, -180}:      "AA00",
	}
	for at, grid := range want {
		got, ok := gridSquare(at[0], at[1])
		if !ok || got != grid {
			t.Fatalf("gridSquare(%v, %v) = %q, %v; want %q", at[0], at[1], got, ok, grid)
		}
	}
}

func TestGridSquareRejectsBadCoordinates(t *testing.T) {
	for _, at := range [][2]float64{{math.NaN(), 0}, {0, math.Inf(1)}, {95, 0}, {0, -181}} {
		if got, ok := gridSquare(at[0], at[1]); ok {
			t.Fatalf("gridSquare(%v, %v) accepted as %q", at[0], at[1], got)
		}
	}
}
