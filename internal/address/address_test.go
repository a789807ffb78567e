package address

import (
	"math"
	"testing"
)

func TestAddressValid(t *testing.T) {
	base := Address{Lat: 45.0, Lon: -73.0, Street: "Main St", Number: "12"}

	cases := []struct {
		name string
		a    Address
		rank Rank
		want bool
	}{
		{"valid", base, 1, true},
		{"blank street", Address{Lat: 45, Lon: -73, Street: "", Number: "12"}, 1, false},
		{"blank number", Address{Lat: 45, Lon: -73, Street: "Main St", Number: ""}, 1, false},
		{"sentinel number", Address{Lat: 45, Lon: -73, Street: "Main St", Number: SentinelNoNumber}, 1, false},
		{"NaN lat", Address{Lat: math.NaN(), Lon: -73, Street: "Main St", Number: "12"}, 1, false},
		{"Inf lon", Address{Lat: 45, Lon: math.Inf(1), Street: "Main St", Number: "12"}, 1, false},
		{"NaN rank", base, Rank(math.NaN()), false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Valid(c.rank); got != c.want {
				t.Errorf("Valid() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestComparePriorityOrdering(t *testing.T) {
	// Higher rank wins outright.
	if ComparePriority(2, 1, 1, 100) >= 0 {
		t.Error("higher rank should sort first (negative result)")
	}
	// Equal rank: higher id wins.
	if ComparePriority(1, 50, 1, 10) >= 0 {
		t.Error("equal rank, higher id should sort first")
	}
	// Exact ties compare equal.
	if ComparePriority(1, 10, 1, 10) != 0 {
		t.Error("identical (rank, id) should compare equal")
	}
}

func TestComparePriorityIsATotalOrder(t *testing.T) {
	type key struct {
		rank Rank
		id   ID
	}
	keys := []key{{2, 5}, {2, 1}, {1, 100}, {1, 1}, {0, 0}}

	for i, a := range keys {
		for j, b := range keys {
			got := ComparePriority(a.rank, a.id, b.rank, b.id)
			want := ComparePriority(b.rank, b.id, a.rank, a.id)
			if got != -want {
				t.Errorf("ComparePriority(%d,%d) = %d, reverse = %d; not antisymmetric", i, j, got, want)
			}
		}
	}
}
