package dedupe

import (
	"testing"

	"github.com/erigontech/geodedupe/internal/address"
)

func TestNormalizingHasherIsDeterministicAndCaseInsensitive(t *testing.T) {
	h := NewNormalizingHasher(DefaultNormalizingHasherConfig())

	a := address.Address{Lat: 45.5017, Lon: -73.5673, Street: "Rue Sainte-Catherine", City: "Montréal", Number: "123"}
	b := address.Address{Lat: 45.5017, Lon: -73.5673, Street: "RUE SAINTE-CATHERINE", City: "MONTREAL", Number: "123"}

	ha, hb := h.Hash(a), h.Hash(b)
	if len(ha) == 0 {
		t.Fatal("expected at least one hash for a populated address")
	}
	if !sameHashSet(ha, hb) {
		t.Errorf("case/accent variants produced different hash sets: %v vs %v", ha, hb)
	}
}

func TestNormalizingHasherEmptyAddressProducesNoHashes(t *testing.T) {
	h := NewNormalizingHasher(NormalizingHasherConfig{CoordBucketMeters: 0})
	got := h.Hash(address.Address{})
	if len(got) != 0 {
		t.Errorf("blank address with coord hashing disabled should hash to nothing, got %v", got)
	}
}

func TestNormalizingSimilarityMatchesSameStreetNearbyCoords(t *testing.T) {
	sim := NewNormalizingSimilarity(DefaultSimilarityConfig())

	a := address.Address{Lat: 45.5017, Lon: -73.5673, Street: "Main St", Number: "100"}
	nearby := address.Address{Lat: 45.50175, Lon: -73.56735, Street: "Main Street", Number: "100"}
	far := address.Address{Lat: 45.6, Lon: -73.7, Street: "Main St", Number: "100"}
	otherStreet := address.Address{Lat: 45.5017, Lon: -73.5673, Street: "Other Ave", Number: "100"}

	if !sim.Similar(a, nearby) {
		t.Error("expected nearby address on the same (abbreviation-expanded) street to be similar")
	}
	if sim.Similar(a, far) {
		t.Error("expected a distant address to not be similar")
	}
	if sim.Similar(a, otherStreet) {
		t.Error("expected a different street to not be similar")
	}
}

func TestNormalizingSimilarityIsNotTransitive(t *testing.T) {
	// A and B share a house number and are within range of each other;
	// B and C likewise; but A and C are not within range of each other.
	sim := NewNormalizingSimilarity(SimilarityConfig{MaxDistanceMeters: 60})

	a := address.Address{Lat: 45.50000, Lon: -73.50000, Street: "Main St", Number: "1"}
	b := address.Address{Lat: 45.50040, Lon: -73.50000, Street: "Main St", Number: "1"}
	c := address.Address{Lat: 45.50080, Lon: -73.50000, Street: "Main St", Number: "1"}

	if !sim.Similar(a, b) {
		t.Fatal("expected A similar to B")
	}
	if !sim.Similar(b, c) {
		t.Fatal("expected B similar to C")
	}
	if sim.Similar(a, c) {
		t.Fatal("expected A not similar to C: similarity here must not be transitive")
	}
}

func sameHashSet(a, b []address.Hash) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[address.Hash]struct{}, len(a))
	for _, h := range a {
		set[h] = struct{}{}
	}
	for _, h := range b {
		if _, ok := set[h]; !ok {
			return false
		}
	}
	return true
}
