package resolvepipe

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/erigontech/geodedupe/internal/address"
)

// fixedSimilarity reports two addresses as similar if their Street
// fields are identical strings, or if the (unordered) pair of Streets is
// listed in pairs; nothing else is consulted. It lets tests express
// similarity purely in terms of which entries should be considered the
// same, without relying on the reference Hasher/Similarity.
type fixedSimilarity struct {
	pairs map[[2]string]bool
}

func (f fixedSimilarity) Similar(a, b address.Address) bool {
	if a.Street == b.Street {
		return true
	}
	if f.pairs == nil {
		return false
	}
	if f.pairs[[2]string{a.Street, b.Street}] || f.pairs[[2]string{b.Street, a.Street}] {
		return true
	}
	return false
}

func entry(id address.ID, rank address.Rank, street string) address.HashIndexEntry {
	return address.HashIndexEntry{Hash: 1, ID: id, Rank: rank, Addr: address.Address{Street: street}}
}

func discardingLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return logrus.NewEntry(l)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func collectIDs(ch chan address.ID) []address.ID {
	close(ch)
	var ids []address.ID
	for id := range ch {
		ids = append(ids, id)
	}
	return ids
}

func TestResolvePackExactDuplicateRankWins(t *testing.T) {
	pack := []address.HashIndexEntry{
		entry(1, 1, "same"),
		entry(2, 5, "same"), // highest rank, must be the survivor
		entry(3, 2, "same"),
	}
	out := make(chan address.ID, len(pack))
	resolvePack(pack, fixedSimilarity{}, discardingLogger(), MaxPackSize, out)

	deleted := collectIDs(out)
	if len(deleted) != 2 {
		t.Fatalf("expected 2 deletions, got %d: %v", len(deleted), deleted)
	}
	for _, id := range deleted {
		if id == 2 {
			t.Fatalf("highest-rank survivor (id 2) was marked for deletion: %v", deleted)
		}
	}
}

func TestResolvePackNonTransitiveSimilarityKeepsBothEnds(t *testing.T) {
	// A similar to B, B similar to C, but A not similar to C.
	// Ranks favor keeping A (highest), then C should survive too since it
	// is never compared similar to A (only ever compared against kept
	// items, and by the time C is considered, B has already been deleted
	// so it is not in `kept`).
	sim := fixedSimilarity{pairs: map[[2]string]bool{
		{"a", "b"}: true,
		{"b", "c"}: true,
	}}
	pack := []address.HashIndexEntry{
		entry(1, 3, "a"),
		entry(2, 2, "b"),
		entry(3, 1, "c"),
	}
	out := make(chan address.ID, len(pack))
	resolvePack(pack, sim, discardingLogger(), MaxPackSize, out)

	deleted := collectIDs(out)
	if len(deleted) != 1 || deleted[0] != 2 {
		t.Fatalf("expected only id 2 (B) deleted, got %v", deleted)
	}
}

func TestResolvePackSkipsOversizedPack(t *testing.T) {
	pack := make([]address.HashIndexEntry, 10)
	for i := range pack {
		pack[i] = entry(address.ID(i), address.Rank(i), "same")
	}
	out := make(chan address.ID, len(pack))
	resolvePack(pack, fixedSimilarity{}, discardingLogger(), 5, out)

	deleted := collectIDs(out)
	if len(deleted) != 0 {
		t.Fatalf("expected no deletions for an oversized pack, got %v", deleted)
	}
}

func TestResolvePackSingleEntryPackDeletesNothing(t *testing.T) {
	// A pack of size < 2 is never even submitted by the scanning loop in
	// Resolve; resolvePack itself, given a single-entry pack, must still
	// behave safely by keeping that one entry and deleting nothing.
	pack := []address.HashIndexEntry{entry(1, 1, "only")}
	out := make(chan address.ID, 1)
	resolvePack(pack, fixedSimilarity{}, discardingLogger(), MaxPackSize, out)

	deleted := collectIDs(out)
	if len(deleted) != 0 {
		t.Fatalf("expected no deletions for a singleton pack, got %v", deleted)
	}
}
