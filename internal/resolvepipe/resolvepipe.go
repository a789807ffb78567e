// Package resolvepipe is the collision-resolution pipeline: it scans the
// hash index in sorted order to form packs of same-hash addresses
// (Phase A), resolves each pack against the Similarity predicate on a
// bounded worker pool (Phase B), coalesces the resulting deletion ids
// into the store in a single transaction (Phase C), and finally applies
// the marked deletions (Phase D).
package resolvepipe

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/sirupsen/logrus"

	"github.com/erigontech/geodedupe/internal/address"
	"github.com/erigontech/geodedupe/internal/dedupe"
	"github.com/erigontech/geodedupe/internal/pipeline/progress"
	"github.com/erigontech/geodedupe/internal/store"
	"github.com/erigontech/geodedupe/internal/store/storeerr"
)

// QueueCapacity is the default bound on the pack channel.
const QueueCapacity = 100_000

// MaxPackSize is the default ceiling on a single hash's address count: a
// pathologically common hash, e.g. a blank street in a huge city, can
// produce a pack too large to compare pairwise in reasonable time. Packs
// larger than this are skipped with a warning rather than processed.
const MaxPackSize = 5000

// Options configures Resolve.
type Options struct {
	// Workers is the number of pack-resolution goroutines. Zero selects
	// max(1, runtime.NumCPU()-2).
	Workers int
	// QueueCapacity bounds the pack channel. Zero selects QueueCapacity.
	QueueCapacity int
	// MaxPackSize bounds a single pack's size. Zero selects MaxPackSize.
	MaxPackSize int
	// ApplyDeletions, if true, applies the marked deletions once Phase C
	// completes.
	ApplyDeletions bool
	// SkipCleanup, if true, leaves the hashes and to_delete tables in
	// place after applying deletions instead of dropping them.
	SkipCleanup bool
	// VacuumAfterApply runs VACUUM after ApplyDeletions, if both are set.
	VacuumAfterApply bool
	// Progress, if non-nil, receives periodic progress updates keyed off
	// the hash count processed so far.
	Progress progress.Sink
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = max(1, runtime.NumCPU()-2)
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = QueueCapacity
	}
	if o.MaxPackSize <= 0 {
		o.MaxPackSize = MaxPackSize
	}
	if o.Progress == nil {
		o.Progress = progress.Noop{}
	}
	return o
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Resolve runs the full collision-resolution pipeline against st, using
// sim to decide which same-hash addresses are duplicates of one another.
func Resolve(ctx context.Context, st *store.Store, sim dedupe.Similarity, log *logrus.Entry, opts Options) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	opts = opts.withDefaults()

	if err := st.CreateHashIndex(ctx); err != nil {
		return fmt.Errorf("resolvepipe: create_hash_index: %w", err)
	}

	totalHashes, err := st.CountHashes(ctx)
	if err != nil {
		return fmt.Errorf("resolvepipe: count_hashes: %w", err)
	}
	opts.Progress.SetTotal(totalHashes)

	scan, err := st.ScanHashesSorted(ctx)
	if err != nil {
		return fmt.Errorf("resolvepipe: scan_hashes_sorted: %w", err)
	}
	defer scan.Close()

	packs := make(chan []address.HashIndexEntry, opts.QueueCapacity)
	dupeIDs := make(chan address.ID, opts.QueueCapacity)

	workerDone := make(chan struct{})
	go func() {
		runWorkers(opts.Workers, packs, dupeIDs, sim, log, opts.MaxPackSize)
		close(workerDone)
	}()

	writerErrCh := make(chan error, 1)
	go func() {
		writerErrCh <- runCoalescer(ctx, st, dupeIDs)
	}()

	// Phase A: scan and pack.
	var current []address.HashIndexEntry
	var currentHash address.Hash
	first := true
	var processed int64

	emit := func() {
		if len(current) >= 2 {
			packs <- current
		}
	}

	for scan.Next() {
		e, err := scan.Entry()
		if err != nil {
			close(packs)
			<-workerDone
			close(dupeIDs)
			<-writerErrCh
			return fmt.Errorf("resolvepipe: scan entry: %w", err)
		}
		if first || e.Hash != currentHash {
			emit()
			current = nil
			currentHash = e.Hash
			first = false
		}
		current = append(current, e)
		processed++
		opts.Progress.Advance(processed)
	}
	emit()
	if err := scan.Err(); err != nil {
		close(packs)
		<-workerDone
		close(dupeIDs)
		<-writerErrCh
		return fmt.Errorf("resolvepipe: scan: %w", err)
	}

	close(packs)
	<-workerDone
	close(dupeIDs)

	if err := <-writerErrCh; err != nil {
		return err
	}

	if !opts.ApplyDeletions {
		return nil
	}
	if err := st.ApplyDeletions(ctx); err != nil {
		return fmt.Errorf("resolvepipe: apply_deletions: %w", err)
	}
	if !opts.SkipCleanup {
		if err := st.Cleanup(ctx); err != nil {
			return fmt.Errorf("resolvepipe: cleanup: %w", err)
		}
	}
	if opts.VacuumAfterApply {
		if err := st.Vacuum(ctx); err != nil {
			return fmt.Errorf("resolvepipe: vacuum: %w", err)
		}
	}
	return nil
}

func runWorkers(n int, packs <-chan []address.HashIndexEntry, out chan<- address.ID, sim dedupe.Similarity, log *logrus.Entry, maxPackSize int) {
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for pack := range packs {
				resolvePack(pack, sim, log, maxPackSize, out)
			}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
}

// resolvePack resolves one pack of same-hash addresses: sort the pack by
// (rank, id) descending, keep the first item unconditionally, and for
// every subsequent candidate compare it only against the items already
// kept — never against the full transitive closure of everything seen.
// This is what makes Similarity's lack of transitivity safe: A and C
// can both be "similar to B" and end up both kept, if A is not itself
// similar to C.
func resolvePack(pack []address.HashIndexEntry, sim dedupe.Similarity, log *logrus.Entry, maxPackSize int, out chan<- address.ID) {
	if len(pack) > maxPackSize {
		log.WithFields(logrus.Fields{
			"hash": pack[0].Hash,
			"size": len(pack),
		}).Warn("resolvepipe: pack exceeds size limit, skipping")
		return
	}

	sort.SliceStable(pack, func(i, j int) bool {
		return address.ComparePriority(pack[i].Rank, pack[i].ID, pack[j].Rank, pack[j].ID) < 0
	})

	kept := make([]address.HashIndexEntry, 0, len(pack))
	kept = append(kept, pack[0])

	for _, candidate := range pack[1:] {
		isDuplicate := false
		for _, k := range kept {
			if sim.Similar(candidate.Addr, k.Addr) {
				isDuplicate = true
				break
			}
		}
		if isDuplicate {
			out <- candidate.ID
		} else {
			kept = append(kept, candidate)
		}
	}
}

// runCoalescer drains the deletion-id channel into an in-memory
// RoaringBitmap set (falling back to a plain map for ids outside uint32
// range), deduplicating ids seen from multiple packs, then writes the
// coalesced set into to_delete inside one transaction.
func runCoalescer(ctx context.Context, st *store.Store, ids <-chan address.ID) error {
	bitmap := roaring.New()
	overflow := make(map[address.ID]struct{})

	for id := range ids {
		if id >= 0 && id <= address.ID(^uint32(0)) {
			bitmap.Add(uint32(id))
		} else {
			overflow[id] = struct{}{}
		}
	}

	txn, err := st.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("resolvepipe: begin_write: %w", err)
	}
	defer func() { _ = txn.Rollback() }()

	it := bitmap.Iterator()
	for it.HasNext() {
		id := address.ID(it.Next())
		if err := txn.InsertToDelete(ctx, id); err != nil {
			if storeerr.IsConstraintViolation(err) {
				continue
			}
			return fmt.Errorf("resolvepipe: insert_to_delete: %w", err)
		}
	}
	for id := range overflow {
		if err := txn.InsertToDelete(ctx, id); err != nil {
			if storeerr.IsConstraintViolation(err) {
				continue
			}
			return fmt.Errorf("resolvepipe: insert_to_delete: %w", err)
		}
	}

	return txn.Commit()
}
