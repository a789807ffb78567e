// Package insertpipe is the insertion pipeline: a bounded producer queue
// feeding a fixed worker pool that hashes and validates addresses, and a
// single writer goroutine that owns the store's one WriteTxn. Goroutines
// and channels stand in for a scoped-thread, bounded-channel worker pool.
package insertpipe

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/erigontech/geodedupe/internal/address"
	"github.com/erigontech/geodedupe/internal/dedupe"
	"github.com/erigontech/geodedupe/internal/store"
	"github.com/erigontech/geodedupe/internal/store/storeerr"
)

// QueueCapacity is the default bound on the work channel.
const QueueCapacity = 100_000

// avgCacheEntryBytes estimates the memory footprint of one lookaside cache
// entry (key string plus a small hash slice), used to translate a
// byte-size budget into an LRU entry count.
const avgCacheEntryBytes = 256

// FilterFunc reports whether an address clears the acceptance boundary:
// missing or sentinel house number, NaN rank, and non-finite coordinates
// are rejected. Evaluated on the hashing worker that picks up the
// address, not on the caller's goroutine.
type FilterFunc func(a address.Address, rank address.Rank) bool

// RankFunc computes an address's priority rank at insertion time.
// Evaluated on the hashing worker, alongside FilterFunc and hashing.
type RankFunc func(a address.Address) address.Rank

// Options configures a Pipeline. Zero values take the documented defaults.
type Options struct {
	// Workers is the number of hashing goroutines. Zero selects
	// max(1, runtime.NumCPU()-2), leaving headroom for the writer
	// goroutine and the caller's own goroutine.
	Workers int
	// QueueCapacity bounds the producer -> worker channel. Zero selects
	// QueueCapacity (100,000).
	QueueCapacity int
	// CacheBytes sizes a per-worker LRU cache mapping an address's raw
	// text fields and coordinates (see cacheKey) to its already-computed
	// hash set, letting a
	// worker skip re-hashing rows it has already seen in bulk imports
	// with heavy duplication. Zero disables the cache.
	CacheBytes int
}

func (o Options) cacheEntriesPerWorker() int {
	if o.CacheBytes <= 0 {
		return 0
	}
	n := o.CacheBytes / avgCacheEntryBytes
	if n < 1 {
		n = 1
	}
	return n
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = max(1, runtime.NumCPU()-2)
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = QueueCapacity
	}
	return o
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// DefaultFilter rejects addresses with a blank street, a blank or sentinel
// house number, a NaN rank, or non-finite coordinates. It runs on the
// hashing worker before the address is hashed or written. NaN rank is
// rejected here, so it never reaches ComparePriority.
func DefaultFilter(a address.Address, rank address.Rank) bool {
	return a.Valid(rank)
}

type hashedAddress struct {
	addr   address.Address
	rank   address.Rank
	hashes []address.Hash
}

// Pipeline is a running insertion pipeline: accepting addresses on Insert,
// it hashes and validates them concurrently and serializes the resulting
// writes through the store's single WriteTxn.
type Pipeline struct {
	log     *logrus.Entry
	hasher  dedupe.Hasher
	filter  FilterFunc
	rank    RankFunc
	st      *store.Store
	work    chan hashedAddress
	wg      sync.WaitGroup
	writeWG sync.WaitGroup

	countAddresses atomic.Int64
	countCities    atomic.Int64
	countErrors    atomic.Int64

	writeErr error
	errOnce  sync.Once

	mu          sync.Mutex
	seenCities  map[string]struct{}
	errorsByKnd map[string]int64
}

// New starts a Pipeline: opts.Workers hashing goroutines plus one writer
// goroutine holding the store's WriteTxn for the pipeline's lifetime.
// filter and rank may be nil, defaulting to DefaultFilter and a rank
// function returning 0 for every address.
func New(ctx context.Context, st *store.Store, hasher dedupe.Hasher, filter FilterFunc, rank RankFunc, log *logrus.Entry, opts Options) (*Pipeline, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if filter == nil {
		filter = DefaultFilter
	}
	if rank == nil {
		rank = func(address.Address) address.Rank { return 0 }
	}
	opts = opts.withDefaults()

	txn, err := st.BeginWrite(ctx)
	if err != nil {
		return nil, fmt.Errorf("insertpipe: begin_write: %w", err)
	}

	p := &Pipeline{
		log:         log,
		hasher:      hasher,
		filter:      filter,
		rank:        rank,
		st:          st,
		work:        make(chan hashedAddress, opts.QueueCapacity),
		seenCities:  make(map[string]struct{}),
		errorsByKnd: make(map[string]int64),
	}

	cacheEntries := opts.cacheEntriesPerWorker()

	writeCh := make(chan hashedAddress, opts.QueueCapacity)
	for i := 0; i < opts.Workers; i++ {
		var cache *lru.Cache[string, []address.Hash]
		if cacheEntries > 0 {
			c, err := lru.New[string, []address.Hash](cacheEntries)
			if err != nil {
				return nil, fmt.Errorf("insertpipe: new_cache: %w", err)
			}
			cache = c
		}
		p.wg.Add(1)
		go p.hashWorker(writeCh, cache)
	}

	p.writeWG.Add(1)
	go p.writer(ctx, txn, writeCh)

	// Fan the shared work channel into writeCh only after all hash
	// workers close their share; hashWorker reads directly from p.work,
	// so writeCh is written to by every worker and closed once all
	// workers finish into a single results queue.
	go func() {
		p.wg.Wait()
		close(writeCh)
	}()

	return p, nil
}

// cacheKey builds the lookaside cache key from every field that can affect
// a Hasher's output: the text fields a reference Hasher normalizes, plus
// Lat/Lon, since the reference Hasher also emits a coordinate-bucket
// fingerprint from them. Two addresses with identical text but different
// coordinates must never collide here, or the second would be persisted
// with the first's coordinate fingerprint. It does not include rank or
// id, since those never affect the hash set.
func cacheKey(a address.Address) string {
	return a.Street + "\x00" + a.City + "\x00" + a.Number + "\x00" + a.Unit + "\x00" +
		strconv.FormatFloat(a.Lat, 'g', -1, 64) + "\x00" + strconv.FormatFloat(a.Lon, 'g', -1, 64)
}

// hashWorker is the parallel worker: it applies the acceptance filter and
// the rank function to each raw address before hashing it, so filtering,
// ranking and hashing all run on the bounded worker pool rather than on
// the single producer goroutine that calls Insert.
func (p *Pipeline) hashWorker(out chan<- hashedAddress, cache *lru.Cache[string, []address.Hash]) {
	defer p.wg.Done()
	for ha := range p.work {
		r := p.rank(ha.addr)
		if !p.filter(ha.addr, r) {
			continue
		}
		if math.IsNaN(float64(r)) {
			continue
		}
		ha.rank = r

		if cache != nil {
			key := cacheKey(ha.addr)
			if cached, ok := cache.Get(key); ok {
				ha.hashes = cached
				out <- ha
				continue
			}
			ha.hashes = p.hasher.Hash(ha.addr)
			cache.Add(key, ha.hashes)
		} else {
			ha.hashes = p.hasher.Hash(ha.addr)
		}
		if len(ha.hashes) == 0 {
			p.log.WithFields(logrus.Fields{
				"street": ha.addr.Street,
				"city":   ha.addr.City,
			}).Warn("insertpipe: address produced no hashes")
		}
		out <- ha
	}
}

func (p *Pipeline) writer(ctx context.Context, txn *store.WriteTxn, in <-chan hashedAddress) {
	defer p.writeWG.Done()
	failed := false

	for ha := range in {
		if failed {
			// Keep draining so upstream hashWorkers never block trying
			// to send on a channel nobody reads anymore; the write
			// error is already recorded.
			continue
		}

		id, err := txn.InsertAddress(ctx, ha.addr, ha.rank)
		if err != nil {
			if storeerr.IsConstraintViolation(err) {
				continue
			}
			p.fail("insert_address", fmt.Errorf("insertpipe: insert_address: %w", err))
			failed = true
			continue
		}
		p.countAddresses.Add(1)
		if ha.addr.City != "" {
			p.mu.Lock()
			if _, ok := p.seenCities[ha.addr.City]; !ok {
				p.seenCities[ha.addr.City] = struct{}{}
				p.countCities.Add(1)
			}
			p.mu.Unlock()
		}

		for _, h := range ha.hashes {
			if err := txn.InsertHash(ctx, id, h); err != nil {
				if storeerr.IsConstraintViolation(err) {
					continue
				}
				p.fail("insert_hash", fmt.Errorf("insertpipe: insert_hash: %w", err))
				failed = true
				break
			}
		}
	}

	if failed {
		_ = txn.Rollback()
		return
	}
	if err := txn.Commit(); err != nil {
		p.fail("commit", fmt.Errorf("insertpipe: commit: %w", err))
	}
}

func (p *Pipeline) fail(kind string, err error) {
	p.countErrors.Add(1)
	p.errOnce.Do(func() { p.writeErr = err })
	p.mu.Lock()
	p.errorsByKnd[kind]++
	p.mu.Unlock()
	p.log.WithError(err).Error("insertpipe: writer failed")
}

// ErrorsByKind returns a snapshot of fatal write errors grouped by the
// operation that failed (insert_address, insert_hash, commit). Expected
// to stay empty in normal operation.
func (p *Pipeline) ErrorsByKind() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.errorsByKnd))
	for k, v := range p.errorsByKnd {
		out[k] = v
	}
	return out
}

// Insert hands one raw address to the worker pool. Filtering, ranking and
// hashing all happen on the hashing workers, not on the caller's
// goroutine; addresses rejected by the filter are dropped silently there
// and do not count as errors: filtered is not the same as errored.
func (p *Pipeline) Insert(a address.Address) {
	p.work <- hashedAddress{addr: a}
}

// Flush is a no-op: accepted addresses are committed by the writer when
// Close returns.
func (p *Pipeline) Flush() {}

// Close stops accepting new addresses, waits for every worker and the
// writer to drain, and returns the first fatal write error encountered,
// if any.
func (p *Pipeline) Close() error {
	close(p.work)
	p.wg.Wait()
	p.writeWG.Wait()
	return p.writeErr
}

// CountAddresses returns the number of addresses successfully inserted.
func (p *Pipeline) CountAddresses() int64 { return p.countAddresses.Load() }

// CountCities returns the number of distinct non-empty cities observed.
func (p *Pipeline) CountCities() int64 { return p.countCities.Load() }

// CountErrors returns the number of fatal (non-constraint) write errors.
// Expected to stay zero in normal operation.
func (p *Pipeline) CountErrors() int64 { return p.countErrors.Load() }
