// Package store is the durable, transactional, keyed adapter: it hides
// modernc.org/sqlite (a pure-Go SQLite driver) behind the operation set
// collision resolution and insertion need — begin_write, insert_address,
// insert_hash, insert_to_delete, create_hash_index, scan_hashes_sorted,
// apply_deletions, cleanup, vacuum — so the rest of the pipeline never
// imports database/sql directly.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/erigontech/geodedupe/internal/address"
)

// Store is a durable, transactional, keyed sink over the three logical
// tables: addresses, hashes, to_delete. It is single-writer: at most one
// WriteTxn may be open at a time, enforced by writeDB having a single
// open connection. Read-only scans run on a separate connection, giving
// per-connection isolation so a sorted hash scan can proceed concurrently
// with a writer.
type Store struct {
	path string
	log  *logrus.Entry

	writeDB *sql.DB
	readDB  *sql.DB
	lock    *flock.Flock
}

// Open creates the schema on first use (idempotent) and returns a Store
// ready for BeginWrite / scans. It retries transient "database is locked"
// conditions with exponential backoff before surfacing a fatal error.
func Open(ctx context.Context, path string, log *logrus.Entry) (*Store, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("store: failed to acquire lock on %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("store: %s is locked by another process", path)
	}

	var writeDB, readDB *sql.DB
	openErr := backoff.Retry(func() error {
		var err error
		writeDB, err = sql.Open("sqlite", path)
		if err != nil {
			return err
		}
		writeDB.SetMaxOpenConns(1)

		readDB, err = sql.Open("sqlite", path)
		if err != nil {
			return err
		}
		return writeDB.PingContext(ctx)
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5))
	if openErr != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("store: failed to open %s: %w", path, openErr)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000;",
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=OFF;",
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return applyPragmas(gctx, writeDB, pragmas) })
	g.Go(func() error { return applyPragmas(gctx, readDB, pragmas) })
	if err := g.Wait(); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("store: failed to set pragmas: %w", err)
	}

	if _, err := writeDB.ExecContext(ctx, schemaDDL); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("store: failed to create schema: %w", err)
	}

	return &Store{path: path, log: log, writeDB: writeDB, readDB: readDB, lock: lock}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, pragmas []string) error {
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// Close releases both connections and the advisory lock.
func (s *Store) Close() error {
	var firstErr error
	if err := s.writeDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.readDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// CreateHashIndex builds the sorted index on hashes.hash. Must be called
// before ScanHashesSorted / collision resolution.
func (s *Store) CreateHashIndex(ctx context.Context) error {
	_, err := s.writeDB.ExecContext(ctx, hashIndexDDL)
	return err
}

// CountAddresses returns the number of rows in addresses.
func (s *Store) CountAddresses(ctx context.Context) (int64, error) {
	return s.scalarInt64(ctx, "SELECT COUNT(*) FROM addresses")
}

// CountCities returns the number of distinct, non-empty cities present.
func (s *Store) CountCities(ctx context.Context) (int64, error) {
	return s.scalarInt64(ctx, "SELECT COUNT(DISTINCT city) FROM addresses WHERE city IS NOT NULL AND city != ''")
}

// CountHashes returns the number of rows in hashes.
func (s *Store) CountHashes(ctx context.Context) (int64, error) {
	return s.scalarInt64(ctx, "SELECT COUNT(*) FROM hashes")
}

// CountToDelete returns the number of rows in to_delete.
func (s *Store) CountToDelete(ctx context.Context) (int64, error) {
	return s.scalarInt64(ctx, "SELECT COUNT(*) FROM to_delete")
}

func (s *Store) scalarInt64(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := s.readDB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ApplyDeletions materializes mark-and-sweep: in a single transaction it
// deletes from addresses and hashes every row whose id appears in
// to_delete, then truncates to_delete.
func (s *Store) ApplyDeletions(ctx context.Context) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: apply_deletions: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		"DELETE FROM hashes WHERE address_id IN (SELECT address_id FROM to_delete)",
		"DELETE FROM addresses WHERE id IN (SELECT address_id FROM to_delete)",
		"DELETE FROM to_delete",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: apply_deletions: %w", err)
		}
	}
	return tx.Commit()
}

// Cleanup drops the auxiliary hashes and to_delete tables.
func (s *Store) Cleanup(ctx context.Context) error {
	for _, stmt := range []string{"DROP TABLE IF EXISTS hashes", "DROP TABLE IF EXISTS to_delete"} {
		if _, err := s.writeDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: cleanup: %w", err)
		}
	}
	return nil
}

// Vacuum compacts storage.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.writeDB.ExecContext(ctx, "VACUUM")
	return err
}

// WriteTxn is an exclusive writer transaction with deferred commit.
// Callers must Commit explicitly; a deferred Rollback immediately after
// BeginWrite is safe because database/sql documents Rollback-after-Commit
// as a no-op, which stands in for "commit on scope exit" in a language
// without destructors.
type WriteTxn struct {
	tx  *sql.Tx
	log *logrus.Entry
}

// BeginWrite opens the store's single writer transaction.
func (s *Store) BeginWrite(ctx context.Context) (*WriteTxn, error) {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin_write: %w", err)
	}
	return &WriteTxn{tx: tx, log: s.log}, nil
}

// Commit commits the writer transaction.
func (w *WriteTxn) Commit() error { return w.tx.Commit() }

// Rollback aborts the writer transaction. Safe to call after Commit (no-op).
func (w *WriteTxn) Rollback() error { return w.tx.Rollback() }

// InsertAddress inserts one address row and returns its assigned id. A
// constraint violation is returned as-is (wrapped) for the caller to test
// with storeerr.IsConstraintViolation and silently discard; this schema
// has no natural uniqueness constraint on addresses, so in practice this
// path only surfaces other, non-expected failures.
func (w *WriteTxn) InsertAddress(ctx context.Context, a address.Address, rank address.Rank) (address.ID, error) {
	res, err := w.tx.ExecContext(ctx, `
		INSERT INTO addresses (lat, lon, number, street, unit, city, district, region, postcode, rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Lat, a.Lon, nullable(a.Number), a.Street, nullable(a.Unit), nullable(a.City),
		nullable(a.District), nullable(a.Region), nullable(a.Postcode), float64(rank))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return address.ID(id), nil
}

// InsertHash inserts one (address_id, hash) pair. A duplicate pair from a
// re-emitted address is an expected constraint violation.
func (w *WriteTxn) InsertHash(ctx context.Context, id address.ID, h address.Hash) error {
	_, err := w.tx.ExecContext(ctx,
		`INSERT INTO hashes (address_id, hash) VALUES (?, ?)`, int64(id), int64(h))
	return err
}

// InsertToDelete marks an address for deletion. Set-valued: duplicate
// insertions of the same id are an expected constraint violation.
func (w *WriteTxn) InsertToDelete(ctx context.Context, id address.ID) error {
	_, err := w.tx.ExecContext(ctx, `INSERT INTO to_delete (address_id) VALUES (?)`, int64(id))
	return err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// HashScan iterates hashes joined to their owning address, ordered by hash
// ascending, so that equal hashes arrive consecutively and can be grouped
// into packs by the caller without sorting in memory.
type HashScan struct {
	rows *sql.Rows
}

// ScanHashesSorted opens the ordered join scan over hashes and addresses.
// Runs on the read-only connection so it can proceed alongside a writer.
func (s *Store) ScanHashesSorted(ctx context.Context) (*HashScan, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT h.hash, h.address_id, a.rank, a.lat, a.lon, a.number, a.street,
		       a.unit, a.city, a.district, a.region, a.postcode
		FROM hashes h
		JOIN addresses a ON a.id = h.address_id
		ORDER BY h.hash ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: scan_hashes_sorted: %w", err)
	}
	return &HashScan{rows: rows}, nil
}

// Next advances the scan. Returns false at end of rows or on error; check
// Err after a false return to distinguish the two.
func (hs *HashScan) Next() bool { return hs.rows.Next() }

// Err returns the first error encountered during iteration, if any.
func (hs *HashScan) Err() error { return hs.rows.Err() }

// Close releases the underlying rows.
func (hs *HashScan) Close() error { return hs.rows.Close() }

// Entry decodes the current row into a HashIndexEntry.
func (hs *HashScan) Entry() (address.HashIndexEntry, error) {
	var (
		e                                              address.HashIndexEntry
		hash, id                                       int64
		rank                                           float64
		number, unit, city, district, region, postcode sql.NullString
	)
	if err := hs.rows.Scan(&hash, &id, &rank, &e.Addr.Lat, &e.Addr.Lon,
		&number, &e.Addr.Street, &unit, &city, &district, &region, &postcode); err != nil {
		return address.HashIndexEntry{}, err
	}
	e.Hash = address.Hash(uint64(hash))
	e.ID = address.ID(id)
	e.Rank = address.Rank(rank)
	e.Addr.Number = number.String
	e.Addr.Unit = unit.String
	e.Addr.City = city.String
	e.Addr.District = district.String
	e.Addr.Region = region.String
	e.Addr.Postcode = postcode.String
	return e, nil
}

// AddressRow pairs a surviving address with its id and rank, for dump.
type AddressRow struct {
	ID   address.ID
	Rank address.Rank
	Addr address.Address
}

// AddressScan iterates every row of addresses in id order.
type AddressScan struct {
	rows *sql.Rows
}

// ScanAddresses opens a full scan of addresses, ordered by id, for the
// dump emitter. Runs on the read-only connection.
func (s *Store) ScanAddresses(ctx context.Context) (*AddressScan, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, rank, lat, lon, number, street, unit, city, district, region, postcode
		FROM addresses
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: scan_addresses: %w", err)
	}
	return &AddressScan{rows: rows}, nil
}

// Next advances the scan.
func (as *AddressScan) Next() bool { return as.rows.Next() }

// Err returns the first iteration error, if any.
func (as *AddressScan) Err() error { return as.rows.Err() }

// Close releases the underlying rows.
func (as *AddressScan) Close() error { return as.rows.Close() }

// Row decodes the current row into an AddressRow.
func (as *AddressScan) Row() (AddressRow, error) {
	var (
		row                                            AddressRow
		id                                             int64
		rank                                           float64
		number, unit, city, district, region, postcode sql.NullString
	)
	if err := as.rows.Scan(&id, &rank, &row.Addr.Lat, &row.Addr.Lon,
		&number, &row.Addr.Street, &unit, &city, &district, &region, &postcode); err != nil {
		return AddressRow{}, err
	}
	row.ID = address.ID(id)
	row.Rank = address.Rank(rank)
	row.Addr.Number = number.String
	row.Addr.Unit = unit.String
	row.Addr.City = city.String
	row.Addr.District = district.String
	row.Addr.Region = region.String
	row.Addr.Postcode = postcode.String
	return row, nil
}
