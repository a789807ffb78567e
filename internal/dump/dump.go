// Package dump streams surviving addresses out to a gzip-compressed CSV
// file: a csv.Writer wrapped in a gzip encoder, one row per address,
// O(1) memory. Using afero instead of the bare os package lets callers
// substitute an in-memory filesystem in tests.
package dump

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/erigontech/geodedupe/internal/store"
)

// columns is the fixed CSV column order, matching the OpenAddresses
// convention: coordinates first, then the address fields, then
// bookkeeping columns.
var columns = []string{
	"LON", "LAT", "NUMBER", "STREET", "UNIT", "CITY", "DISTRICT", "REGION", "POSTCODE", "ID", "RANK",
}

// Write streams every row of addresses through a gzip-compressed CSV
// writer at path on fs. Per-row scan failures are logged and the row is
// skipped rather than aborting the whole dump; a failure finalizing the
// gzip stream itself is fatal, since it likely means the output file is
// truncated or corrupt.
func Write(ctx context.Context, st *store.Store, fs afero.Fs, path string, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("dump: create %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)

	if err := w.Write(columns); err != nil {
		return fmt.Errorf("dump: write header: %w", err)
	}

	scan, err := st.ScanAddresses(ctx)
	if err != nil {
		return fmt.Errorf("dump: scan_addresses: %w", err)
	}
	defer scan.Close()

	var rowsWritten, rowsSkipped int64
	for scan.Next() {
		row, err := scan.Row()
		if err != nil {
			rowsSkipped++
			log.WithError(err).Warn("dump: skipping unreadable row")
			continue
		}

		record := []string{
			strconv.FormatFloat(row.Addr.Lon, 'f', -1, 64),
			strconv.FormatFloat(row.Addr.Lat, 'f', -1, 64),
			row.Addr.Number,
			row.Addr.Street,
			row.Addr.Unit,
			row.Addr.City,
			row.Addr.District,
			row.Addr.Region,
			row.Addr.Postcode,
			strconv.FormatInt(int64(row.ID), 10),
			strconv.FormatFloat(float64(row.Rank), 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			rowsSkipped++
			log.WithError(err).Warn("dump: skipping unwritable row")
			continue
		}
		rowsWritten++
	}
	if err := scan.Err(); err != nil {
		return fmt.Errorf("dump: scan: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("dump: csv flush: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("dump: gzip finalize: %w", err)
	}

	log.WithFields(logrus.Fields{
		"written": rowsWritten,
		"skipped": rowsSkipped,
		"path":    path,
	}).Info("dump: complete")
	return nil
}
