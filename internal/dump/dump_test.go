package dump

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/erigontech/geodedupe/internal/address"
	"github.com/erigontech/geodedupe/internal/store"
)

func TestWriteStreamsSurvivingAddressesAsGzippedCSV(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := store.Open(ctx, filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	txn, err := st.BeginWrite(ctx)
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if _, err := txn.InsertAddress(ctx, address.Address{Lat: 45.5, Lon: -73.5, Street: "Main St", Number: "5", City: "Montreal"}, 1); err != nil {
		t.Fatalf("InsertAddress: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	fs := afero.NewMemMapFs()
	if err := Write(ctx, st, fs, "/dump.csv.gz", nil); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := fs.Open("/dump.csv.gz")
	if err != nil {
		t.Fatalf("Open dump: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("reading decompressed dump: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	if err != nil {
		t.Fatalf("parsing dumped CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected a header row and one data row, got %d rows", len(records))
	}
	if records[0][0] != "LON" {
		t.Errorf("expected first column header LON, got %q", records[0][0])
	}
	if records[1][3] != "Main St" {
		t.Errorf("expected STREET column to contain %q, got %q", "Main St", records[1][3])
	}
}
