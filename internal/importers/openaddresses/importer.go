// Package openaddresses reads the standard OpenAddresses CSV column
// layout (LON, LAT, NUMBER, STREET, UNIT, CITY, DISTRICT, REGION,
// POSTCODE) and feeds each row into an insertpipe.Pipeline.
package openaddresses

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/erigontech/geodedupe/internal/address"
	"github.com/erigontech/geodedupe/internal/insertpipe"
)

// Import reads CSV rows from r and submits each to p.Insert, tolerating
// any header column order by mapping columnName -> index once up front.
// Malformed rows (unparseable lat/lon) are skipped rather than aborting
// the whole import.
func Import(r io.Reader, p *insertpipe.Pipeline) (read, skipped int64, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("openaddresses: read header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return 0, 0, err
	}

	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return read, skipped, fmt.Errorf("openaddresses: read row: %w", err)
		}
		read++

		addr, ok := parseRow(rec, idx)
		if !ok {
			skipped++
			continue
		}
		p.Insert(addr)
	}
	return read, skipped, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	for _, want := range []string{"LON", "LAT", "NUMBER", "STREET"} {
		if _, ok := idx[want]; !ok {
			return nil, fmt.Errorf("openaddresses: header missing required column %q", want)
		}
	}
	return idx, nil
}

func parseRow(rec []string, idx map[string]int) (address.Address, bool) {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	lon, err := strconv.ParseFloat(get("LON"), 64)
	if err != nil {
		return address.Address{}, false
	}
	lat, err := strconv.ParseFloat(get("LAT"), 64)
	if err != nil {
		return address.Address{}, false
	}

	return address.Address{
		Lat:      lat,
		Lon:      lon,
		Number:   get("NUMBER"),
		Street:   get("STREET"),
		Unit:     get("UNIT"),
		City:     get("CITY"),
		District: get("DISTRICT"),
		Region:   get("REGION"),
		Postcode: get("POSTCODE"),
	}, true
}
