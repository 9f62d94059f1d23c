/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package collector

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Column names looked up in the CSV headers.
const (
	ColumnID        = "id"
	ColumnAddress   = "address"
	ColumnLatitude  = "latitude"
	ColumnLongitude = "longitude"
	ColumnUserID    = "user id"
	ColumnStartTime = "start time"
	ColumnEndTime   = "end time"
)

// timeLayouts are tried in order when parsing transaction timestamps.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/1/2 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// CSVStationSource reads stations from a CSV file.
type CSVStationSource struct {
	path string
}

// NewCSVStationSource creates a station source for the file at path.
func NewCSVStationSource(path string) *CSVStationSource {
	return &CSVStationSource{path: path}
}

func (s *CSVStationSource) Name() string { return s.path }

// Stations reads every station row.
func (s *CSVStationSource) Stations(ctx context.Context) ([]Station, error) {
	var stations []Station
	err := readCSV(ctx, s.path, []string{ColumnID, ColumnAddress, ColumnLatitude, ColumnLongitude},
		func(line int, get func(string) string) error {
			id, err := strconv.Atoi(get(ColumnID))
			if err != nil {
				return fmt.Errorf("%w: line %d: id: %w", ErrMalformedRecord, line, err)
			}
			lat, err := strconv.ParseFloat(get(ColumnLatitude), 64)
			if err != nil {
				return fmt.Errorf("%w: line %d: latitude: %w", ErrMalformedRecord, line, err)
			}
			lng, err := strconv.ParseFloat(get(ColumnLongitude), 64)
			if err != nil {
				return fmt.Errorf("%w: line %d: longitude: %w", ErrMalformedRecord, line, err)
			}
			stations = append(stations, Station{ID: id, Address: get(ColumnAddress), Latitude: lat, Longitude: lng})
			return nil
		})
	return stations, err
}

// CSVTransactionSource reads user sessions from a CSV file.
type CSVTransactionSource struct {
	path string
}

// NewCSVTransactionSource creates a transaction source for the file at path.
func NewCSVTransactionSource(path string) *CSVTransactionSource {
	return &CSVTransactionSource{path: path}
}

func (s *CSVTransactionSource) Name() string { return s.path }

// Transactions reads every transaction row.
func (s *CSVTransactionSource) Transactions(ctx context.Context) ([]Transaction, error) {
	var txs []Transaction
	err := readCSV(ctx, s.path, []string{ColumnAddress, ColumnUserID, ColumnStartTime, ColumnEndTime},
		func(line int, get func(string) string) error {
			start, err := ParseTime(get(ColumnStartTime))
			if err != nil {
				return fmt.Errorf("%w: line %d: start time: %w", ErrMalformedRecord, line, err)
			}
			end, err := ParseTime(get(ColumnEndTime))
			if err != nil {
				return fmt.Errorf("%w: line %d: end time: %w", ErrMalformedRecord, line, err)
			}
			txs = append(txs, Transaction{Address: get(ColumnAddress), UserID: get(ColumnUserID), Start: start, End: end})
			return nil
		})
	return txs, err
}

// ParseTime parses a timestamp in any of the supported layouts.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// readCSV opens path, resolves the required columns from the header and calls row for each record.
func readCSV(ctx context.Context, path string, required []string, row func(line int, get func(string) string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s has no header", ErrMalformedRecord, path)
		}
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return fmt.Errorf("%w: %s is missing column %q", ErrMalformedRecord, path, name)
		}
	}

	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		get := func(name string) string {
			i := index[name]
			if i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		if err := row(line, get); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
}
