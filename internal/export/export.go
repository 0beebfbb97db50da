// Package export renders ledger history as JSON or CSV and reads it back.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"pin-ledger/internal/core/domain"
	"pin-ledger/pkg/money"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ErrUnknownFormat is returned for a format other than json or csv.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat maps a user supplied name to a Format. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Header is the CSV header row.
var Header = []string{"type", "amount", "counterparty", "timestamp"}

// Record is one exported ledger entry.
type Record struct {
	Type         domain.EntryKind `json:"type"`
	Amount       money.Amount     `json:"amount"`
	Counterparty string           `json:"counterparty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// FromEntry projects a ledger entry onto its exported fields.
func FromEntry(e domain.LedgerEntry) Record {
	return Record{
		Type:         e.Kind,
		Amount:       e.Amount,
		Counterparty: e.Counterparty,
		Timestamp:    e.Timestamp.UTC(),
	}
}

// Encode writes records in format f. An empty history encodes as "[]" or a
// lone header row.
func Encode(f Format, records []Record) ([]byte, error) {
	switch f {
	case FormatJSON:
		if records == nil {
			records = []Record{}
		}
		return json.MarshalIndent(records, "", "  ")
	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(Header); err != nil {
			return nil, err
		}
		for _, r := range records {
			row := []string{
				string(r.Type),
				r.Amount.String(),
				r.Counterparty,
				r.Timestamp.UTC().Format(time.RFC3339Nano),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// Decode parses the output of Encode.
func Decode(f Format, data []byte) ([]Record, error) {
	switch f {
	case FormatJSON:
		var records []Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decoding json export: %w", err)
		}
		return records, nil
	case FormatCSV:
		return decodeCSV(bytes.NewReader(data))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func decodeCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	for i, col := range Header {
		if head[i] != col {
			return nil, fmt.Errorf("unexpected csv column %d: %q", i, head[i])
		}
	}

	records := []Record{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row: %w", err)
		}

		kind := domain.EntryKind(row[0])
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown entry type %q", row[0])
		}
		amount, err := money.Parse(row[1])
		if err != nil {
			return nil, fmt.Errorf("parsing amount: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, row[3])
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		records = append(records, Record{
			Type:         kind,
			Amount:       amount,
			Counterparty: row[2],
			Timestamp:    ts.UTC(),
		})
	}
}
