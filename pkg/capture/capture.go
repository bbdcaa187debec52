// Package capture persists activity records to newline-delimited JSON
// files for offline exchange and re-import. The first line of every file
// is a metadata record; each following line is one activity record. The
// framing is fixed so files written by older collectors stay readable.
package capture

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/filetrail/filetrail/pkg/activity"
)

const (
	recordTypeMetadata = "metadata"
	recordTypeActivity = "activity"

	// FormatVersion is stamped into every capture file's metadata line.
	FormatVersion = "1.0"
)

// ErrMissingMetadata indicates a capture file whose first line is not a
// metadata record.
var ErrMissingMetadata = errors.New("capture: missing metadata record")

// Metadata is the first line of a capture file.
type Metadata struct {
	RecordType    string    `json:"record_type"`
	FormatVersion string    `json:"format_version"`
	ProviderID    string    `json:"provider_id,omitempty"`
	CapturedAt    time.Time `json:"captured_at"`
	RecordCount   int       `json:"record_count"`
}

// line is the envelope for every activity line in a capture file.
type line struct {
	RecordType string `json:"record_type"`
	activity.Record
}

// Save writes records to path in capture framing, replacing any existing
// file. The metadata line carries the provider id and the record count.
func Save(path, providerID string, records []activity.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("capture.Save: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := Write(w, providerID, records); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("capture.Save: %w", err)
	}

	slog.Info("capture file written", "path", path, "records", len(records))
	return nil
}

// Write streams records in capture framing to w.
func Write(w io.Writer, providerID string, records []activity.Record) error {
	enc := json.NewEncoder(w)

	meta := Metadata{
		RecordType:    recordTypeMetadata,
		FormatVersion: FormatVersion,
		ProviderID:    providerID,
		CapturedAt:    time.Now().UTC(),
		RecordCount:   len(records),
	}
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("capture.Write: metadata: %w", err)
	}

	for i, rec := range records {
		if err := enc.Encode(line{RecordType: recordTypeActivity, Record: rec}); err != nil {
			return fmt.Errorf("capture.Write: record %d: %w", i, err)
		}
	}
	return nil
}

// Load reads a capture file written by Save. Lines with an unknown
// record_type are skipped with a warning so newer files with extra record
// kinds still load.
func Load(path string) (Metadata, []activity.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("capture.Load: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read parses capture framing from r.
func Read(r io.Reader) (Metadata, []activity.Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return Metadata{}, nil, fmt.Errorf("capture.Read: %w", err)
		}
		return Metadata{}, nil, ErrMissingMetadata
	}

	var meta Metadata
	if err := json.Unmarshal(sc.Bytes(), &meta); err != nil || meta.RecordType != recordTypeMetadata {
		return Metadata{}, nil, ErrMissingMetadata
	}

	var records []activity.Record
	lineNo := 1
	for sc.Scan() {
		lineNo++
		text := sc.Bytes()
		if len(text) == 0 {
			continue
		}

		var entry line
		if err := json.Unmarshal(text, &entry); err != nil {
			return meta, nil, fmt.Errorf("capture.Read: line %d: %w", lineNo, err)
		}
		if entry.RecordType != recordTypeActivity {
			slog.Warn("skipping unknown capture record type",
				"line", lineNo, "record_type", entry.RecordType)
			continue
		}

		rec := entry.Record
		rec.Normalize()
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return meta, nil, fmt.Errorf("capture.Read: %w", err)
	}

	return meta, records, nil
}
