package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

// Stager spools the filtered batch to a snappy-compressed NDJSON file
// before the load runs, so a failed load can be diagnosed and replayed
// without re-fetching the source object.
type Stager struct {
	dir string
}

// NewStager creates a stager writing under dir.
func NewStager(dir string) (*Stager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Stager{dir: dir}, nil
}

// Spool writes the batch rows as one JSON object per line, snappy framed.
// The file name is keyed by compact date and run ID.
func (s *Stager) Spool(dateCompact, runID string, batch *Batch) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("batch_%s_%s.ndjson.sz", dateCompact, runID))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}
	defer f.Close()

	w := snappy.NewBufferedWriter(f)
	enc := json.NewEncoder(w)
	for i := range batch.Rows {
		if err := enc.Encode(&batch.Rows[i]); err != nil {
			w.Close()
			return "", fmt.Errorf("failed to encode staged row: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to flush staging file: %w", err)
	}

	return path, nil
}

// ReadSpool reads a staged batch file back into rows.
func ReadSpool(path string) ([]RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(snappy.NewReader(f))
	var rows []RawRow
	for {
		var row RawRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode staged row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
