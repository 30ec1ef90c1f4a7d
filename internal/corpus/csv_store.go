// Package corpus persists accepted ideas to an append-only CSV file.
//
// The file has the header id,idea,manual_dev_hours. It is created on the first
// append and only ever appended to afterwards. Loading is header-driven so
// files with reordered or extra columns still seed the generator.
package corpus

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tbourn/go-idea-generator/internal/domain"
)

// Header is the column layout written on file creation.
var Header = []string{"id", "idea", "manual_dev_hours"}

// ErrCorrupt wraps rows that cannot be interpreted.
var ErrCorrupt = errors.New("corpus: corrupt file")

// CSVStore reads and appends the corpus file at Path. It assumes a single writer.
type CSVStore struct {
	path string
}

// NewCSVStore returns a store for path. The file need not exist yet.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the file location.
func (s *CSVStore) Path() string { return s.path }

// Load returns every idea text in file order and the largest id seen.
// An absent or empty file yields (nil, 0, nil). A file without an idea column
// yields no ideas; one without an id column yields 0.
func (s *CSVStore) Load() ([]string, int64, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("corpus: open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	idCol, ideaCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case "id":
			idCol = i
		case "idea":
			ideaCol = i
		}
	}

	var (
		ideas []string
		maxID int64
		line  = 1
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, 0, fmt.Errorf("%w: line %d: %v", ErrCorrupt, line, err)
		}
		if ideaCol >= 0 && ideaCol < len(rec) {
			if t := rec[ideaCol]; t != "" {
				ideas = append(ideas, t)
			}
		}
		if idCol >= 0 && idCol < len(rec) && strings.TrimSpace(rec[idCol]) != "" {
			id, err := parseID(rec[idCol])
			if err != nil {
				return nil, 0, fmt.Errorf("%w: line %d: id %q", ErrCorrupt, line, rec[idCol])
			}
			if id > maxID {
				maxID = id
			}
		}
	}
	return ideas, maxID, nil
}

// test seam
var writeAll = func(w io.Writer, b []byte) (int, error) { return w.Write(b) }

// Append writes rows, creating the file and its header when absent or empty.
// The parent directory is created as needed. Hours are written with two
// decimals; missing hours are written as an empty cell. A batch lands in one
// write: on failure the file is truncated back to its previous size. The file
// is synced before Append returns.
func (s *CSVStore) Append(rows []domain.Idea) (err error) {
	if len(rows) == 0 {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("corpus: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("corpus: open %s: %w", s.path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("corpus: close: %w", cerr)
		}
	}()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("corpus: stat: %w", err)
	}

	buf, err := encodeRows(rows, st.Size() == 0)
	if err != nil {
		return err
	}
	if _, err := writeAll(f, buf); err != nil {
		// Drop a partial write so the rows can be appended again later.
		if terr := f.Truncate(st.Size()); terr != nil {
			return fmt.Errorf("corpus: write: %w (truncate: %v)", err, terr)
		}
		return fmt.Errorf("corpus: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("corpus: sync: %w", err)
	}
	return nil
}

// encodeRows renders rows as CSV in memory, prefixed by the header when
// withHeader is set.
func encodeRows(rows []domain.Idea, withHeader bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if withHeader {
		if err := w.Write(Header); err != nil {
			return nil, fmt.Errorf("corpus: encode header: %w", err)
		}
	}
	for _, row := range rows {
		rec := []string{strconv.FormatInt(row.ID, 10), row.Idea, formatHours(row.ManualDevHours)}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("corpus: encode row %d: %w", row.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("corpus: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func formatHours(h float64) string {
	if math.IsNaN(h) {
		return ""
	}
	return strconv.FormatFloat(h, 'f', 2, 64)
}

// parseID accepts integers and integral floats ("12", "12.0").
func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}
