// Package source loads the upstream CSV files into typed tables.
//
// Each file is read once per run. Cells are cleaned and typed column by
// column (see tabular.InferColumn), so a column is numeric only when every
// non-empty cell in it parses as a number.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/covidstat/internal/logging"
	"github.com/JonMunkholm/covidstat/internal/tabular"
)

var (
	// ErrSourceUnavailable: a file could not be opened or parsed as CSV.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMissingColumns: a file lacks columns the catalog relies on.
	ErrMissingColumns = errors.New("missing source columns")
)

// Spec names one input file.
type Spec struct {
	Name    string   // key the catalog uses to refer to the table
	File    string   // file name relative to the source directory
	Columns []string // required header columns; empty means no check
}

// Load reads every spec'd file under dir. The first failure aborts the load.
func Load(ctx context.Context, dir string, delimiter rune, specs []Spec) (map[string]tabular.Table, error) {
	tables := make(map[string]tabular.Table, len(specs))
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, dup := tables[spec.Name]; dup {
			return nil, fmt.Errorf("%w: source %q declared twice", ErrSourceUnavailable, spec.Name)
		}

		t, err := LoadFile(ctx, filepath.Join(dir, spec.File), delimiter, spec.Columns)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", spec.Name, err)
		}
		tables[spec.Name] = t
	}
	return tables, nil
}

// LoadFile reads a single CSV file and checks its header.
func LoadFile(ctx context.Context, path string, delimiter rune, required []string) (tabular.Table, error) {
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()

	counter := &countingReader{r: f}
	t, err := Read(counter, delimiter, required)
	if err != nil {
		return tabular.Table{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	logging.FromContext(ctx).Debug("source loaded",
		"file", filepath.Base(path),
		"bytes", counter.n,
		"rows", t.Len(),
		"columns", t.Width(),
		"duration", time.Since(start),
	)
	return t, nil
}

// Read parses CSV from r: header row first, then data rows.
func Read(r io.Reader, delimiter rune, required []string) (tabular.Table, error) {
	cr := csv.NewReader(NewReader(r))
	cr.Comma = delimiter
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return tabular.Table{}, fmt.Errorf("%w: empty file", ErrSourceUnavailable)
	}
	if err != nil {
		return tabular.Table{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	if err := ValidateHeaders(header, required); err != nil {
		return tabular.Table{}, err
	}

	raw := make([][]string, len(header))
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return tabular.Table{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		if isBlank(rec) {
			continue
		}
		for c := range header {
			raw[c] = append(raw[c], rec[c])
		}
	}

	cols := make([][]tabular.Value, len(header))
	for c := range header {
		cols[c] = tabular.InferColumn(raw[c])
	}

	var n int
	if len(header) > 0 {
		n = len(cols[0])
	}
	rows := make([][]tabular.Value, n)
	for i := range rows {
		row := make([]tabular.Value, len(header))
		for c := range header {
			row[c] = cols[c][i]
		}
		rows[i] = row
	}

	return tabular.New(header, rows)
}

// ValidateHeaders checks that all required columns exist in the header,
// reporting every missing column at once.
func ValidateHeaders(header, required []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

// isBlank reports whether a record is a trailing line of empty cells.
func isBlank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
