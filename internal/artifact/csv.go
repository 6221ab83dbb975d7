package artifact

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sreeram77/battery-pm/internal/table"
)

var (
	// ErrFileNotFound is returned when an artifact path does not exist
	ErrFileNotFound = errors.New("file not found")
	// ErrParse is returned when an artifact exists but cannot be decoded
	ErrParse = errors.New("failed to parse file")
)

// isMissing reports whether a raw cell denotes a missing value
func isMissing(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "na", "n/a", "null", "none":
		return true
	}
	return false
}

// Store reads and writes pipeline artifacts on the local filesystem
type Store struct {
	logger zerolog.Logger
}

// NewStore creates a new artifact store
func NewStore(logger zerolog.Logger) *Store {
	return &Store{logger: logger}
}

// LoadTable reads a CSV file with a header row into a table
func (s *Store) LoadTable(path string) (*table.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Error().Str("path", path).Msg("File not found")
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	t, err := ReadTable(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	s.logger.Info().
		Str("path", path).
		Int("rows", t.Len()).
		Int("columns", len(t.Names())).
		Msg("CSV file loaded")
	return t, nil
}

// ReadTable decodes CSV content with a header row into a table
func ReadTable(r io.Reader) (*table.Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	// Read the header
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty CSV", ErrParse)
		}
		return nil, fmt.Errorf("%w: failed to read CSV header: %v", ErrParse, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV records: %v", ErrParse, err)
	}

	cols := make([]*table.Column, len(header))
	for j, name := range header {
		raw := make([]string, len(records))
		for i, rec := range records {
			raw[i] = rec[j]
		}
		cols[j] = inferColumn(strings.TrimSpace(name), raw)
	}

	t, err := table.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return t, nil
}

// inferColumn picks the narrowest kind that accepts every non-missing cell
func inferColumn(name string, raw []string) *table.Column {
	if nums, ok := parseNumeric(raw); ok {
		return table.NewNumeric(name, nums)
	}
	if times, ok := parseTimes(raw); ok {
		return table.NewTime(name, times)
	}
	return table.NewText(name, raw)
}

func parseNumeric(raw []string) ([]float64, bool) {
	out := make([]float64, len(raw))
	for i, s := range raw {
		if isMissing(s) {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func parseTimes(raw []string) ([]time.Time, bool) {
	out := make([]time.Time, len(raw))
	seen := false
	for i, s := range raw {
		if isMissing(s) {
			continue
		}
		t, err := table.ParseTime(s)
		if err != nil {
			return nil, false
		}
		out[i] = t
		seen = true
	}
	return out, seen
}

// SaveTable writes a table as CSV, creating parent directories as needed
func (s *Store) SaveTable(t *table.Table, path string) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := WriteTable(file, t); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.logger.Info().
		Str("path", path).
		Int("rows", t.Len()).
		Msg("Table saved")
	return nil
}

// WriteTable encodes a table as CSV with a header row
func WriteTable(w io.Writer, t *table.Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.Names()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i := 0; i < t.Len(); i++ {
		if err := writer.Write(t.Row(i)); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// EnsureDir creates a directory and its parents if they do not exist
func EnsureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
