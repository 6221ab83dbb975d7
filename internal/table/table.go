package table

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrColumnNotFound is returned when a named column does not exist in a table
var ErrColumnNotFound = errors.New("column not found")

// TimeLayout is the layout used when a time cell is rendered as text.
// Cells are rendered in UTC and fractional seconds are kept.
const TimeLayout = "2006-01-02 15:04:05.999999999"

// Kind identifies the value type held by a column
type Kind int

const (
	// Numeric columns hold float64 values, NaN marks a missing value
	Numeric Kind = iota
	// Time columns hold timestamps, the zero time marks a missing value
	Time
	// Text columns hold raw strings
	Text
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Time:
		return "time"
	case Text:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column is a named, typed sequence of values. Exactly one of the value
// slices is populated, according to Kind.
type Column struct {
	Name  string
	Kind  Kind
	Nums  []float64
	Times []time.Time
	Texts []string
}

// NewNumeric creates a numeric column
func NewNumeric(name string, values []float64) *Column {
	return &Column{Name: name, Kind: Numeric, Nums: values}
}

// NewTime creates a time column
func NewTime(name string, values []time.Time) *Column {
	return &Column{Name: name, Kind: Time, Times: values}
}

// NewText creates a text column
func NewText(name string, values []string) *Column {
	return &Column{Name: name, Kind: Text, Texts: values}
}

// Len returns the number of values in the column
func (c *Column) Len() int {
	switch c.Kind {
	case Numeric:
		return len(c.Nums)
	case Time:
		return len(c.Times)
	default:
		return len(c.Texts)
	}
}

// Cell renders the value at row i as text. Missing values render as "".
func (c *Column) Cell(i int) string {
	switch c.Kind {
	case Numeric:
		v := c.Nums[i]
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case Time:
		t := c.Times[i]
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(TimeLayout)
	default:
		return c.Texts[i]
	}
}

// Key renders the value at row i as an exact identity string. Unlike Cell,
// time values keep their zone offset so equal wall clocks in different zones
// stay distinct.
func (c *Column) Key(i int) string {
	switch c.Kind {
	case Numeric:
		v := c.Nums[i]
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case Time:
		t := c.Times[i]
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339Nano)
	default:
		return c.Texts[i]
	}
}

// clone returns a deep copy of the column
func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Numeric:
		out.Nums = append([]float64(nil), c.Nums...)
	case Time:
		out.Times = append([]time.Time(nil), c.Times...)
	default:
		out.Texts = append([]string(nil), c.Texts...)
	}
	return out
}

// take returns a new column holding the values at the given row indices
func (c *Column) take(indices []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	switch c.Kind {
	case Numeric:
		out.Nums = make([]float64, len(indices))
		for i, idx := range indices {
			out.Nums[i] = c.Nums[idx]
		}
	case Time:
		out.Times = make([]time.Time, len(indices))
		for i, idx := range indices {
			out.Times[i] = c.Times[idx]
		}
	default:
		out.Texts = make([]string, len(indices))
		for i, idx := range indices {
			out.Texts[i] = c.Texts[idx]
		}
	}
	return out
}

// Table is an ordered set of equally long named columns.
// Table values are treated as immutable: every transformation returns a new Table.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New builds a table from columns. All columns must have the same length
// and distinct names.
func New(columns ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), t.rows)
		}
		t.index[c.Name] = i
		t.columns = append(t.columns, c)
	}
	return t, nil
}

// MustNew is like New but panics on error. Intended for tests and literals.
func MustNew(columns ...*Column) *Table {
	t, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of rows
func (t *Table) Len() int {
	return t.rows
}

// Names returns the column names in order
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order. Callers must not modify them.
func (t *Table) Columns() []*Column {
	return t.columns
}

// Has reports whether the table contains the named column
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return t.columns[i], nil
}

// Numeric returns the values of a numeric column
func (t *Table) Numeric(name string) ([]float64, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != Numeric {
		return nil, fmt.Errorf("column %q is %s, not numeric", name, c.Kind)
	}
	return c.Nums, nil
}

// Times returns the values of a time column
func (t *Table) Times(name string) ([]time.Time, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != Time {
		return nil, fmt.Errorf("column %q is %s, not time", name, c.Kind)
	}
	return c.Times, nil
}

// NumericNames returns the names of all numeric columns in order
func (t *Table) NumericNames() []string {
	var names []string
	for _, c := range t.columns {
		if c.Kind == Numeric {
			names = append(names, c.Name)
		}
	}
	return names
}

// WithColumn returns a new table with c added. A column with the same name
// is replaced in place; otherwise c is appended.
func (t *Table) WithColumn(c *Column) (*Table, error) {
	if len(t.columns) > 0 && c.Len() != t.rows {
		return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), t.rows)
	}
	cols := make([]*Column, len(t.columns), len(t.columns)+1)
	copy(cols, t.columns)
	if i, ok := t.index[c.Name]; ok {
		cols[i] = c
	} else {
		cols = append(cols, c)
	}
	return New(cols...)
}

// Take returns a new table containing the given rows in the given order
func (t *Table) Take(indices []int) *Table {
	cols := make([]*Column, len(t.columns))
	for i, c := range t.columns {
		cols[i] = c.take(indices)
	}
	out := &Table{columns: cols, index: make(map[string]int, len(cols)), rows: len(indices)}
	for i, c := range cols {
		out.index[c.Name] = i
	}
	return out
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	cols := make([]*Column, len(t.columns))
	for i, c := range t.columns {
		cols[i] = c.clone()
	}
	return MustNew(cols...)
}

// Row renders row i as text cells in column order
func (t *Table) Row(i int) []string {
	row := make([]string, len(t.columns))
	for j, c := range t.columns {
		row[j] = c.Cell(i)
	}
	return row
}

// RowKey returns a string identifying row i by the exact value of every
// column. Two rows share a key only when all their values are equal.
func (t *Table) RowKey(i int) string {
	var b strings.Builder
	for j, c := range t.columns {
		if j > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(c.Key(i))
	}
	return b.String()
}
