// Package table holds the immutable, column-named tables the cost report is
// computed with. Every operation returns a new table; rows of an existing
// table are never modified.
package table

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingColumn   = errors.New("missing column")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrRowShape        = errors.New("row does not match schema")
)

// Row is one record. Labels and Values are positional against the owning
// table's schema. Time is the zero time for tables that have been grouped.
type Row struct {
	Time   time.Time
	Labels []string
	Values []float64
}

// Schema names the string label columns and float value columns of a table.
type Schema struct {
	Labels []string
	Values []string
}

func (s Schema) labelIndex(name string) int {
	for i, l := range s.Labels {
		if l == name {
			return i
		}
	}
	return -1
}

func (s Schema) valueIndex(name string) int {
	for i, v := range s.Values {
		if v == name {
			return i
		}
	}
	return -1
}

func (s Schema) HasLabel(name string) bool { return s.labelIndex(name) >= 0 }
func (s Schema) HasValue(name string) bool { return s.valueIndex(name) >= 0 }

func (s Schema) validate() error {
	seen := make(map[string]bool, len(s.Labels)+len(s.Values))
	for _, name := range append(append([]string{}, s.Labels...), s.Values...) {
		if seen[name] {
			return fmt.Errorf("%w: %s", ErrDuplicateColumn, name)
		}
		seen[name] = true
	}
	return nil
}

func (s Schema) clone() Schema {
	return Schema{
		Labels: append([]string(nil), s.Labels...),
		Values: append([]string(nil), s.Values...),
	}
}

// Table is an immutable sequence of rows sharing a schema.
type Table struct {
	schema Schema
	rows   []Row
}

// New builds a table, checking column names are unique and every row has
// the schema's shape. The rows are copied.
func New(schema Schema, rows []Row) (*Table, error) {
	if err := schema.validate(); err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		if len(r.Labels) != len(schema.Labels) || len(r.Values) != len(schema.Values) {
			return nil, fmt.Errorf("%w: row %d has %d labels and %d values, want %d and %d",
				ErrRowShape, i, len(r.Labels), len(r.Values), len(schema.Labels), len(schema.Values))
		}
		out[i] = copyRow(r)
	}
	return &Table{schema: schema.clone(), rows: out}, nil
}

// Empty returns a table with no rows.
func Empty(schema Schema) *Table {
	return &Table{schema: schema.clone()}
}

func copyRow(r Row) Row {
	return Row{
		Time:   r.Time,
		Labels: append([]string(nil), r.Labels...),
		Values: append([]float64(nil), r.Values...),
	}
}

func (t *Table) Len() int { return len(t.rows) }

// Schema returns a copy of the table's schema.
func (t *Table) Schema() Schema { return t.schema.clone() }

// Row returns a copy of row i.
func (t *Table) Row(i int) Row { return copyRow(t.rows[i]) }

// Times returns the row timestamps in order.
func (t *Table) Times() []time.Time {
	out := make([]time.Time, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Time
	}
	return out
}

// Column returns the values of a float column.
func (t *Table) Column(name string) ([]float64, error) {
	idx := t.schema.valueIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Values[idx]
	}
	return out, nil
}

// LabelColumn returns the values of a label column.
func (t *Table) LabelColumn(name string) ([]string, error) {
	idx := t.schema.labelIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Labels[idx]
	}
	return out, nil
}

// Concat stacks tables. The result schema is the union of the inputs'
// columns in first-seen order; a column a table lacks reads "" for labels
// and 0.0 for values.
func Concat(tables ...*Table) *Table {
	var schema Schema
	for _, t := range tables {
		for _, l := range t.schema.Labels {
			if !schema.HasLabel(l) {
				schema.Labels = append(schema.Labels, l)
			}
		}
		for _, v := range t.schema.Values {
			if !schema.HasValue(v) {
				schema.Values = append(schema.Values, v)
			}
		}
	}

	var rows []Row
	for _, t := range tables {
		labelMap := make([]int, len(schema.Labels))
		for i, l := range schema.Labels {
			labelMap[i] = t.schema.labelIndex(l)
		}
		valueMap := make([]int, len(schema.Values))
		for i, v := range schema.Values {
			valueMap[i] = t.schema.valueIndex(v)
		}
		for _, r := range t.rows {
			nr := Row{
				Time:   r.Time,
				Labels: make([]string, len(schema.Labels)),
				Values: make([]float64, len(schema.Values)),
			}
			for i, src := range labelMap {
				if src >= 0 {
					nr.Labels[i] = r.Labels[src]
				}
			}
			for i, src := range valueMap {
				if src >= 0 {
					nr.Values[i] = r.Values[src]
				}
			}
			rows = append(rows, nr)
		}
	}
	return &Table{schema: schema, rows: rows}
}

// JoinStats counts rows that found no partner in an inner join.
type JoinStats struct {
	LeftOnly  int
	RightOnly int
}

// InnerJoin joins two tables on the instant of their row timestamps. Rows
// whose instant appears on one side only are dropped. The result keeps the
// left row's Time and left-hand order; columns are the left's followed by
// the right's columns the left does not already have. Repeated instants
// produce one row per matching pair.
func InnerJoin(left, right *Table) (*Table, JoinStats) {
	schema := left.schema.clone()
	var rightLabels, rightValues []int
	for i, l := range right.schema.Labels {
		if !schema.HasLabel(l) {
			schema.Labels = append(schema.Labels, l)
			rightLabels = append(rightLabels, i)
		}
	}
	for i, v := range right.schema.Values {
		if !schema.HasValue(v) {
			schema.Values = append(schema.Values, v)
			rightValues = append(rightValues, i)
		}
	}

	byInstant := make(map[int64][]int, len(right.rows))
	for i, r := range right.rows {
		k := r.Time.UnixNano()
		byInstant[k] = append(byInstant[k], i)
	}

	var stats JoinStats
	matched := make(map[int64]bool, len(right.rows))
	var rows []Row
	for _, l := range left.rows {
		k := l.Time.UnixNano()
		partners := byInstant[k]
		if len(partners) == 0 {
			stats.LeftOnly++
			continue
		}
		matched[k] = true
		for _, ri := range partners {
			r := right.rows[ri]
			nr := Row{
				Time:   l.Time,
				Labels: append([]string(nil), l.Labels...),
				Values: append([]float64(nil), l.Values...),
			}
			for _, src := range rightLabels {
				nr.Labels = append(nr.Labels, r.Labels[src])
			}
			for _, src := range rightValues {
				nr.Values = append(nr.Values, r.Values[src])
			}
			rows = append(rows, nr)
		}
	}
	for _, r := range right.rows {
		if !matched[r.Time.UnixNano()] {
			stats.RightOnly++
		}
	}
	return &Table{schema: schema, rows: rows}, stats
}
