package table

import (
	"fmt"
	"time"
)

// Stage is one named transformation. Check maps an input schema to the
// output schema and fails if a required column is absent; Apply is only
// called on tables whose schema passed Check.
type Stage interface {
	Name() string
	Check(in Schema) (Schema, error)
	Apply(t *Table) *Table
}

// Pipeline is an ordered list of stages validated against an input schema
// when it is built.
type Pipeline struct {
	name   string
	in     Schema
	stages []Stage
}

// NewPipeline checks every stage against the schema produced by the stages
// before it.
func NewPipeline(name string, in Schema, stages ...Stage) (*Pipeline, error) {
	schema := in.clone()
	for _, s := range stages {
		next, err := s.Check(schema)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: stage %s: %w", name, s.Name(), err)
		}
		if err := next.validate(); err != nil {
			return nil, fmt.Errorf("pipeline %s: stage %s: %w", name, s.Name(), err)
		}
		schema = next
	}
	return &Pipeline{name: name, in: in.clone(), stages: stages}, nil
}

// Run applies every stage in order. t must carry at least the columns the
// pipeline was built against.
func (p *Pipeline) Run(t *Table) (*Table, error) {
	for _, l := range p.in.Labels {
		if !t.schema.HasLabel(l) {
			return nil, fmt.Errorf("pipeline %s: %w: %s", p.name, ErrMissingColumn, l)
		}
	}
	for _, v := range p.in.Values {
		if !t.schema.HasValue(v) {
			return nil, fmt.Errorf("pipeline %s: %w: %s", p.name, ErrMissingColumn, v)
		}
	}
	for _, s := range p.stages {
		t = s.Apply(t)
	}
	return t, nil
}

func requireValues(in Schema, names []string) error {
	for _, n := range names {
		if !in.HasValue(n) {
			return fmt.Errorf("%w: %s", ErrMissingColumn, n)
		}
	}
	return nil
}

func requireLabels(in Schema, names []string) error {
	for _, n := range names {
		if !in.HasLabel(n) {
			return fmt.Errorf("%w: %s", ErrMissingColumn, n)
		}
	}
	return nil
}

// setValue returns a schema with value column out added, or the same schema
// when out already exists (the derived column replaces it).
func setValue(in Schema, out string) Schema {
	s := in.clone()
	if !s.HasValue(out) {
		s.Values = append(s.Values, out)
	}
	return s
}

func setLabel(in Schema, out string) Schema {
	s := in.clone()
	if !s.HasLabel(out) {
		s.Labels = append(s.Labels, out)
	}
	return s
}

type deriveStage struct {
	out    string
	inputs []string
	fn     func(args []float64) float64
}

// Derive computes value column out from the named input columns. fn
// receives the inputs in the order given.
func Derive(out string, inputs []string, fn func(args []float64) float64) Stage {
	return &deriveStage{out: out, inputs: append([]string(nil), inputs...), fn: fn}
}

func (d *deriveStage) Name() string { return "derive " + d.out }

func (d *deriveStage) Check(in Schema) (Schema, error) {
	if err := requireValues(in, d.inputs); err != nil {
		return Schema{}, err
	}
	return setValue(in, d.out), nil
}

func (d *deriveStage) Apply(t *Table) *Table {
	schema := setValue(t.schema, d.out)
	outIdx := schema.valueIndex(d.out)
	idx := make([]int, len(d.inputs))
	for i, n := range d.inputs {
		idx[i] = t.schema.valueIndex(n)
	}

	args := make([]float64, len(idx))
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		for j, k := range idx {
			args[j] = r.Values[k]
		}
		nr := copyRow(r)
		if outIdx == len(nr.Values) {
			nr.Values = append(nr.Values, 0)
		}
		nr.Values[outIdx] = d.fn(args)
		rows[i] = nr
	}
	return &Table{schema: schema, rows: rows}
}

type timeLabelStage struct {
	out string
	fn  func(time.Time) string
}

// TimeLabel derives label column out from each row's timestamp.
func TimeLabel(out string, fn func(time.Time) string) Stage {
	return &timeLabelStage{out: out, fn: fn}
}

func (s *timeLabelStage) Name() string { return "label " + s.out }

func (s *timeLabelStage) Check(in Schema) (Schema, error) { return setLabel(in, s.out), nil }

func (s *timeLabelStage) Apply(t *Table) *Table {
	return withLabel(t, s.out, func(r Row) string { return s.fn(r.Time) })
}

type constLabelStage struct {
	out, value string
}

// ConstLabel sets label column out to value on every row.
func ConstLabel(out, value string) Stage {
	return &constLabelStage{out: out, value: value}
}

func (s *constLabelStage) Name() string { return "label " + s.out }

func (s *constLabelStage) Check(in Schema) (Schema, error) { return setLabel(in, s.out), nil }

func (s *constLabelStage) Apply(t *Table) *Table {
	return withLabel(t, s.out, func(Row) string { return s.value })
}

func withLabel(t *Table, out string, fn func(Row) string) *Table {
	schema := setLabel(t.schema, out)
	outIdx := schema.labelIndex(out)
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		nr := copyRow(r)
		if outIdx == len(nr.Labels) {
			nr.Labels = append(nr.Labels, "")
		}
		nr.Labels[outIdx] = fn(r)
		rows[i] = nr
	}
	return &Table{schema: schema, rows: rows}
}

// ConstValue sets value column out to v on every row.
func ConstValue(out string, v float64) Stage {
	return &deriveStage{out: out, fn: func([]float64) float64 { return v }}
}

// Aggregate reduces the values of one column within a group.
type Aggregate func(values []float64) float64

type groupStage struct {
	keys []string
	cols []string
	agg  Aggregate
}

// GroupBy collapses rows sharing the same key labels into one row per
// group, reducing each of cols with agg. Groups are emitted in order of
// first appearance. Other columns are dropped and Time is zero.
func GroupBy(keys, cols []string, agg Aggregate) Stage {
	return &groupStage{
		keys: append([]string(nil), keys...),
		cols: append([]string(nil), cols...),
		agg:  agg,
	}
}

func (g *groupStage) Name() string { return fmt.Sprintf("group by %v", g.keys) }

func (g *groupStage) Check(in Schema) (Schema, error) {
	if err := requireLabels(in, g.keys); err != nil {
		return Schema{}, err
	}
	if err := requireValues(in, g.cols); err != nil {
		return Schema{}, err
	}
	return Schema{
		Labels: append([]string(nil), g.keys...),
		Values: append([]string(nil), g.cols...),
	}, nil
}

func (g *groupStage) Apply(t *Table) *Table {
	keyIdx := make([]int, len(g.keys))
	for i, k := range g.keys {
		keyIdx[i] = t.schema.labelIndex(k)
	}
	colIdx := make([]int, len(g.cols))
	for i, c := range g.cols {
		colIdx[i] = t.schema.valueIndex(c)
	}

	type group struct {
		labels []string
		values [][]float64
	}
	var order []string
	groups := make(map[string]*group)
	for _, r := range t.rows {
		labels := make([]string, len(keyIdx))
		for i, k := range keyIdx {
			labels[i] = r.Labels[k]
		}
		key := fmt.Sprintf("%q", labels)
		grp, ok := groups[key]
		if !ok {
			grp = &group{labels: labels, values: make([][]float64, len(colIdx))}
			groups[key] = grp
			order = append(order, key)
		}
		for i, c := range colIdx {
			grp.values[i] = append(grp.values[i], r.Values[c])
		}
	}

	rows := make([]Row, 0, len(order))
	for _, key := range order {
		grp := groups[key]
		nr := Row{Labels: grp.labels, Values: make([]float64, len(colIdx))}
		for i, vals := range grp.values {
			nr.Values[i] = g.agg(vals)
		}
		rows = append(rows, nr)
	}
	return &Table{
		schema: Schema{Labels: append([]string(nil), g.keys...), Values: append([]string(nil), g.cols...)},
		rows:   rows,
	}
}

type selectStage struct {
	labels []string
	values []string
}

// Select projects the table onto the named columns, in the order given.
func Select(labels, values []string) Stage {
	return &selectStage{
		labels: append([]string(nil), labels...),
		values: append([]string(nil), values...),
	}
}

func (s *selectStage) Name() string { return "select" }

func (s *selectStage) Check(in Schema) (Schema, error) {
	if err := requireLabels(in, s.labels); err != nil {
		return Schema{}, err
	}
	if err := requireValues(in, s.values); err != nil {
		return Schema{}, err
	}
	return Schema{
		Labels: append([]string(nil), s.labels...),
		Values: append([]string(nil), s.values...),
	}, nil
}

func (s *selectStage) Apply(t *Table) *Table {
	labelIdx := make([]int, len(s.labels))
	for i, l := range s.labels {
		labelIdx[i] = t.schema.labelIndex(l)
	}
	valueIdx := make([]int, len(s.values))
	for i, v := range s.values {
		valueIdx[i] = t.schema.valueIndex(v)
	}
	rows := make([]Row, len(t.rows))
	for i, r := range t.rows {
		nr := Row{
			Time:   r.Time,
			Labels: make([]string, len(labelIdx)),
			Values: make([]float64, len(valueIdx)),
		}
		for j, k := range labelIdx {
			nr.Labels[j] = r.Labels[k]
		}
		for j, k := range valueIdx {
			nr.Values[j] = r.Values[k]
		}
		rows[i] = nr
	}
	return &Table{
		schema: Schema{Labels: append([]string(nil), s.labels...), Values: append([]string(nil), s.values...)},
		rows:   rows,
	}
}
