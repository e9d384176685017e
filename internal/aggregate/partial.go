package aggregate

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"
	"github.com/paveg/lakescan/internal/scalar"
	"github.com/paveg/lakescan/internal/schema"
	"github.com/paveg/lakescan/internal/table"
)

// state is the running value of one aggregate within one group. Min and
// Max track the extreme non-NaN value and remember whether NaN was seen.
type state struct {
	count  int64
	sumI   int64
	sumF   float64
	best   scalar.Value
	sawNaN bool
}

func (s *state) add(f Func, intSum bool, v scalar.Value) {
	if v.IsNull() {
		return
	}
	s.count++
	switch f {
	case Sum, Mean:
		if intSum {
			s.sumI += v.AsInt()
		} else {
			s.sumF += v.AsFloat()
		}
	case Min, Max:
		s.offer(f, v)
	}
}

func (s *state) offer(f Func, v scalar.Value) {
	if v.IsNaN() {
		s.sawNaN = true
		return
	}
	if s.best.IsNull() {
		s.best = v
		return
	}
	c, ok := scalar.Compare(v, s.best)
	if ok && ((f == Min && c < 0) || (f == Max && c > 0)) {
		s.best = v
	}
}

func (s *state) merge(f Func, o state) {
	s.count += o.count
	s.sumI += o.sumI
	s.sumF += o.sumF
	if o.sawNaN {
		s.sawNaN = true
	}
	if !o.best.IsNull() {
		s.offer(f, o.best)
	}
}

func (s *state) result(f Func, intSum bool) scalar.Value {
	if f == Count {
		return scalar.Int(s.count)
	}
	if s.count == 0 {
		return scalar.Null()
	}
	switch f {
	case Sum:
		if intSum {
			return scalar.Int(s.sumI)
		}
		return scalar.Float(s.sumF)
	case Mean:
		if intSum {
			return scalar.Float(float64(s.sumI) / float64(s.count))
		}
		return scalar.Float(s.sumF / float64(s.count))
	default:
		if !s.best.IsNull() {
			return s.best
		}
		if s.sawNaN {
			return scalar.Float(math.NaN())
		}
		return scalar.Null()
	}
}

type group struct {
	key    []scalar.Value
	states []state
}

// Partial holds per-group aggregate state for a subset of the input. Groups
// keep the order in which they first appeared.
type Partial struct {
	spec    Spec
	in      *schema.Schema
	intSum  []bool
	groups  []*group
	buckets map[uint64][]int
	rows    int64
	buf     []byte
}

// NewPartial returns an empty partial for spec over input schema in.
func NewPartial(spec Spec, in *schema.Schema) (*Partial, error) {
	if err := spec.Validate(in); err != nil {
		return nil, err
	}
	intSum := make([]bool, len(spec.Aggs))
	for i, a := range spec.Aggs {
		f, _ := in.Field(a.Column)
		intSum[i] = f.Type.IsInteger()
	}
	return &Partial{
		spec:    spec,
		in:      in,
		intSum:  intSum,
		buckets: make(map[uint64][]int),
	}, nil
}

// Spec returns the aggregation the partial computes.
func (p *Partial) Spec() Spec { return p.spec }

// Len returns the number of groups.
func (p *Partial) Len() int { return len(p.groups) }

// Rows returns the number of input rows folded in.
func (p *Partial) Rows() int64 { return p.rows }

// Update folds every row of rec into the partial. Columns absent from rec
// read as null.
func (p *Partial) Update(rec arrow.Record) error {
	keyCols := p.lookup(rec, p.spec.GroupBy)
	aggCols := make([]arrow.Array, len(p.spec.Aggs))
	for i, a := range p.spec.Aggs {
		aggCols[i] = p.lookup(rec, []string{a.Column})[0]
	}

	key := make([]scalar.Value, len(keyCols))
	for row := 0; row < int(rec.NumRows()); row++ {
		for i, col := range keyCols {
			v, err := valueAt(col, row)
			if err != nil {
				return fmt.Errorf("group key %q: %w", p.spec.GroupBy[i], err)
			}
			key[i] = v
		}
		g := p.find(key)
		for i, a := range p.spec.Aggs {
			v, err := valueAt(aggCols[i], row)
			if err != nil {
				return fmt.Errorf("aggregate %s: %w", a, err)
			}
			g.states[i].add(a.Func, p.intSum[i], v)
		}
	}
	p.rows += rec.NumRows()
	return nil
}

func (p *Partial) lookup(rec arrow.Record, names []string) []arrow.Array {
	cols := make([]arrow.Array, len(names))
	for i, name := range names {
		if idx := rec.Schema().FieldIndices(name); len(idx) > 0 {
			cols[i] = rec.Column(idx[0])
		}
	}
	return cols
}

func valueAt(col arrow.Array, row int) (scalar.Value, error) {
	if col == nil {
		return scalar.Null(), nil
	}
	return scalar.FromArray(col, row)
}

// find returns the group for key, creating it on first sight. key is
// copied when a group is created.
func (p *Partial) find(key []scalar.Value) *group {
	p.buf = p.buf[:0]
	for _, k := range key {
		p.buf = k.AppendKey(p.buf)
	}
	h := xxhash.Sum64(p.buf)
	for _, idx := range p.buckets[h] {
		if sameKey(p.groups[idx].key, key) {
			return p.groups[idx]
		}
	}
	g := &group{
		key:    append([]scalar.Value(nil), key...),
		states: make([]state, len(p.spec.Aggs)),
	}
	p.buckets[h] = append(p.buckets[h], len(p.groups))
	p.groups = append(p.groups, g)
	return g
}

func sameKey(a, b []scalar.Value) bool {
	for i := range a {
		if !scalar.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (p *Partial) clone() *Partial {
	c := &Partial{
		spec:    p.spec,
		in:      p.in,
		intSum:  p.intSum,
		groups:  make([]*group, len(p.groups)),
		buckets: make(map[uint64][]int, len(p.buckets)),
		rows:    p.rows,
	}
	for i, g := range p.groups {
		c.groups[i] = &group{key: g.key, states: append([]state(nil), g.states...)}
	}
	for h, idx := range p.buckets {
		c.buckets[h] = append([]int(nil), idx...)
	}
	return c
}

// Combine merges partials left to right into a new partial without
// modifying its inputs. Groups of earlier partials come first. Combine is
// associative.
func Combine(parts ...*Partial) (*Partial, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("combine needs at least one partial")
	}
	out := parts[0].clone()
	for _, p := range parts[1:] {
		if err := out.absorb(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Partial) absorb(o *Partial) error {
	if len(o.spec.Aggs) != len(p.spec.Aggs) || len(o.spec.GroupBy) != len(p.spec.GroupBy) {
		return fmt.Errorf("cannot combine partials of %q and %q", p.spec, o.spec)
	}
	for _, og := range o.groups {
		g := p.find(og.key)
		for i, a := range p.spec.Aggs {
			g.states[i].merge(a.Func, og.states[i])
		}
	}
	p.rows += o.rows
	return nil
}

// Finalize builds the result table: one row per group, group keys first.
// Without group keys there is exactly one row, even over no input.
func (p *Partial) Finalize(mem memory.Allocator) (*table.Table, error) {
	out, err := p.spec.OutputSchema(p.in)
	if err != nil {
		return nil, err
	}
	as := out.ToArrow()
	b := array.NewRecordBuilder(mem, as)
	defer b.Release()

	groups := p.groups
	if len(p.spec.GroupBy) == 0 && len(groups) == 0 {
		groups = []*group{{states: make([]state, len(p.spec.Aggs))}}
	}
	nk := len(p.spec.GroupBy)
	for _, g := range groups {
		for i, k := range g.key {
			if err := scalar.Append(b.Field(i), k); err != nil {
				return nil, fmt.Errorf("group key %q: %w", p.spec.GroupBy[i], err)
			}
		}
		for i, a := range p.spec.Aggs {
			v := g.states[i].result(a.Func, p.intSum[i])
			if err := scalar.Append(b.Field(nk+i), v); err != nil {
				return nil, fmt.Errorf("aggregate %s: %w", a, err)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()
	return table.FromRecords(as, []arrow.Record{rec}, mem)
}
