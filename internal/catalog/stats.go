package catalog

import (
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet/metadata"
	"github.com/paveg/lakescan/internal/scalar"
)

// ColumnStats summarises one column of one file from footer metadata.
// Min and Max bound the non-null values and are meaningful only when
// HasMinMax is set.
type ColumnStats struct {
	Min, Max     scalar.Value
	HasMinMax    bool
	NullCount    int64
	HasNullCount bool
}

// AllNull reports whether the stats prove every one of rows values is null.
func (s ColumnStats) AllNull(rows int64) bool {
	return s.HasNullCount && s.NullCount >= rows
}

// statsAccumulator merges row group statistics of one column.
type statsAccumulator struct {
	stats  ColumnStats
	seeded bool // a row group with min/max has been folded in
	dt     arrow.DataType
}

func newStatsAccumulator(dt arrow.DataType) *statsAccumulator {
	return &statsAccumulator{
		dt:    dt,
		stats: ColumnStats{HasMinMax: true, HasNullCount: true},
	}
}

// add folds one row group's column chunk statistics. st may be nil when the
// writer recorded none.
func (a *statsAccumulator) add(st metadata.TypedStatistics, rows int64) {
	if st == nil {
		a.stats.HasMinMax = false
		a.stats.HasNullCount = false
		return
	}

	allNull := false
	if st.HasNullCount() {
		a.stats.NullCount += st.NullCount()
		allNull = st.NullCount() >= rows
	} else {
		a.stats.HasNullCount = false
	}

	if !st.HasMinMax() {
		// An all-null row group has no bounds and needs none.
		if !allNull {
			a.stats.HasMinMax = false
		}
		return
	}
	lo, hi, ok := bounds(st, a.dt)
	if !ok {
		a.stats.HasMinMax = false
		return
	}
	if !a.seeded {
		a.stats.Min, a.stats.Max, a.seeded = lo, hi, true
		return
	}
	if c, ok := scalar.Compare(lo, a.stats.Min); ok && c < 0 {
		a.stats.Min = lo
	}
	if c, ok := scalar.Compare(hi, a.stats.Max); ok && c > 0 {
		a.stats.Max = hi
	}
}

func (a *statsAccumulator) result() ColumnStats {
	s := a.stats
	if !a.seeded {
		s.HasMinMax = false
	}
	if !s.HasMinMax {
		s.Min, s.Max = scalar.Null(), scalar.Null()
	}
	if !s.HasNullCount {
		s.NullCount = 0
	}
	return s
}

// bounds converts typed statistics into scalar bounds for a column of arrow
// type dt. NaN bounds carry no ordering information and are rejected.
func bounds(st metadata.TypedStatistics, dt arrow.DataType) (lo, hi scalar.Value, ok bool) {
	switch s := st.(type) {
	case *metadata.BooleanStatistics:
		if dt.ID() != arrow.BOOL {
			return lo, hi, false
		}
		return scalar.Bool(s.Min()), scalar.Bool(s.Max()), true
	case *metadata.Int32Statistics:
		switch dt.ID() {
		case arrow.INT8, arrow.INT16, arrow.INT32, arrow.UINT8, arrow.UINT16:
			return scalar.Int(int64(s.Min())), scalar.Int(int64(s.Max())), true
		case arrow.UINT32:
			return scalar.Int(int64(uint32(s.Min()))), scalar.Int(int64(uint32(s.Max()))), true
		}
	case *metadata.Int64Statistics:
		switch t := dt.(type) {
		case *arrow.Int64Type:
			return scalar.Int(s.Min()), scalar.Int(s.Max()), true
		case *arrow.TimestampType:
			return scalar.TimestampMicros(scalar.ToMicros(s.Min(), t.Unit)),
				scalar.TimestampMicros(scalar.ToMicros(s.Max(), t.Unit)), true
		}
	case *metadata.Float32Statistics:
		lo, hi := float64(s.Min()), float64(s.Max())
		if math.IsNaN(lo) || math.IsNaN(hi) || dt.ID() != arrow.FLOAT32 {
			return scalar.Null(), scalar.Null(), false
		}
		return scalar.Float(lo), scalar.Float(hi), true
	case *metadata.Float64Statistics:
		lo, hi := s.Min(), s.Max()
		if math.IsNaN(lo) || math.IsNaN(hi) || dt.ID() != arrow.FLOAT64 {
			return scalar.Null(), scalar.Null(), false
		}
		return scalar.Float(lo), scalar.Float(hi), true
	case *metadata.ByteArrayStatistics:
		if dt.ID() == arrow.STRING || dt.ID() == arrow.LARGE_STRING {
			return scalar.String(string(s.Min())), scalar.String(string(s.Max())), true
		}
	}
	return scalar.Null(), scalar.Null(), false
}
