package mapreduce

import (
	"fmt"
	"math"

	"github.com/poiesic/quicksearch/core"
)

// Built-in reducer names.
const (
	ReduceSum   = "_sum"
	ReduceCount = "_count"
	ReduceStats = "_stats"
)

type reducer func(values []core.Value) (any, error)

var reducers = map[string]reducer{
	ReduceSum:   reduceSum,
	ReduceCount: reduceCount,
	ReduceStats: reduceStats,
}

// lookupReducer returns the built-in reducer for name; an empty name means
// the view has no reducer.
func lookupReducer(name string) (reducer, error) {
	if name == "" {
		return nil, nil
	}
	fn, ok := reducers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReducer, name)
	}
	return fn, nil
}

// Stats is the result of the _stats reducer.
type Stats struct {
	Sum    float64 `json:"sum"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
	SumSqr float64 `json:"sumsqr"`
}

// Sum adds numbers and number arrays. Arrays are summed element-wise; once
// an array has been seen the running total becomes an array and plain
// numbers are added to its first element. Returns float64 or []float64.
func Sum(values []core.Value) (any, error) {
	var total float64
	var totals []float64
	for _, v := range values {
		switch v.Kind {
		case core.KindNumber:
			if totals != nil {
				totals[0] += v.Number
			} else {
				total += v.Number
			}
		case core.KindNumbers:
			if totals == nil {
				totals = []float64{total}
			}
			for i, n := range v.Numbers {
				if i < len(totals) {
					totals[i] += n
				} else {
					totals = append(totals, n)
				}
			}
		default:
			return nil, &BuiltInError{Reducer: ReduceSum}
		}
	}
	if totals != nil {
		return totals, nil
	}
	return total, nil
}

func reduceSum(values []core.Value) (any, error) {
	return Sum(values)
}

func reduceCount(values []core.Value) (any, error) {
	return len(values), nil
}

func reduceStats(values []core.Value) (any, error) {
	stats := Stats{Min: math.Inf(1), Max: math.Inf(-1), Count: len(values)}
	for _, v := range values {
		if v.Kind != core.KindNumber {
			return nil, &BuiltInError{Reducer: ReduceStats}
		}
		stats.Sum += v.Number
		stats.SumSqr += v.Number * v.Number
		stats.Min = math.Min(stats.Min, v.Number)
		stats.Max = math.Max(stats.Max, v.Number)
	}
	return stats, nil
}
