package core

import (
	"cmp"
	"encoding/json"
	"fmt"
)

// ValueKind discriminates the payload carried by a Value.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindNumber
	KindNumbers
)

func (k ValueKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNumber:
		return "number"
	case KindNumbers:
		return "numbers"
	}
	return fmt.Sprintf("ValueKind(%d)", uint8(k))
}

// Value is what a map function emits alongside a key: nothing, a number or
// an array of numbers.
type Value struct {
	Kind    ValueKind
	Number  float64
	Numbers []float64
}

// None returns the empty value.
func None() Value { return Value{} }

// Number wraps a single number.
func Number(f float64) Value { return Value{Kind: KindNumber, Number: f} }

// Numbers wraps a number array.
func Numbers(fs ...float64) Value {
	if fs == nil {
		fs = []float64{}
	}
	return Value{Kind: KindNumbers, Numbers: fs}
}

// IsNone reports whether the value carries nothing.
func (v Value) IsNone() bool { return v.Kind == KindNone }

// CompareValues orders none before numbers before arrays; arrays compare
// element-wise, then by length.
func CompareValues(a, b Value) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	switch a.Kind {
	case KindNumber:
		return cmp.Compare(a.Number, b.Number)
	case KindNumbers:
		for i := 0; i < len(a.Numbers) && i < len(b.Numbers); i++ {
			if c := cmp.Compare(a.Numbers[i], b.Numbers[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(a.Numbers), len(b.Numbers))
	}
	return 0
}

// Equal reports whether two values carry the same payload.
func (v Value) Equal(o Value) bool {
	return CompareValues(v, o) == 0
}

// Interface returns the value as nil, float64 or []float64.
func (v Value) Interface() any {
	switch v.Kind {
	case KindNumber:
		return v.Number
	case KindNumbers:
		return v.Numbers
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = None()
	case float64:
		*v = Number(t)
	case []any:
		nums := make([]float64, 0, len(t))
		for _, e := range t {
			f, ok := e.(float64)
			if !ok {
				return fmt.Errorf("value array element %v is not a number", e)
			}
			nums = append(nums, f)
		}
		*v = Numbers(nums...)
	default:
		return fmt.Errorf("unsupported value %v", raw)
	}
	return nil
}
