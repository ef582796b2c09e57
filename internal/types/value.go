package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

/*
 * Closed value variant for claim context fields.
 *
 * Claim contexts are flat maps of field name to Value. Representing values as
 * a closed variant (Number | Text | Boolean | Timestamp | List) rather than
 * `any` keeps operator semantics exhaustively checked: every comparison in
 * internal/rules switches over ValueKind and has a defined result for every
 * combination, including mismatches.
 *
 * Comparison rules:
 *   - Equality is same-kind only, except timestamps: a Text value holding an
 *     RFC3339 string compares as a Timestamp against a Timestamp operand.
 *     Claim extracts routinely serialize dates as strings, so rule authors
 *     may write either form.
 *   - Ordering is defined for number pairs and timestamp-comparable pairs.
 *     Everything else is incomparable and reported via the ok flag, never
 *     an error or a panic.
 */

// ValueKind discriminates the Value variant.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindNumber
	KindText
	KindBoolean
	KindTimestamp
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is one claim context field or one comparison operand.
// The zero value is null.
type Value struct {
	Kind  ValueKind
	Num   float64
	Str   string
	Bool  bool
	Time  time.Time
	Items []Value
}

// Number constructs a numeric Value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Text constructs a string Value.
func Text(s string) Value { return Value{Kind: KindText, Str: s} }

// Boolean constructs a boolean Value.
func Boolean(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

// Timestamp constructs a time Value.
func Timestamp(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t} }

// List constructs a list Value.
func List(items ...Value) Value { return Value{Kind: KindList, Items: items} }

// FromAny converts a decoded JSON value into a Value.
// Maps and unknown types are rejected: claim contexts are flat by contract.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return Boolean(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return Number(f), nil
	case string:
		return Text(x), nil
	case time.Time:
		return Timestamp(x), nil
	case []any:
		items := make([]Value, 0, len(x))
		for _, elem := range x {
			ev, err := FromAny(elem)
			if err != nil {
				return Value{}, err
			}
			items = append(items, ev)
		}
		return Value{Kind: KindList, Items: items}, nil
	default:
		return Value{}, fmt.Errorf("unsupported context value type %T", v)
	}
}

// ContextFromJSON decodes a flat JSON object into a claim context.
func ContextFromJSON(data []byte) (map[string]Value, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("claim context is not a JSON object: %w", err)
	}
	out := make(map[string]Value, len(raw))
	for k, v := range raw {
		val, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// MarshalJSON serializes the underlying value, not the variant envelope.
// Timestamps render as RFC3339 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		return json.Marshal(v.Num)
	case KindText:
		return json.Marshal(v.Str)
	case KindBoolean:
		return json.Marshal(v.Bool)
	case KindTimestamp:
		return json.Marshal(v.Time.UTC().Format(time.RFC3339Nano))
	case KindList:
		return json.Marshal(v.Items)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

// UnmarshalJSON decodes via FromAny. Strings stay Text; timestamp semantics
// are applied at comparison time, not decode time, so round-trips are stable.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal compares values by semantic type: numeric equality for numbers,
// exact match for text, instant equality for timestamps (including RFC3339
// text operands), element-wise for lists. Mismatched kinds are unequal.
func (v Value) Equal(o Value) bool {
	if at, aok := v.asTime(); aok {
		if bt, bok := o.asTime(); bok {
			return at.Equal(bt)
		}
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindNumber:
		return v.Num == o.Num
	case KindText:
		return v.Str == o.Str
	case KindBoolean:
		return v.Bool == o.Bool
	case KindList:
		if len(v.Items) != len(o.Items) {
			return false
		}
		for i := range v.Items {
			if !v.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Order performs three-way comparison (-1/0/1). The ok flag is false for
// incomparable pairs; ordering is defined only for number pairs and
// timestamp-comparable pairs.
func (v Value) Order(o Value) (int, bool) {
	if v.Kind == KindNumber && o.Kind == KindNumber {
		switch {
		case v.Num < o.Num:
			return -1, true
		case v.Num > o.Num:
			return 1, true
		default:
			return 0, true
		}
	}
	at, aok := v.asTime()
	bt, bok := o.asTime()
	if aok && bok {
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// asTime extracts a comparable instant from Timestamp values and from Text
// values holding RFC3339 strings. Only strings that look like timestamps are
// parsed, so ordinary text never pays the parse cost.
func (v Value) asTime() (time.Time, bool) {
	switch v.Kind {
	case KindTimestamp:
		return v.Time, true
	case KindText:
		if len(v.Str) < 10 || v.Str[4] != '-' || v.Str[7] != '-' {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339, v.Str); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", v.Str); err == nil {
			return t, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// Contains implements the CONTAINS operator: substring for text values,
// membership for lists. The ok flag is false when the value cannot contain
// anything (numbers, booleans) or the needle type is incompatible.
func (v Value) Contains(needle Value) (bool, bool) {
	switch v.Kind {
	case KindText:
		if needle.Kind != KindText {
			return false, false
		}
		return strings.Contains(v.Str, needle.Str), true
	case KindList:
		for _, item := range v.Items {
			if item.Equal(needle) {
				return true, true
			}
		}
		return false, true
	default:
		return false, false
	}
}

// String renders the value for traces and messages.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindText:
		return v.Str
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindTimestamp:
		return v.Time.UTC().Format(time.RFC3339)
	case KindList:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return ""
	}
}
