// Package types defines the value and schema model shared by every layer of
// settld: typed cell values, column definitions, row predicates, and the
// uniform result envelope produced by statement execution.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Sentinel errors reported by value comparison and coercion. Layers above
// wrap these into the engine error taxonomy; the types package itself stays
// free of error categories.
var (
	// ErrTypeMismatch reports a value that cannot be interpreted as the
	// target column type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNotComparable reports a comparison between values whose kinds have
	// no defined ordering relative to each other.
	ErrNotComparable = errors.New("values are not comparable")
)

// Kind tags a Value with its runtime type.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindText
	KindBoolean
	KindDecimal
	KindTimestamp
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindText:
		return "TEXT"
	case KindBoolean:
		return "BOOLEAN"
	case KindDecimal:
		return "DECIMAL"
	case KindTimestamp:
		return "TIMESTAMP"
	default:
		return fmt.Sprintf("KIND(%d)", int(k))
	}
}

// TimestampLayouts lists the accepted textual forms for DATETIME values,
// tried in order when coercing text.
var TimestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// displayLayout is the form timestamps are rendered in for output rows and
// the canonical index key.
const displayLayout = "2006-01-02 15:04:05"

// Value is a single typed cell. Kind selects which payload field is
// meaningful; the zero Value is NULL.
type Value struct {
	Kind Kind
	Int  int64
	Str  string
	Bool bool
	Dec  float64
	Time time.Time
}

// Null returns the NULL value.
func Null() Value { return Value{Kind: KindNull} }

// NewInteger returns an INTEGER value.
func NewInteger(v int64) Value { return Value{Kind: KindInteger, Int: v} }

// NewText returns a VARCHAR value.
func NewText(s string) Value { return Value{Kind: KindText, Str: s} }

// NewBoolean returns a BOOLEAN value.
func NewBoolean(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

// NewDecimal returns a DECIMAL value.
func NewDecimal(f float64) Value { return Value{Kind: KindDecimal, Dec: f} }

// NewTimestamp returns a DATETIME value. The time is stored as given;
// rendering truncates to whole seconds.
func NewTimestamp(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t} }

// IsNull reports whether the value is NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// numeric returns the value as a float64 for INTEGER/DECIMAL kinds.
func (v Value) numeric() (float64, bool) {
	switch v.Kind {
	case KindInteger:
		return float64(v.Int), true
	case KindDecimal:
		return v.Dec, true
	default:
		return 0, false
	}
}

// Equal reports whether two values are equal. Equality is defined per kind;
// INTEGER and DECIMAL compare numerically. NULL equals only NULL and is
// never equal to a non-null value. Any other cross-kind pair returns
// ErrNotComparable.
func (v Value) Equal(o Value) (bool, error) {
	if v.Kind == KindNull || o.Kind == KindNull {
		return v.Kind == o.Kind, nil
	}
	if a, ok := v.numeric(); ok {
		if b, ok := o.numeric(); ok {
			return a == b, nil
		}
		return false, fmt.Errorf("%w: %s and %s", ErrNotComparable, v.Kind, o.Kind)
	}
	if v.Kind != o.Kind {
		return false, fmt.Errorf("%w: %s and %s", ErrNotComparable, v.Kind, o.Kind)
	}
	switch v.Kind {
	case KindText:
		return v.Str == o.Str, nil
	case KindBoolean:
		return v.Bool == o.Bool, nil
	case KindTimestamp:
		return v.Time.Equal(o.Time), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrNotComparable, v.Kind)
	}
}

// Compare orders two values, returning a negative, zero, or positive result.
// Ordering is defined for INTEGER/DECIMAL (numeric), TEXT (lexicographic),
// BOOLEAN (false before true), and TIMESTAMP (chronological). Ordering
// against NULL or across any other kind pair returns ErrNotComparable.
func (v Value) Compare(o Value) (int, error) {
	if v.Kind == KindNull || o.Kind == KindNull {
		return 0, fmt.Errorf("%w: NULL has no ordering", ErrNotComparable)
	}
	if a, ok := v.numeric(); ok {
		if b, ok := o.numeric(); ok {
			switch {
			case a < b:
				return -1, nil
			case a > b:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, fmt.Errorf("%w: %s and %s", ErrNotComparable, v.Kind, o.Kind)
	}
	if v.Kind != o.Kind {
		return 0, fmt.Errorf("%w: %s and %s", ErrNotComparable, v.Kind, o.Kind)
	}
	switch v.Kind {
	case KindText:
		switch {
		case v.Str < o.Str:
			return -1, nil
		case v.Str > o.Str:
			return 1, nil
		default:
			return 0, nil
		}
	case KindBoolean:
		switch {
		case v.Bool == o.Bool:
			return 0, nil
		case !v.Bool:
			return -1, nil
		default:
			return 1, nil
		}
	case KindTimestamp:
		switch {
		case v.Time.Before(o.Time):
			return -1, nil
		case v.Time.After(o.Time):
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("%w: %s", ErrNotComparable, v.Kind)
	}
}

// Key returns the canonical string form of the value, used as the entry key
// in persisted index files and as the bloom filter item. Two values that
// compare equal within a column produce the same key.
func (v Value) Key() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindText:
		return v.Str
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindDecimal:
		return strconv.FormatFloat(v.Dec, 'g', -1, 64)
	case KindTimestamp:
		return v.Time.Format(displayLayout)
	default:
		return ""
	}
}

// String renders the value for display in REPL output and log lines.
// NULL renders as the literal NULL; text is rendered bare.
func (v Value) String() string {
	return v.Key()
}

// Native returns the value as the plain Go type used for JSON encoding:
// int64, string, bool, float64, or nil. Timestamps encode as their display
// string.
func (v Value) Native() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindInteger:
		return v.Int
	case KindText:
		return v.Str
	case KindBoolean:
		return v.Bool
	case KindDecimal:
		return v.Dec
	case KindTimestamp:
		return v.Time.Format(displayLayout)
	default:
		return nil
	}
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}
