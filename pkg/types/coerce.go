package types

import (
	"fmt"
	"time"
)

// ParseTimestamp parses a DATETIME literal, trying each accepted layout in
// order.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range TimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a valid DATETIME", ErrTypeMismatch, s)
}

// Coerce converts a literal value to the declared type of a column. NULL
// passes through unchanged; nullability is enforced by the storage engine,
// not here. INTEGER literals widen to DECIMAL columns and text literals
// parse into DATETIME columns; every other cross-kind pair fails with
// ErrTypeMismatch.
func Coerce(v Value, col ColumnDefinition) (Value, error) {
	if v.Kind == KindNull {
		return v, nil
	}
	switch col.Type {
	case TypeInteger:
		if v.Kind == KindInteger {
			return v, nil
		}
	case TypeVarchar:
		if v.Kind == KindText {
			if col.Size > 0 && len(v.Str) > col.Size {
				return Value{}, fmt.Errorf("%w: value of length %d exceeds VARCHAR(%d)",
					ErrTypeMismatch, len(v.Str), col.Size)
			}
			return v, nil
		}
	case TypeBoolean:
		if v.Kind == KindBoolean {
			return v, nil
		}
	case TypeDecimal:
		switch v.Kind {
		case KindDecimal:
			return v, nil
		case KindInteger:
			return NewDecimal(float64(v.Int)), nil
		}
	case TypeDatetime:
		switch v.Kind {
		case KindTimestamp:
			return v, nil
		case KindText:
			t, err := ParseTimestamp(v.Str)
			if err != nil {
				return Value{}, err
			}
			return NewTimestamp(t), nil
		}
	}
	return Value{}, fmt.Errorf("%w: cannot store %s in %s column", ErrTypeMismatch, v.Kind, col.Type)
}
