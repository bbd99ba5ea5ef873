package types

import (
	"errors"
	"testing"
	"time"
)

func TestValueEqual(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		a, b    Value
		want    bool
		wantErr bool
	}{
		{"integers equal", NewInteger(42), NewInteger(42), true, false},
		{"integers unequal", NewInteger(42), NewInteger(7), false, false},
		{"integer vs decimal numeric", NewInteger(3), NewDecimal(3.0), true, false},
		{"decimal vs integer numeric", NewDecimal(2.5), NewInteger(2), false, false},
		{"text equal", NewText("alice"), NewText("alice"), true, false},
		{"text case sensitive", NewText("alice"), NewText("Alice"), false, false},
		{"booleans", NewBoolean(true), NewBoolean(true), true, false},
		{"timestamps equal", NewTimestamp(ts), NewTimestamp(ts), true, false},
		{"null equals null", Null(), Null(), true, false},
		{"null never equals value", Null(), NewInteger(1), false, false},
		{"value never equals null", NewText("x"), Null(), false, false},
		{"text vs integer errors", NewText("1"), NewInteger(1), false, true},
		{"boolean vs integer errors", NewBoolean(true), NewInteger(1), false, true},
		{"timestamp vs text errors", NewTimestamp(ts), NewText("2024-01-15 10:30:00"), false, true},
	}

	for _, tt := range tests {
		got, err := tt.a.Equal(tt.b)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got none", tt.name)
			} else if !errors.Is(err, ErrNotComparable) {
				t.Errorf("%s: expected ErrNotComparable, got %v", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: Equal = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestValueCompare(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		a, b    Value
		want    int
		wantErr bool
	}{
		{"integer less", NewInteger(1), NewInteger(2), -1, false},
		{"integer greater", NewInteger(5), NewInteger(2), 1, false},
		{"integer equal", NewInteger(3), NewInteger(3), 0, false},
		{"integer vs decimal", NewInteger(2), NewDecimal(2.5), -1, false},
		{"text lexicographic", NewText("apple"), NewText("banana"), -1, false},
		{"boolean false before true", NewBoolean(false), NewBoolean(true), -1, false},
		{"timestamps chronological", NewTimestamp(early), NewTimestamp(late), -1, false},
		{"null has no ordering", Null(), NewInteger(1), 0, true},
		{"ordering against null", NewInteger(1), Null(), 0, true},
		{"null vs null", Null(), Null(), 0, true},
		{"text vs decimal", NewText("1.5"), NewDecimal(1.5), 0, true},
	}

	for _, tt := range tests {
		got, err := tt.a.Compare(tt.b)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got none", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: Compare = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestValueKey(t *testing.T) {
	ts := time.Date(2024, 3, 10, 8, 15, 30, 0, time.UTC)

	tests := []struct {
		v    Value
		want string
	}{
		{NewInteger(42), "42"},
		{NewInteger(-7), "-7"},
		{NewText("hello"), "hello"},
		{NewBoolean(true), "true"},
		{NewBoolean(false), "false"},
		{NewDecimal(2.5), "2.5"},
		{NewDecimal(100), "100"},
		{NewTimestamp(ts), "2024-03-10 08:15:30"},
		{Null(), "NULL"},
	}

	for _, tt := range tests {
		if got := tt.v.Key(); got != tt.want {
			t.Errorf("Key(%v) = %q, want %q", tt.v.Kind, got, tt.want)
		}
	}
}

func TestValueNative(t *testing.T) {
	if got := NewInteger(5).Native(); got != int64(5) {
		t.Errorf("integer Native = %v (%T), want int64 5", got, got)
	}
	if got := NewDecimal(1.25).Native(); got != 1.25 {
		t.Errorf("decimal Native = %v, want 1.25", got)
	}
	if got := Null().Native(); got != nil {
		t.Errorf("null Native = %v, want nil", got)
	}
	ts := time.Date(2024, 3, 10, 8, 15, 30, 0, time.UTC)
	if got := NewTimestamp(ts).Native(); got != "2024-03-10 08:15:30" {
		t.Errorf("timestamp Native = %v, want display string", got)
	}
}

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() {
		t.Error("zero Value should be NULL")
	}
}
