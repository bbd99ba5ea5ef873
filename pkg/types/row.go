package types

// Row is a single table row: a mapping from column name to typed value.
// Every row carries the internal identifier under IDColumn alongside the
// declared columns.
type Row map[string]Value

// ID returns the internal row identifier, or zero if the row has none yet.
func (r Row) ID() int64 {
	if v, ok := r[IDColumn]; ok && v.Kind == KindInteger {
		return v.Int
	}
	return 0
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Native converts the row to plain Go values keyed by column name, the form
// used for JSON encoding of persisted tables and API responses.
func (r Row) Native() map[string]interface{} {
	out := make(map[string]interface{}, len(r))
	for k, v := range r {
		out[k] = v.Native()
	}
	return out
}
