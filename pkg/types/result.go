package types

// Result is the uniform envelope returned by statement execution. Every
// caller, from the REPL to the HTTP API, consumes this one shape; which
// optional fields are set depends on the statement kind.
type Result struct {
	// Success is false when the statement failed for any reason.
	Success bool `json:"success"`

	// Message is a human-readable status line. On failure it carries the
	// error description.
	Message string `json:"message"`

	// Columns lists the output column names in projection order for
	// row-returning statements.
	Columns []string `json:"columns,omitempty"`

	// Rows holds the result set for SELECT and JOIN.
	Rows []Row `json:"rows,omitempty"`

	// RowCount is the number of rows returned by SELECT and JOIN.
	RowCount *int `json:"row_count,omitempty"`

	// AffectedRows is the number of rows changed by UPDATE or DELETE.
	AffectedRows *int `json:"affected_rows,omitempty"`

	// InsertedID is the internal identifier assigned by INSERT.
	InsertedID *int64 `json:"inserted_id,omitempty"`
}

// OK returns a successful result carrying only a message.
func OK(message string) Result {
	return Result{Success: true, Message: message}
}

// Failure returns a failed result carrying the error description.
func Failure(message string) Result {
	return Result{Success: false, Message: message}
}

// WithRows attaches a result set and its projection order, setting RowCount
// to match.
func (r Result) WithRows(columns []string, rows []Row) Result {
	n := len(rows)
	r.Columns = columns
	r.Rows = rows
	r.RowCount = &n
	return r
}

// WithAffected attaches an affected-row count.
func (r Result) WithAffected(n int) Result {
	r.AffectedRows = &n
	return r
}

// WithInsertedID attaches the identifier assigned to a newly inserted row.
func (r Result) WithInsertedID(id int64) Result {
	r.InsertedID = &id
	return r
}
