// Package repl implements the interactive SQL console: a line-oriented loop
// that reads statements terminated by ';', dispatches backslash
// meta-commands, and renders result sets as aligned text tables.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jbdura/settlement-project/internal/audit"
	"github.com/jbdura/settlement-project/internal/observability"
	"github.com/jbdura/settlement-project/internal/query/executor"
	"github.com/jbdura/settlement-project/pkg/types"
)

// replSource tags statements executed from the console in the audit log.
const replSource = "repl"

// historyDefault is how many audit entries \history shows without an
// explicit count.
const historyDefault = 20

// REPL is one console session bound to an executor.
type REPL struct {
	exec        *executor.Executor
	audit       *audit.Log
	stats       *observability.Collector
	in          io.Reader
	out         io.Writer
	prompt      string
	historySize int
}

// Option configures a REPL.
type Option func(*REPL)

// WithInput sets the reader statements are read from. Defaults to stdin.
func WithInput(in io.Reader) Option {
	return func(r *REPL) { r.in = in }
}

// WithOutput sets the writer results are printed to. Defaults to stdout.
func WithOutput(out io.Writer) Option {
	return func(r *REPL) { r.out = out }
}

// WithAudit attaches the statement log backing \history.
func WithAudit(log *audit.Log) Option {
	return func(r *REPL) { r.audit = log }
}

// WithStats attaches the collector backing \stats.
func WithStats(c *observability.Collector) Option {
	return func(r *REPL) { r.stats = c }
}

// WithPrompt sets the prompt printed before each new statement.
func WithPrompt(p string) Option {
	return func(r *REPL) { r.prompt = p }
}

// WithHistorySize sets how many entries \history shows without an explicit
// count. Values below one are ignored.
func WithHistorySize(n int) Option {
	return func(r *REPL) {
		if n > 0 {
			r.historySize = n
		}
	}
}

// New creates a console session over the given executor.
func New(exec *executor.Executor, opts ...Option) *REPL {
	r := &REPL{
		exec:        exec,
		in:          os.Stdin,
		out:         os.Stdout,
		prompt:      "settld> ",
		historySize: historyDefault,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads and executes statements until the input ends or an exit command
// is given. Lines accumulate until one ends with ';'; a backslash command on
// its own line runs immediately.
func (r *REPL) Run(ctx context.Context) error {
	r.printBanner()

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pending []string
	for {
		if len(pending) == 0 {
			fmt.Fprint(r.out, r.prompt)
		} else {
			fmt.Fprint(r.out, "   ...> ")
		}

		if !scanner.Scan() {
			// Ctrl-D or the end of piped input.
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, "Goodbye!")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		if len(pending) == 0 {
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, `\`) {
				if quit := r.metaCommand(ctx, line); quit {
					return nil
				}
				continue
			}
		}

		pending = append(pending, line)
		if strings.HasSuffix(line, ";") {
			statement := strings.Join(pending, " ")
			pending = pending[:0]
			r.runStatement(ctx, statement)
		}
	}
}

// runStatement executes one terminated statement and prints its result.
func (r *REPL) runStatement(ctx context.Context, sql string) {
	sql = strings.TrimSuffix(strings.TrimSpace(sql), ";")
	if strings.TrimSpace(sql) == "" {
		return
	}
	start := time.Now()
	res := r.exec.ExecuteFrom(ctx, replSource, sql)
	r.printResult(res, time.Since(start))
}

// printResult renders one result: the row grid when rows came back, then the
// status line. A non-zero elapsed is appended to the status line; meta
// commands pass zero to omit it.
func (r *REPL) printResult(res types.Result, elapsed time.Duration) {
	if !res.Success {
		fmt.Fprintf(r.out, "Error: %s\n\n", res.Message)
		return
	}
	if len(res.Rows) > 0 {
		fmt.Fprint(r.out, renderTable(res.Columns, res.Rows))
		fmt.Fprintln(r.out)
	}
	if elapsed > 0 {
		fmt.Fprintf(r.out, "%s (%s)\n\n", res.Message, elapsed.Round(time.Microsecond))
	} else {
		fmt.Fprintf(r.out, "%s\n\n", res.Message)
	}
}

// metaCommand handles one backslash command and reports whether the console
// should exit.
func (r *REPL) metaCommand(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case `\exit`, `\quit`:
		fmt.Fprintln(r.out, "Goodbye!")
		return true
	case `\help`:
		r.printHelp()
	case `\tables`:
		r.printResult(r.exec.ListTables(), 0)
	case `\desc`:
		if arg == "" {
			fmt.Fprint(r.out, "usage: \\desc <table>\n\n")
		} else {
			r.printResult(r.exec.DescribeTable(arg), 0)
		}
	case `\history`:
		r.printHistory(ctx, arg)
	case `\stats`:
		r.printStats()
	default:
		fmt.Fprintf(r.out, "unknown command: %s (try \\help)\n\n", cmd)
	}
	return false
}

// printHistory shows the most recent audit entries, newest first.
func (r *REPL) printHistory(ctx context.Context, arg string) {
	if r.audit == nil {
		fmt.Fprint(r.out, "History is unavailable: the audit log is disabled.\n\n")
		return
	}
	limit := r.historySize
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			fmt.Fprint(r.out, "usage: \\history [n]\n\n")
			return
		}
		limit = n
	}

	entries, err := r.audit.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Fprint(r.out, "No statements recorded yet.\n\n")
		return
	}

	columns := []string{"time", "source", "status", "duration", "statement"}
	rows := make([]types.Row, len(entries))
	for i, e := range entries {
		status := "ok"
		if !e.Success {
			status = e.ErrorCategory
			if status == "" {
				status = "error"
			}
		}
		rows[i] = types.Row{
			"time":      types.NewText(e.Timestamp.Format("2006-01-02 15:04:05")),
			"source":    types.NewText(e.Source),
			"status":    types.NewText(status),
			"duration":  types.NewText((time.Duration(e.DurationUS) * time.Microsecond).String()),
			"statement": types.NewText(truncate(e.SQL, 60)),
		}
	}
	fmt.Fprint(r.out, renderTable(columns, rows))
	fmt.Fprintf(r.out, "\n%d statement(s), newest first\n\n", len(entries))
}

// printStats shows a snapshot of the execution counters.
func (r *REPL) printStats() {
	if r.stats == nil {
		fmt.Fprint(r.out, "Statistics are unavailable: no collector attached.\n\n")
		return
	}
	snap := r.stats.Snapshot()
	fmt.Fprintf(r.out, "uptime:        %ds\n", snap.UptimeSeconds)
	fmt.Fprintf(r.out, "statements:    %s\n", formatCounts(snap.Statements))
	fmt.Fprintf(r.out, "errors:        %s\n", formatCounts(snap.Errors))
	fmt.Fprintf(r.out, "table access:  %s\n", formatCounts(snap.TableAccess))
	fmt.Fprintf(r.out, "index hits:    %d\n", snap.IndexHits)
	fmt.Fprintf(r.out, "bloom skips:   %d\n", snap.BloomSkips)
	fmt.Fprintf(r.out, "full scans:    %d\n", snap.FullScans)
	fmt.Fprintf(r.out, "join rows:     build=%d probe=%d\n", snap.JoinBuildRows, snap.JoinProbeRows)
	fmt.Fprintf(r.out, "rows returned: %d\n", snap.RowsReturned)
	fmt.Fprintf(r.out, "rows affected: %d\n\n", snap.RowsAffected)
}

// formatCounts renders a counter map as "name=count" pairs in name order.
func formatCounts(counts map[string]int64) string {
	if len(counts) == 0 {
		return "none"
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, counts[name])
	}
	return strings.Join(parts, " ")
}

func (r *REPL) printBanner() {
	fmt.Fprintln(r.out, strings.Repeat("=", 60))
	fmt.Fprintln(r.out, "  settld interactive console")
	fmt.Fprintln(r.out, strings.Repeat("=", 60))
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, `Statements end with ';'. Type \help for commands, \exit to leave.`)
	fmt.Fprintln(r.out)
}

func (r *REPL) printHelp() {
	fmt.Fprintf(r.out, `Commands:
  \help          show this message
  \tables        list all tables
  \desc <table>  show the schema of one table
  \history [n]   show the n most recent statements (default %d)
  \stats         show execution counters
  \exit, \quit   leave the console

Statements (terminated by ';'):
  CREATE TABLE, INSERT INTO, SELECT, UPDATE, DELETE FROM, DROP TABLE

Types: INT, INTEGER, VARCHAR(n), TEXT, BOOL, BOOLEAN, DECIMAL, FLOAT,
DATETIME, TIMESTAMP. Constraints: PRIMARY KEY, UNIQUE, NOT NULL.

`, r.historySize)
}

// truncate shortens long statements for the history grid.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
