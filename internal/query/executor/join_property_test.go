package executor

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/jbdura/settlement-project/internal/catalog"
	"github.com/jbdura/settlement-project/internal/observability"
	"github.com/jbdura/settlement-project/internal/storage"
)

// idPair is one matched (left row, right row) identifier pair.
type idPair struct {
	left  int64
	right int64
}

// nestedLoopPairs computes the reference join result: every left key tested
// against every right key in insertion order, identifiers starting at 1.
func nestedLoopPairs(leftKeys, rightKeys []int64) []idPair {
	var pairs []idPair
	for i, lk := range leftKeys {
		for j, rk := range rightKeys {
			if lk == rk {
				pairs = append(pairs, idPair{left: int64(i + 1), right: int64(j + 1)})
			}
		}
	}
	return pairs
}

// seedKeyTables builds lhs (INTEGER keys) and rhs (rightType keys) and
// inserts one row per key.
func seedKeyTables(e *Executor, rightType string, leftKeys, rightKeys []int64) bool {
	ctx := context.Background()
	if !e.Execute(ctx, "CREATE TABLE lhs (k INT)").Success {
		return false
	}
	if !e.Execute(ctx, fmt.Sprintf("CREATE TABLE rhs (k %s)", rightType)).Success {
		return false
	}
	for _, k := range leftKeys {
		if !e.Execute(ctx, fmt.Sprintf("INSERT INTO lhs (k) VALUES (%d)", k)).Success {
			return false
		}
	}
	for _, k := range rightKeys {
		literal := strconv.FormatInt(k, 10)
		if rightType == "DECIMAL" {
			literal += ".0"
		}
		if !e.Execute(ctx, fmt.Sprintf("INSERT INTO rhs (k) VALUES (%s)", literal)).Success {
			return false
		}
	}
	return true
}

func TestJoinEquivalenceProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50

	properties := gopter.NewProperties(params)

	newExecutor := func() (*Executor, error) {
		cat, err := catalog.Open(t.TempDir(), storage.Options{
			Stats: observability.NewCollector(),
		})
		if err != nil {
			return nil, err
		}
		return New(cat), nil
	}

	properties.Property("hash join matches a nested loop join", prop.ForAll(
		func(leftKeys, rightKeys []int64) bool {
			e, err := newExecutor()
			if err != nil {
				return false
			}
			if !seedKeyTables(e, "INT", leftKeys, rightKeys) {
				return false
			}

			res := e.Execute(context.Background(),
				"SELECT * FROM lhs JOIN rhs ON lhs.k = rhs.k")
			if !res.Success {
				return false
			}
			want := nestedLoopPairs(leftKeys, rightKeys)
			if len(res.Rows) != len(want) {
				return false
			}
			for i, row := range res.Rows {
				if row["lhs._id"].Int != want[i].left || row["rhs._id"].Int != want[i].right {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 6)),
		gen.SliceOf(gen.Int64Range(0, 6)),
	))

	properties.Property("integer keys join decimal keys numerically", prop.ForAll(
		func(leftKeys, rightKeys []int64) bool {
			e, err := newExecutor()
			if err != nil {
				return false
			}
			if !seedKeyTables(e, "DECIMAL", leftKeys, rightKeys) {
				return false
			}

			res := e.Execute(context.Background(),
				"SELECT * FROM lhs JOIN rhs ON lhs.k = rhs.k")
			if !res.Success {
				return false
			}
			want := nestedLoopPairs(leftKeys, rightKeys)
			if len(res.Rows) != len(want) {
				return false
			}
			for i, row := range res.Rows {
				if row["lhs._id"].Int != want[i].left || row["rhs._id"].Int != want[i].right {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 6)),
		gen.SliceOf(gen.Int64Range(0, 6)),
	))

	properties.TestingRun(t)
}
