// tables/diff.go - Structured before/after table comparison
package tables

import (
	"strings"

	"kicomport/internal/model"
)

// ComputeDiff builds a line-level diff of one table file across one apply.
// Lines are compared with a longest-common-subsequence walk; consecutive
// lines sharing an op are grouped into hunks.
func ComputeDiff(table model.TableKind, before, after string) *model.Diff {
	beforeLines := splitLines(before)
	afterLines := splitLines(after)

	ops := diffOps(beforeLines, afterLines)

	diff := &model.Diff{Table: table}
	var current *model.DiffHunk
	for _, op := range ops {
		if current == nil || current.Op != op.op {
			diff.Hunks = append(diff.Hunks, model.DiffHunk{Op: op.op})
			current = &diff.Hunks[len(diff.Hunks)-1]
		}
		current.Lines = append(current.Lines, op.line)
	}
	return diff
}

type lineOp struct {
	op   model.DiffOp
	line string
}

func diffOps(before, after []string) []lineOp {
	n, m := len(before), len(after)

	// lcs[i][j] = length of the longest common subsequence of
	// before[i:] and after[j:]
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if before[i] == after[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	ops := make([]lineOp, 0, n+m)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case before[i] == after[j]:
			ops = append(ops, lineOp{model.DiffKept, before[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, lineOp{model.DiffRemoved, before[i]})
			i++
		default:
			ops = append(ops, lineOp{model.DiffAdded, after[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, lineOp{model.DiffRemoved, before[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, lineOp{model.DiffAdded, after[j]})
	}
	return ops
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
