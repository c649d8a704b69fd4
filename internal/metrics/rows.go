package metrics

import "sort"

// CategoryRow pairs a category name with its rollup for ordered display.
type CategoryRow struct {
	Name   string
	Rollup Rollup
}

// SortedRows converts a snapshot's category map into rows sorted by
// descending count, then by name for stability.
func SortedRows(categories map[string]Rollup) []CategoryRow {
	if len(categories) == 0 {
		return nil
	}
	rows := make([]CategoryRow, 0, len(categories))
	for name, rollup := range categories {
		rows = append(rows, CategoryRow{Name: name, Rollup: rollup})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Rollup.Count == rows[j].Rollup.Count {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].Rollup.Count > rows[j].Rollup.Count
	})
	return rows
}

// SortedReasons flattens a reasons map into sorted rows, most frequent first.
func SortedReasons(reasons map[string]int64) []ReasonRow {
	if len(reasons) == 0 {
		return nil
	}
	rows := make([]ReasonRow, 0, len(reasons))
	for reason, count := range reasons {
		rows = append(rows, ReasonRow{Reason: reason, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Reason < rows[j].Reason
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// ReasonRow is one failure reason and how often it occurred.
type ReasonRow struct {
	Reason string
	Count  int64
}
