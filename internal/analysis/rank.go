package analysis

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/KaramelBytes/declinescan/internal/columns"
	"github.com/KaramelBytes/declinescan/internal/numeric"
	"github.com/KaramelBytes/declinescan/internal/table"
)

// Record is a table row with its normalized change ratio.
type Record struct {
	// Index is the row's position in the parsed table.
	Index       int
	Row         table.Row
	ChangeRatio float64
}

// Normalize derives the change ratio of every row from the ratio column.
func Normalize(tbl *table.RawTable, roles columns.Roles) []Record {
	out := make([]Record, len(tbl.Rows))
	for i, row := range tbl.Rows {
		out[i] = Record{Index: i, Row: row, ChangeRatio: numeric.Normalize(row.Get(roles.Ratio))}
	}
	return out
}

// FilterAndRank keeps records in the selected markets with a strictly
// negative change ratio, most severe decline first. The market filter applies
// only when a market column was resolved and selected is non-empty; equal
// ratios keep their original order.
func FilterAndRank(records []Record, roles columns.Roles, selected []string) []Record {
	var allow map[string]struct{}
	if roles.HasMarket() && len(selected) > 0 {
		allow = make(map[string]struct{}, len(selected))
		for _, m := range selected {
			allow[m] = struct{}{}
		}
	}
	ranked := make([]Record, 0, len(records))
	for _, r := range records {
		if allow != nil {
			if _, ok := allow[r.Row.Get(roles.Market)]; !ok {
				continue
			}
		}
		if r.ChangeRatio < 0 {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ChangeRatio < ranked[j].ChangeRatio
	})
	return ranked
}

// Summary aggregates a ranked decline subset.
type Summary struct {
	Worst           Record
	MeanChangeRatio float64
	Count           int
}

// Summarize returns the worst record, the mean change ratio and the count of
// ranked. ok is false when ranked is empty.
func Summarize(ranked []Record) (s Summary, ok bool) {
	if len(ranked) == 0 {
		return Summary{}, false
	}
	vals := make([]decimal.Decimal, len(ranked))
	for i, r := range ranked {
		vals[i] = decimal.NewFromFloat(r.ChangeRatio)
	}
	mean, _ := decimal.Avg(vals[0], vals[1:]...).Float64()
	return Summary{Worst: ranked[0], MeanChangeRatio: mean, Count: len(ranked)}, true
}
