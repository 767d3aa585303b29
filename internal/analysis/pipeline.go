package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/KaramelBytes/declinescan/internal/columns"
	"github.com/KaramelBytes/declinescan/internal/table"
)

// Status is the outcome of a run that did not fail.
type Status string

const (
	// StatusOK means at least one decline was ranked.
	StatusOK Status = "ok"
	// StatusNoRatioColumn means no header matched the ratio keywords; nothing
	// was filtered or ranked.
	StatusNoRatioColumn Status = "no_ratio_column"
	// StatusNoDeclines means the ranking is empty.
	StatusNoDeclines Status = "no_declines"
)

// ErrNoRatioColumn is the error form of StatusNoRatioColumn for callers that
// want to branch with errors.Is.
var ErrNoRatioColumn = errors.New("ratio column not found")

// Options controls a pipeline run.
type Options struct {
	Rules columns.Rules
	// SelectedMarkets holds canonical market codes; empty keeps every market.
	SelectedMarkets []string
}

// DefaultOptions returns the Japanese vocabulary with no market filter.
func DefaultOptions() Options {
	return Options{Rules: columns.DefaultRules()}
}

// Result is everything one run produces.
type Result struct {
	RunID     string
	Source    string
	Header    []string
	Delimiter rune
	Rows      int
	Roles     columns.Roles
	Status    Status
	Ranked    []Record
	// Summary is nil unless Status is StatusOK.
	Summary  *Summary
	Warnings []string
}

// Err returns ErrNoRatioColumn for StatusNoRatioColumn and nil otherwise.
func (r *Result) Err() error {
	if r.Status == StatusNoRatioColumn {
		return ErrNoRatioColumn
	}
	return nil
}

// Run resolves columns, normalizes the ratio column, filters, ranks and
// summarizes tbl. Only an unresolvable name column is an error; a missing
// ratio column or an empty ranking is reported through Result.Status.
func Run(ctx context.Context, tbl *table.RawTable, opt Options) (*Result, error) {
	if tbl == nil {
		return nil, errors.New("nil table")
	}
	res := &Result{
		RunID:     uuid.NewString(),
		Header:    tbl.Header,
		Delimiter: tbl.Delimiter,
		Rows:      len(tbl.Rows),
		Warnings:  append([]string(nil), tbl.Warnings...),
	}
	roles, err := columns.Resolve(tbl.Header, opt.Rules)
	if err != nil {
		return nil, fmt.Errorf("resolve columns: %w", err)
	}
	res.Roles = roles
	if roles.NameFromFallback {
		res.Warnings = append(res.Warnings, fmt.Sprintf("name column guessed by position: %q", roles.Name))
	}
	if !roles.HasRatio() {
		res.Status = StatusNoRatioColumn
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := Normalize(tbl, roles)
	res.Ranked = FilterAndRank(records, roles, opt.SelectedMarkets)
	if len(res.Ranked) == 0 {
		res.Status = StatusNoDeclines
		return res, nil
	}
	if s, ok := Summarize(res.Ranked); ok {
		res.Summary = &s
	}
	res.Status = StatusOK
	return res, nil
}

// ScanText parses pasted text and runs the pipeline on it.
func ScanText(ctx context.Context, text string, topt table.Options, opt Options) (*Result, error) {
	tbl, err := table.Parse(text, topt)
	if err != nil {
		return nil, err
	}
	return Run(ctx, tbl, opt)
}

// StatusMessage is the user-facing text for a run outcome.
func (r *Result) StatusMessage() string {
	switch r.Status {
	case StatusNoRatioColumn:
		return "「前日比率」カラムが見つかりませんでした。ヘッダーを含めてコピーしてください。"
	case StatusNoDeclines:
		return "✨ 下落銘柄はありません。全銘柄プラスです！"
	default:
		return fmt.Sprintf("%d declining issue(s).", len(r.Ranked))
	}
}
