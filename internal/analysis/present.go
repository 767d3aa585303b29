package analysis

import (
	"fmt"
	"math"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/KaramelBytes/declinescan/internal/columns"
	"github.com/KaramelBytes/declinescan/internal/table"
)

// TreemapNode is one leaf of the decline treemap. Size drives the area and
// ChangeRatio the color.
type TreemapNode struct {
	Market      string  `json:"market,omitempty" yaml:"market,omitempty"`
	Name        string  `json:"name" yaml:"name"`
	Size        float64 `json:"size" yaml:"size"`
	ChangeRatio float64 `json:"change_ratio" yaml:"change_ratio"`
	RawRatio    string  `json:"raw_ratio" yaml:"raw_ratio"`
}

// Treemap is the input for a hierarchical size/color chart. Path names the
// grouping levels: [market, name] when a market column exists, else [name].
// The color scale is clamped to [ColorMin, ColorMax].
type Treemap struct {
	Path     []string      `json:"path" yaml:"path"`
	Nodes    []TreemapNode `json:"nodes" yaml:"nodes"`
	ColorMin float64       `json:"color_min" yaml:"color_min"`
	ColorMax float64       `json:"color_max" yaml:"color_max"`
}

// Treemap builds chart rows from the ranking, or nil when nothing declined.
func (r *Result) Treemap() *Treemap {
	if len(r.Ranked) == 0 {
		return nil
	}
	tm := &Treemap{Nodes: make([]TreemapNode, 0, len(r.Ranked))}
	if r.Roles.HasMarket() {
		tm.Path = []string{r.Roles.Market, r.Roles.Name}
	} else {
		tm.Path = []string{r.Roles.Name}
	}
	tm.ColorMin = r.Ranked[0].ChangeRatio
	for _, rec := range r.Ranked {
		n := TreemapNode{
			Name:        rec.Row.Get(r.Roles.Name),
			Size:        math.Abs(rec.ChangeRatio),
			ChangeRatio: rec.ChangeRatio,
			RawRatio:    rec.Row.Get(r.Roles.Ratio),
		}
		if r.Roles.HasMarket() {
			n.Market = rec.Row.Get(r.Roles.Market)
		}
		if rec.ChangeRatio < tm.ColorMin {
			tm.ColorMin = rec.ChangeRatio
		}
		tm.Nodes = append(tm.Nodes, n)
	}
	return tm
}

// ListTable is the ranking restricted to the columns the user supplied.
type ListTable struct {
	Header []string   `json:"header" yaml:"header"`
	Rows   [][]string `json:"rows" yaml:"rows"`
}

// ListTable returns the ranked rows without the derived change ratio.
func (r *Result) ListTable() *ListTable {
	lt := &ListTable{Header: append([]string(nil), r.Header...), Rows: make([][]string, 0, len(r.Ranked))}
	for _, rec := range r.Ranked {
		lt.Rows = append(lt.Rows, append([]string(nil), rec.Row.Cells...))
	}
	return lt
}

// DefaultShareTemplate is the short post shared after a bad trading day.
const DefaultShareTemplate = `今日もお疲れ様です。
本日の地獄絵図：
・ワースト：{{.WorstName}} ({{.WorstRatio}})
・下落銘柄平均：{{.MeanText}}%

爽やかな青が目に染みますね...。 #日本株 #含み損 #お通夜`

// ShareData is the template input for ShareText.
type ShareData struct {
	WorstName  string
	WorstRatio string
	Mean       float64
	MeanText   string
	Count      int
}

// ShareData extracts the summary scalars for text templates. ok is false
// when there is no summary.
func (r *Result) ShareData() (ShareData, bool) {
	if r.Summary == nil {
		return ShareData{}, false
	}
	s := r.Summary
	return ShareData{
		WorstName:  s.Worst.Row.Get(r.Roles.Name),
		WorstRatio: s.Worst.Row.Get(r.Roles.Ratio),
		Mean:       s.MeanChangeRatio,
		MeanText:   decimal.NewFromFloat(s.MeanChangeRatio).StringFixed(2),
		Count:      s.Count,
	}, true
}

// ShareText renders tmpl (DefaultShareTemplate when empty) with the summary.
// It returns "" when there is no summary.
func (r *Result) ShareText(tmpl string) (string, error) {
	data, ok := r.ShareData()
	if !ok {
		return "", nil
	}
	if tmpl == "" {
		tmpl = DefaultShareTemplate
	}
	t, err := template.New("share").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse share template: %w", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render share template: %w", err)
	}
	return b.String(), nil
}

// SummaryView is the serializable form of Summary.
type SummaryView struct {
	WorstName       string  `json:"worst_name" yaml:"worst_name"`
	WorstRatio      string  `json:"worst_ratio" yaml:"worst_ratio"`
	WorstChange     float64 `json:"worst_change_ratio" yaml:"worst_change_ratio"`
	MeanChangeRatio float64 `json:"mean_change_ratio" yaml:"mean_change_ratio"`
	Count           int     `json:"count" yaml:"count"`
}

// View is the serializable form of a Result used by the JSON/YAML outputs
// and the HTTP API.
type View struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Source    string        `json:"source,omitempty" yaml:"source,omitempty"`
	Status    Status        `json:"status" yaml:"status"`
	Message   string        `json:"message" yaml:"message"`
	Delimiter string        `json:"delimiter" yaml:"delimiter"`
	Rows      int           `json:"rows" yaml:"rows"`
	Roles     columns.Roles `json:"columns" yaml:"columns"`
	Summary   *SummaryView  `json:"summary,omitempty" yaml:"summary,omitempty"`
	Ranking   *ListTable    `json:"ranking,omitempty" yaml:"ranking,omitempty"`
	Treemap   *Treemap      `json:"treemap,omitempty" yaml:"treemap,omitempty"`
	ShareText string        `json:"share_text,omitempty" yaml:"share_text,omitempty"`
	Warnings  []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// View builds the serializable result; shareTmpl follows ShareText.
func (r *Result) View(shareTmpl string) (*View, error) {
	v := &View{
		RunID:     r.RunID,
		Source:    r.Source,
		Status:    r.Status,
		Message:   r.StatusMessage(),
		Delimiter: table.DelimiterName(r.Delimiter),
		Rows:      r.Rows,
		Roles:     r.Roles,
		Warnings:  r.Warnings,
	}
	if r.Status != StatusOK {
		return v, nil
	}
	d, _ := r.ShareData()
	v.Summary = &SummaryView{
		WorstName:       d.WorstName,
		WorstRatio:      d.WorstRatio,
		WorstChange:     r.Summary.Worst.ChangeRatio,
		MeanChangeRatio: d.Mean,
		Count:           d.Count,
	}
	v.Ranking = r.ListTable()
	v.Treemap = r.Treemap()
	text, err := r.ShareText(shareTmpl)
	if err != nil {
		return nil, err
	}
	v.ShareText = text
	return v, nil
}
