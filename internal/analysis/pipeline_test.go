package analysis

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/KaramelBytes/declinescan/internal/columns"
	"github.com/KaramelBytes/declinescan/internal/table"
)

const scenario = `"No","コード","銘柄名","比率","市場"
1,"1001","A社","▲3.2%","東Ｐ"
2,"1002","B社","+1.0%","東Ｓ"
3,"1003","C社","▼0.5%","東Ｇ"
`

func scan(t *testing.T, text string, opt Options) *Result {
	t.Helper()
	res, err := ScanText(context.Background(), text, table.DefaultOptions(), opt)
	if err != nil {
		t.Fatalf("ScanText: %v", err)
	}
	return res
}

func TestScan_EndToEndScenario(t *testing.T) {
	opt := DefaultOptions()
	opt.SelectedMarkets = []string{"東Ｐ", "東Ｇ"}
	res := scan(t, scenario, opt)

	if res.Status != StatusOK {
		t.Fatalf("status = %q", res.Status)
	}
	if res.RunID == "" {
		t.Fatalf("missing run id")
	}
	if len(res.Ranked) != 2 {
		t.Fatalf("ranked = %d, want 2", len(res.Ranked))
	}
	names := []string{res.Ranked[0].Row.Get("銘柄名"), res.Ranked[1].Row.Get("銘柄名")}
	if names[0] != "A社" || names[1] != "C社" {
		t.Fatalf("ranking = %v, want [A社 C社]", names)
	}
	if !almostEqual(res.Ranked[0].ChangeRatio, -3.2, 1e-9) || !almostEqual(res.Ranked[1].ChangeRatio, -0.5, 1e-9) {
		t.Fatalf("ratios = %v, %v", res.Ranked[0].ChangeRatio, res.Ranked[1].ChangeRatio)
	}
	if res.Summary == nil {
		t.Fatalf("missing summary")
	}
	if res.Summary.Worst.Row.Get("銘柄名") != "A社" {
		t.Fatalf("worst = %q", res.Summary.Worst.Row.Get("銘柄名"))
	}
	if !almostEqual(res.Summary.MeanChangeRatio, -1.85, 1e-9) {
		t.Fatalf("mean = %v, want -1.85", res.Summary.MeanChangeRatio)
	}
	if res.Summary.Count != 2 {
		t.Fatalf("count = %d", res.Summary.Count)
	}
	if err := res.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
}

func TestScan_SpaceSeparatedFullwidthPaste(t *testing.T) {
	text := ` "No" "コード" "銘柄名" "比率" "市場"
1 "1001" "A社" "▲３．２％" "東Ｐ"
2 "1002" "B社" "+1.0%" "東Ｓ"
3 "1003" "C社" "▼0.5%" "東Ｇ"
`
	res := scan(t, text, DefaultOptions())
	if res.Delimiter != ' ' {
		t.Fatalf("delimiter = %q, want space", res.Delimiter)
	}
	if res.Roles.Name != "銘柄名" || res.Roles.Ratio != "比率" || res.Roles.Market != "市場" {
		t.Fatalf("roles = %+v", res.Roles)
	}
	if res.Status != StatusOK || len(res.Ranked) != 2 {
		t.Fatalf("status = %q, ranked = %d", res.Status, len(res.Ranked))
	}
	if res.Ranked[0].Row.Get("銘柄名") != "A社" || !almostEqual(res.Ranked[0].ChangeRatio, -3.2, 1e-9) {
		t.Fatalf("worst = %+v", res.Ranked[0])
	}
}

func TestScan_NoMarketFilterWhenSelectionEmpty(t *testing.T) {
	text := strings.Replace(scenario, "+1.0%", "▲9.9%", 1)
	res := scan(t, text, DefaultOptions())
	if len(res.Ranked) != 3 {
		t.Fatalf("ranked = %d, want 3", len(res.Ranked))
	}
	if res.Ranked[0].Row.Get("銘柄名") != "B社" {
		t.Fatalf("worst = %q", res.Ranked[0].Row.Get("銘柄名"))
	}
}

func TestScan_NoMarketColumnIgnoresSelection(t *testing.T) {
	text := "No,コード,銘柄名,比率\n1,1001,A社,▲1.0%\n2,1002,B社,▲2.0%\n"
	opt := DefaultOptions()
	opt.SelectedMarkets = []string{"東Ｐ"}
	res := scan(t, text, opt)
	if len(res.Ranked) != 2 {
		t.Fatalf("ranked = %d, want 2", len(res.Ranked))
	}
	tm := res.Treemap()
	if len(tm.Path) != 1 || tm.Path[0] != "銘柄名" {
		t.Fatalf("path = %#v", tm.Path)
	}
}

func TestScan_NoRatioColumn(t *testing.T) {
	res := scan(t, "No,コード,銘柄名,現在値\n1,1001,A社,100\n", DefaultOptions())
	if res.Status != StatusNoRatioColumn {
		t.Fatalf("status = %q", res.Status)
	}
	if !errors.Is(res.Err(), ErrNoRatioColumn) {
		t.Fatalf("Err() = %v", res.Err())
	}
	if res.Summary != nil || len(res.Ranked) != 0 {
		t.Fatalf("expected no output, got %+v", res)
	}
	v, err := res.View("")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if v.Ranking != nil || v.Treemap != nil || v.ShareText != "" {
		t.Fatalf("view should be empty for missing ratio column: %+v", v)
	}
}

func TestScan_NoDeclines(t *testing.T) {
	res := scan(t, "No,コード,銘柄名,比率\n1,1001,A社,+1.0%\n2,1002,B社,0.0%\n3,1003,C社,N/A\n", DefaultOptions())
	if res.Status != StatusNoDeclines {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Summary != nil {
		t.Fatalf("summary must be absent")
	}
	if res.Treemap() != nil {
		t.Fatalf("treemap must be nil")
	}
	if !strings.Contains(res.StatusMessage(), "下落銘柄はありません") {
		t.Fatalf("message = %q", res.StatusMessage())
	}
}

func TestScan_UnresolvedNameColumn(t *testing.T) {
	_, err := ScanText(context.Background(), "a,比率\nx,▲1\n", table.DefaultOptions(), DefaultOptions())
	if !errors.Is(err, columns.ErrUnresolvedNameColumn) {
		t.Fatalf("err = %v, want ErrUnresolvedNameColumn", err)
	}
}

func TestScan_ParseErrorAborts(t *testing.T) {
	_, err := ScanText(context.Background(), "only a header\n", table.DefaultOptions(), DefaultOptions())
	if !table.IsParseError(err) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	tbl, err := table.Parse(scenario, table.DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, tbl, DefaultOptions()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRun_NameFallbackWarning(t *testing.T) {
	res := scan(t, "No,Code,Mkt,Issue,比率\n1,1001,P,Foo,▲1%\n", DefaultOptions())
	if !res.Roles.NameFromFallback || res.Roles.Name != "Issue" {
		t.Fatalf("roles = %+v", res.Roles)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "Issue") {
		t.Fatalf("warnings = %#v", res.Warnings)
	}
}

func TestFilterAndRank_Properties(t *testing.T) {
	roles := columns.Roles{Name: "n", Ratio: "r", Market: "m"}
	text := "n,r,m\n" +
		"a,▲1.0,X\n" +
		"b,▲3.0,Y\n" +
		"c,▲1.0,X\n" +
		"d,2.0,X\n" +
		"e,0,X\n" +
		"f,▲3.0,X\n" +
		"g,junk,X\n"
	tbl, err := table.Parse(text, table.DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	records := Normalize(tbl, roles)
	ranked := FilterAndRank(records, roles, nil)

	got := make([]string, len(ranked))
	for i, r := range ranked {
		got[i] = r.Row.Get("n")
	}
	// stable: b before f, a before c
	if strings.Join(got, "") != "bfac" {
		t.Fatalf("order = %v, want [b f a c]", got)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i-1].ChangeRatio > ranked[i].ChangeRatio {
			t.Fatalf("not ascending at %d: %v > %v", i, ranked[i-1].ChangeRatio, ranked[i].ChangeRatio)
		}
	}
	for _, r := range ranked {
		if r.ChangeRatio >= 0 {
			t.Fatalf("non-negative ratio kept: %+v", r)
		}
		orig := records[r.Index]
		if orig.ChangeRatio != r.ChangeRatio || strings.Join(orig.Row.Cells, "|") != strings.Join(r.Row.Cells, "|") {
			t.Fatalf("ranked record differs from source: %+v vs %+v", r, orig)
		}
	}

	onlyX := FilterAndRank(records, roles, []string{"X"})
	if len(onlyX) != 3 {
		t.Fatalf("market filter kept %d, want 3", len(onlyX))
	}
	if none := FilterAndRank(records, roles, []string{"Z"}); len(none) != 0 {
		t.Fatalf("expected empty ranking, got %d", len(none))
	}
}

func TestSummarize(t *testing.T) {
	if _, ok := Summarize(nil); ok {
		t.Fatalf("summary of empty subset must be absent")
	}
	ranked := []Record{{ChangeRatio: -5.5}, {ChangeRatio: -0.1}, {ChangeRatio: -0.1}}
	s, ok := Summarize(ranked)
	if !ok {
		t.Fatalf("expected summary")
	}
	want := (-5.5 - 0.1 - 0.1) / 3
	if !almostEqual(s.MeanChangeRatio, want, 1e-9) {
		t.Fatalf("mean = %v, want %v", s.MeanChangeRatio, want)
	}
	if s.Count != 3 || s.Worst.ChangeRatio != -5.5 {
		t.Fatalf("summary = %+v", s)
	}
}

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
