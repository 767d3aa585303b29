package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigSetAndShow(t *testing.T) {
	home := isolateHome(t)

	runCmd(t, "config", "set", "selected_markets", "グロース")
	runCmd(t, "config", "set", "mismatch_tolerance", "0.5")
	if _, err := os.Stat(filepath.Join(home, ".declinescan", "config.yaml")); err != nil {
		t.Fatalf("config not saved: %v", err)
	}

	out := runCmd(t, "config", "show")
	for _, want := range []string{"selected_markets: グロース", "mismatch_tolerance: 0.500", "プライム: 東Ｐ"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config show missing %q:\n%s", want, out)
		}
	}

	// the saved selection now drives scan
	sout, err := runCmdErr(watchlist, "scan", "-f", "table")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(sout, "1 declining issue(s).") || strings.Contains(sout, "A社") {
		t.Fatalf("scan ignored saved selection:\n%s", sout)
	}
}

func TestConfigSet_Invalid(t *testing.T) {
	isolateHome(t)
	for _, args := range [][]string{
		{"config", "set", "nope", "1"},
		{"config", "set", "mismatch_tolerance", "2"},
		{"config", "set", "log_level", "loud"},
		{"config", "set", "markets", "プライム"},
	} {
		if _, err := runCmdErr("", args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestConfigSet_NegativeOneDisables(t *testing.T) {
	isolateHome(t)
	runCmd(t, "config", "set", "name_fallback_index", "-1")
	runCmd(t, "config", "set", "mismatch_tolerance", "-1")

	out := runCmd(t, "config", "show")
	for _, want := range []string{"name_fallback_index: -1", "mismatch_tolerance: -1.000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config show missing %q:\n%s", want, out)
		}
	}
	if _, err := runCmdErr("", "config", "set", "name_fallback_index", "-2"); err == nil {
		t.Fatalf("expected error for -2")
	}

	// with tolerance disabled, a table where most rows are ragged still scans
	ragged := "No,コード,銘柄名,比率\n1,1001,A社,▲1.0%,extra\n2,1002,B社\n3,1003,C社,▲2.0%\n"
	sout, err := runCmdErr(ragged, "scan", "-f", "table")
	if err != nil {
		t.Fatalf("scan with tolerance disabled: %v", err)
	}
	if !strings.Contains(sout, "2 declining issue(s).") {
		t.Fatalf("scan output:\n%s", sout)
	}
}

func TestParseMarkets(t *testing.T) {
	m, err := parseMarkets("プライム=東Ｐ, グロース = 東Ｇ")
	if err != nil {
		t.Fatalf("parseMarkets: %v", err)
	}
	if len(m) != 2 || m[1].Label != "グロース" || m[1].Code != "東Ｇ" {
		t.Fatalf("markets = %+v", m)
	}
}
