package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScanBatch_OutputDirWithCollisionSuffix(t *testing.T) {
	home := isolateHome(t)

	// Two inputs with the same basename in different directories
	d1 := filepath.Join(home, "d1")
	d2 := filepath.Join(home, "d2")
	for _, d := range []string{d1, d2} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
		if err := os.WriteFile(filepath.Join(d, "watchlist.csv"), []byte(watchlist), 0o644); err != nil {
			t.Fatalf("write input: %v", err)
		}
	}
	outDir := filepath.Join(home, "out")

	stdout := runCmd(t, "scan-batch", filepath.Join(home, "d*", "watchlist.csv"), "--output-dir", outDir, "--jobs", "2")
	if !strings.Contains(stdout, "[1/2] Processing watchlist.csv...") || !strings.Contains(stdout, "[2/2]") {
		t.Fatalf("missing progress lines:\n%s", stdout)
	}

	b1 := filepath.Join(outDir, "watchlist.scan.md")
	b2 := filepath.Join(outDir, "watchlist__2.scan.md")
	for _, p := range []string{b1, b2} {
		body, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("missing report %s: %v", filepath.Base(p), err)
		}
		if !strings.Contains(string(body), "[DECLINE RANKING]") {
			t.Fatalf("report %s incomplete:\n%s", filepath.Base(p), body)
		}
	}
}

func TestScanBatch_ProgressStreamsInInputOrder(t *testing.T) {
	home := isolateHome(t)
	var inputs []string
	for _, name := range []string{"a.csv", "b.csv", "c.csv"} {
		p := filepath.Join(home, name)
		if err := os.WriteFile(p, []byte(watchlist), 0o644); err != nil {
			t.Fatalf("write input: %v", err)
		}
		inputs = append(inputs, p)
	}
	outDir := filepath.Join(home, "out")

	args := append([]string{"scan-batch"}, inputs[2], inputs[0], inputs[1])
	args = append(args, "--output-dir", outDir, "--jobs", "3")
	stdout := runCmd(t, args...)

	// each file's result follows its own progress line and precedes the next
	marks := []string{
		"[1/3] Processing a.csv...", "→ a.scan.md",
		"[2/3] Processing b.csv...", "→ b.scan.md",
		"[3/3] Processing c.csv...", "→ c.scan.md",
	}
	last := -1
	for _, m := range marks {
		idx := strings.Index(stdout, m)
		if idx <= last {
			t.Fatalf("%q out of order:\n%s", m, stdout)
		}
		last = idx
	}
}

func TestScanBatch_NoRatioColumnWarns(t *testing.T) {
	home := isolateHome(t)
	in := filepath.Join(home, "prices.csv")
	if err := os.WriteFile(in, []byte("No,コード,銘柄名,現在値\n1,1001,A社,100\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	resetFlags()
	var out, errOut strings.Builder
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"scan-batch", in, "--format", "json"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("scan-batch: %v", err)
	}
	if !strings.Contains(errOut.String(), "⚠ Warning: prices.csv: 「前日比率」カラムが見つかりませんでした") {
		t.Fatalf("stderr:\n%s", errOut.String())
	}
}

func TestScanBatch_KeepGoing(t *testing.T) {
	home := isolateHome(t)
	good := filepath.Join(home, "a.csv")
	bad := filepath.Join(home, "b.csv")
	if err := os.WriteFile(good, []byte(watchlist), 0o644); err != nil {
		t.Fatalf("write good: %v", err)
	}
	if err := os.WriteFile(bad, []byte("header only\n"), 0o644); err != nil {
		t.Fatalf("write bad: %v", err)
	}
	outDir := filepath.Join(home, "out")

	if _, err := runCmdErr("", "scan-batch", good, bad, "--output-dir", outDir, "--format", "json"); err == nil {
		t.Fatalf("expected failure on bad input")
	}

	_, err := runCmdErr("", "scan-batch", filepath.Join(home, "*.csv"), "--output-dir", outDir, "--format", "json", "--keep-going", "--quiet")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 files failed") {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "a.scan.json")); err != nil {
		t.Fatalf("good input not written: %v", err)
	}
}

func TestScanBatch_NoMatches(t *testing.T) {
	home := isolateHome(t)
	if _, err := runCmdErr("", "scan-batch", filepath.Join(home, "*.csv")); err == nil {
		t.Fatalf("expected no-match error")
	}
}
