package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTextTable_AlignsFullWidth(t *testing.T) {
	out := TextTable([]string{"銘柄名", "比率"}, [][]string{{"A社", "-3.2"}, {"TIS", "-0.5"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d:\n%s", len(lines), out)
	}
	// "銘柄名" is 6 cells wide; every first column is padded to 6 plus the gap.
	if lines[0] != "銘柄名  比率" {
		t.Fatalf("header line = %q", lines[0])
	}
	if lines[1] != "------  ----" {
		t.Fatalf("separator = %q", lines[1])
	}
	if lines[2] != "A社     -3.2" {
		t.Fatalf("row 1 = %q", lines[2])
	}
	if lines[3] != "TIS     -0.5" {
		t.Fatalf("row 2 = %q", lines[3])
	}
}

func TestSafeWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	if err := SafeWriteFile(path, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("SafeWriteFile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil || string(b) != `{"ok":true}` {
		t.Fatalf("read back = %q, %v", b, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}
