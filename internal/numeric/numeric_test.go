package numeric

import (
	"math"
	"math/rand"
	"testing"
)

func TestNormalize_Examples(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"▲1.23%", -1.23},
		{"▼2,345", -2345},
		{"", 0},
		{"   ", 0},
		{"N/A", 0},
		{"nan", 0},
		{"--", 0},
		{"+0.50%", 0.5},
		{"-4.5%", -4.5},
		{" 12.75 ", 12.75},
		{"1,234,567.8", 1234567.8},
		{"▲ 0.8 %", -0.8},
		{"円12.5", 12.5},
		{"abc", 0},
		{"1.2.3", 0},
		{"--5", 0},
		{"1e308", 1308},
		{"１２３", 123},
		{"▲１２", -12},
		{"▲１．２３％", -1.23},
		{"－４，５００", -4500},
		{"　▼0.5%　", -0.5},
	}
	for _, tc := range cases {
		got := Normalize(tc.in)
		if !almostEqual(got, tc.want, 1e-9) {
			t.Fatalf("Normalize(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_TotalOnAdversarialInput(t *testing.T) {
	inputs := []string{
		"\x00\xff\xfe", "NaN", "Inf", "-Inf", "+Inf", "∞", "１２３", "٣٫٥",
		"▲▼▲", "%%%", ",,,", "..", "-.", ".-", "‮1.0", "🙂-1🙂",
		string(make([]byte, 1024)),
		repeat("9", 400),
	}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		b := make([]byte, rng.Intn(24))
		rng.Read(b)
		inputs = append(inputs, string(b))
	}
	for _, in := range inputs {
		got := Normalize(in)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("Normalize(%q) = %v, want finite", in, got)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, in := range []string{"▲1.23%", "▼2,345", "+0.50%", "3.14159", "-0.0001", "100"} {
		first := Normalize(in)
		second := Normalize(Format(first))
		if !almostEqual(first, second, 1e-12) {
			t.Fatalf("Normalize(Format(Normalize(%q))) = %v, want %v", in, second, first)
		}
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
