// Package numeric coerces free-form brokerage cells such as "▲1.23%" or
// "1,234" into float64 values.
package numeric

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// DownGlyphs are the decline markers brokerage tools print instead of '-'.
var DownGlyphs = []string{"▲", "▼"}

var nullLike = map[string]struct{}{
	"nan": {}, "null": {}, "none": {}, "n/a": {}, "na": {}, "-": {}, "--": {}, "―": {},
}

var glyphReplacer = strings.NewReplacer(
	DownGlyphs[0], "-",
	DownGlyphs[1], "-",
	"%", "",
	",", "",
)

// Normalize returns the numeric reading of raw. It never fails: empty,
// null-like or unparseable input yields 0, and the result is always finite.
// Fullwidth digits and signs ("▲１．２３％") read like their ASCII forms.
func Normalize(raw string) float64 {
	s := strings.TrimSpace(width.Narrow.String(raw))
	if s == "" {
		return 0
	}
	if _, ok := nullLike[strings.ToLower(s)]; ok {
		return 0
	}
	s = glyphReplacer.Replace(s)
	s = strings.Map(keepNumeric, s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func keepNumeric(r rune) rune {
	if (r >= '0' && r <= '9') || r == '.' || r == '-' {
		return r
	}
	return -1
}

// Format renders f in the shortest form that Normalize reads back exactly.
func Format(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
