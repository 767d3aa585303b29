package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultMismatchTolerance is the share of data rows allowed to disagree with
// the header's column count before the table is rejected.
const DefaultMismatchTolerance = 0.25

// candidateDelimiters are tried in order; on a tie the earlier one wins, so
// comma must stay first and space last.
var candidateDelimiters = []rune{',', '\t', ';', ' '}

// Options controls parsing of pasted tabular text.
type Options struct {
	// Delimiter forces the field separator. If 0, it is sniffed.
	Delimiter rune
	// MismatchTolerance is the allowed fraction (0..1) of data rows whose
	// field count differs from the header. Negative disables the check.
	MismatchTolerance float64
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{MismatchTolerance: DefaultMismatchTolerance}
}

// RawTable is a parsed table: a header plus rows of raw text cells.
type RawTable struct {
	Header    []string
	Rows      []Row
	Delimiter rune
	Warnings  []string
}

// Row holds the cells of one record in header order.
type Row struct {
	header []string
	Cells  []string
}

// Get returns the cell under the named column, or "" if the column is unknown.
func (r Row) Get(name string) string {
	for i, h := range r.header {
		if h == name {
			return r.Cells[i]
		}
	}
	return ""
}

// Map returns the row as a column name to cell mapping.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r.header))
	for i, h := range r.header {
		m[h] = r.Cells[i]
	}
	return m
}

// ParseError reports text that cannot be read as a table.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse table: %s: %v", e.Reason, e.Err)
	}
	return "parse table: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Parse reads pasted text into a RawTable. The first non-blank record is the
// header; its cells become column names verbatim.
func Parse(text string, opt Options) (*RawTable, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Reason: "input is empty"}
	}
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(text)
	}
	records, err := readRecords(text, delim)
	if err != nil {
		return nil, &ParseError{Reason: "read records", Err: err}
	}
	if trimsLeadingSpace(delim) && len(records) > 0 {
		if h := verbatimHeader(text, delim); len(h) == len(records[0]) {
			records[0] = h
		}
	}
	return build(records, delim, opt)
}

// FromRecords builds a RawTable from already split records, applying the same
// header and consistency rules as Parse.
func FromRecords(records [][]string, opt Options) (*RawTable, error) {
	var kept [][]string
	for _, rec := range records {
		if !blankRecord(rec) {
			kept = append(kept, rec)
		}
	}
	return build(kept, 0, opt)
}

func build(records [][]string, delim rune, opt Options) (*RawTable, error) {
	if len(records) < 2 {
		return nil, &ParseError{Reason: fmt.Sprintf("need a header and at least one data row, got %d line(s)", len(records))}
	}
	header := uniqueHeader(records[0])
	ncol := len(header)
	if ncol < 2 {
		return nil, &ParseError{Reason: fmt.Sprintf("header %q has a single column; could not detect the delimiter", header[0])}
	}

	tbl := &RawTable{Header: header, Delimiter: delim, Rows: make([]Row, 0, len(records)-1)}
	mismatched := 0
	for _, rec := range records[1:] {
		if len(rec) != ncol {
			mismatched++
		}
		cells := make([]string, ncol)
		copy(cells, rec)
		tbl.Rows = append(tbl.Rows, Row{header: header, Cells: cells})
	}
	if mismatched > 0 {
		share := float64(mismatched) / float64(len(tbl.Rows))
		if opt.MismatchTolerance >= 0 && share > opt.MismatchTolerance {
			return nil, &ParseError{Reason: fmt.Sprintf("%d of %d rows do not match the header's %d columns", mismatched, len(tbl.Rows), ncol)}
		}
		tbl.Warnings = append(tbl.Warnings, fmt.Sprintf("%d row(s) had a column count different from the header and were padded or truncated", mismatched))
	}
	return tbl, nil
}

func readRecords(text string, delim rune) ([][]string, error) {
	if delim == ' ' {
		text = squeezeSpaces(text)
	}
	return readCSV(text, delim, trimsLeadingSpace(delim), 0)
}

// verbatimHeader re-reads the first record without trimming so header cells
// keep their leading whitespace.
func verbatimHeader(text string, delim rune) []string {
	recs, err := readCSV(text, delim, false, 1)
	if err != nil || len(recs) == 0 {
		return nil
	}
	return recs[0]
}

// trimsLeadingSpace reports whether data cells are read with leading
// whitespace removed. With a whitespace delimiter, trimming would swallow
// empty cells.
func trimsLeadingSpace(delim rune) bool {
	return delim != '\t' && delim != ' '
}

// readCSV returns the non-blank records of text, stopping after limit records
// when limit > 0.
func readCSV(text string, delim rune, trim bool, limit int) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = trim

	var out [][]string
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if blankRecord(rec) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// squeezeSpaces trims each line and collapses runs of spaces outside quotes,
// so aligned space-separated pastes split into one field per column.
func squeezeSpaces(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, line := range strings.SplitAfter(text, "\n") {
		body := strings.TrimRight(line, "\r\n")
		eol := line[len(body):]
		body = strings.Trim(body, " ")
		inQuote, prevSpace := false, false
		for _, c := range body {
			switch {
			case c == '"':
				inQuote = !inQuote
			case c == ' ' && !inQuote:
				if prevSpace {
					continue
				}
				prevSpace = true
				b.WriteRune(c)
				continue
			}
			prevSpace = false
			b.WriteRune(c)
		}
		b.WriteString(eol)
	}
	return b.String()
}

// sniffDelimiter picks the candidate that splits the header into at least two
// columns and keeps the most data rows at the header's width.
func sniffDelimiter(text string) rune {
	best := ','
	bestScore := -1
	for _, d := range candidateDelimiters {
		recs, err := readRecords(text, d)
		if err != nil || len(recs) == 0 {
			continue
		}
		ncol := len(recs[0])
		if ncol < 2 {
			continue
		}
		score := 0
		for _, rec := range recs[1:] {
			if len(rec) == ncol {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func uniqueHeader(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		name := h
		if n, ok := seen[h]; ok {
			for {
				n++
				name = h + "." + strconv.Itoa(n)
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[h] = n
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// DelimiterName returns a human label for a delimiter rune.
func DelimiterName(d rune) string {
	switch d {
	case ',':
		return "comma"
	case '\t':
		return "tab"
	case ';':
		return "semicolon"
	case ' ':
		return "space"
	case 0:
		return "n/a"
	default:
		return strconv.QuoteRune(d)
	}
}

// ParseDelimiter maps a CLI/API delimiter name to a rune. Empty means sniff.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return 0, nil
	case ",", "comma":
		return ',', nil
	case "\t", "tab":
		return '\t', nil
	case ";", "semicolon":
		return ';', nil
	case " ", "space":
		return ' ', nil
	default:
		return 0, fmt.Errorf("unsupported delimiter: %s (use ','|';'|'tab'|'space')", s)
	}
}
