package table

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Loader reads a file into a RawTable.
type Loader interface {
	CanLoad(filename string) bool
	Load(path string, opt Options) (*RawTable, error)
}

var registry []Loader

// Register adds a loader to the registry. Later registrations do not override
// earlier ones for the same extension.
func Register(l Loader) {
	registry = append(registry, l)
}

// ErrUnsupported indicates no loader accepts the file.
var ErrUnsupported = errors.New("unsupported input format")

// Load selects a loader by filename and reads the table. Files with an
// unrecognized extension are treated as pasted text.
func Load(path string, opt Options) (*RawTable, error) {
	for _, l := range registry {
		if l.CanLoad(path) {
			return l.Load(path, opt)
		}
	}
	return textLoader{}.Load(path, opt)
}

func init() {
	Register(textLoader{})
	Register(XLSXLoader{})
}

type textLoader struct{}

func (textLoader) CanLoad(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv") || strings.HasSuffix(name, ".txt")
}

func (textLoader) Load(path string, opt Options) (*RawTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if opt.Delimiter == 0 && strings.HasSuffix(strings.ToLower(path), ".tsv") {
		opt.Delimiter = '\t'
	}
	return Parse(string(data), opt)
}

// XLSXLoader reads a worksheet of an .xlsx export. An empty Sheet selects the
// first sheet of the workbook.
type XLSXLoader struct {
	Sheet string
}

func (XLSXLoader) CanLoad(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx")
}

func (l XLSXLoader) Load(path string, opt Options) (*RawTable, error) {
	return LoadXLSX(path, l.Sheet, opt)
}

// LoadXLSX reads the named sheet (or the first one) and applies the same
// header and consistency rules as Parse.
func LoadXLSX(path, sheet string, opt Options) (*RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &ParseError{Reason: "workbook has no sheets"}
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found in workbook; available sheets: %s", sheet, strings.Join(f.GetSheetList(), ", "))
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &ParseError{Reason: "read sheet " + sheet, Err: err}
	}
	// GetRows drops trailing empty cells, so short rows are expected here and
	// only rows wider than the header count as mismatches.
	if len(rows) > 0 {
		width := len(rows[0])
		for i := range rows {
			if len(rows[i]) < width {
				padded := make([]string, width)
				copy(padded, rows[i])
				rows[i] = padded
			}
		}
	}
	return FromRecords(rows, opt)
}
