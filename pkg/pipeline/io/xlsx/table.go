package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrMissingSheet is returned when the requested sheet is not in the workbook.
var ErrMissingSheet = errors.New("missing sheet")

// Table is one worksheet held in memory: a header row and the data rows below it.
//
// Cell values are strings, float64 (plain numeric cells), bool, or nil (empty).
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]any
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Text returns the cell at (row, col) as displayed text; missing cells are "".
func (t *Table) Text(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	switch v := t.Rows[row][col].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strings.ToUpper(strconv.FormatBool(v))
	default:
		return fmt.Sprint(v)
	}
}

// Set writes a cell, growing the row if needed.
func (t *Table) Set(row, col int, v any) {
	for len(t.Rows[row]) <= col {
		t.Rows[row] = append(t.Rows[row], nil)
	}
	t.Rows[row][col] = v
}

// EnsureColumns appends any header names that are missing, padding every row.
func (t *Table) EnsureColumns(header []string) {
	for i := len(t.Header); i < len(header); i++ {
		t.Header = append(t.Header, header[i])
	}
	for r := range t.Rows {
		for len(t.Rows[r]) < len(t.Header) {
			t.Rows[r] = append(t.Rows[r], nil)
		}
	}
}

// Source loads one sheet of a workbook on disk.
type Source struct {
	Path  string
	Sheet string
}

func (s Source) Load(_ context.Context) (*Table, error) {
	return ReadFile(s.Path, s.Sheet)
}

// ReadFile reads sheet from the workbook at path.
func ReadFile(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return readSheet(f, sheet)
}

// Read reads sheet from a workbook stream.
func Read(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return readSheet(f, sheet)
}

func readSheet(f *excelize.File, sheet string) (*Table, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, fmt.Errorf("%w %q", ErrMissingSheet, sheet)
	}

	shown, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read raw rows: %w", err)
	}
	if len(shown) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}

	// Interior blank rows stay so row positions match the sheet; trailing ones do not.
	last := len(shown) - 1
	for last > 0 && blank(shown[last]) {
		last--
	}

	t := &Table{Sheet: sheet, Header: append([]string(nil), shown[0]...)}
	for r := 1; r <= last; r++ {
		row := make([]any, max(len(shown[r]), len(t.Header)))
		for c, text := range shown[r] {
			var rawText string
			if r < len(raw) && c < len(raw[r]) {
				rawText = raw[r][c]
			}
			row[c], err = cellValue(f, sheet, c+1, r+1, text, rawText)
			if err != nil {
				return nil, err
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// cellValue keeps plain numbers numeric and everything else as displayed text,
// so formatted values (dates, currency) survive a round trip unchanged.
func cellValue(f *excelize.File, sheet string, col, row int, shown, raw string) (any, error) {
	if shown == "" {
		return nil, nil
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, err
	}
	typ, err := f.GetCellType(sheet, cell)
	if err != nil {
		return nil, fmt.Errorf("cell %s type: %w", cell, err)
	}
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if shown != raw {
			return shown, nil
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n, nil
		}
	}
	return shown, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Write writes t as a single-sheet workbook to w.
func Write(w io.Writer, t *Table) error {
	f, err := build(t)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return f.Write(w)
}

func build(t *Table) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", t.Sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(t.Sheet, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	for r, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		vals := append([]any(nil), row...)
		if err := f.SetSheetRow(t.Sheet, cell, &vals); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write row %d: %w", r+2, err)
		}
	}
	return f, nil
}
