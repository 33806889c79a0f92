package statement

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var (
	ErrSheetSelectionRequired = errors.New("workbook has several sheets, select one")
	ErrUnknownSheet           = errors.New("sheet not found in workbook")
	ErrEmptyWorkbook          = errors.New("workbook has no sheet")
)

// Workbook is an opened statement file.
type Workbook struct {
	file     *excelize.File
	sheets   []string
	date1904 bool
}

func OpenWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, ErrEmptyWorkbook
	}
	wb := &Workbook{file: f, sheets: sheets}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		wb.date1904 = *props.Date1904
	}
	return wb, nil
}

func (w *Workbook) Close() error {
	return w.file.Close()
}

func (w *Workbook) Sheets() []string {
	return append([]string(nil), w.sheets...)
}

// AutoSelect returns the only sheet of the workbook.
func (w *Workbook) AutoSelect() (string, error) {
	if len(w.sheets) == 1 {
		return w.sheets[0], nil
	}
	return "", ErrSheetSelectionRequired
}

func (w *Workbook) hasSheet(sheet string) bool {
	for _, s := range w.sheets {
		if s == sheet {
			return true
		}
	}
	return false
}

// Load reads a sheet. The first non-empty line is the header; empty lines are dropped.
func (w *Workbook) Load(sheet string) (*Statement, error) {
	if !w.hasSheet(sheet) {
		return nil, ErrUnknownSheet
	}
	raw, err := w.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	st := &Statement{Sheet: sheet, Rows: []Row{}}
	headerIdx := -1
	for i, cells := range raw {
		if !blankLine(cells) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return st, nil
	}
	st.Headers = uniqueHeaders(raw[headerIdx])

	styleCache := map[int]bool{}
	for r := headerIdx + 1; r < len(raw); r++ {
		cells := raw[r]
		if blankLine(cells) {
			continue
		}
		row := Row{}
		for c, header := range st.Headers {
			if c >= len(cells) {
				row[header] = TextCell("")
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			row[header] = w.readCell(sheet, axis, cells[c], styleCache)
		}
		st.Rows = append(st.Rows, row)
	}
	return st, nil
}

// readCell resolves the raw value into a date, a number or text using the cell type and number format.
func (w *Workbook) readCell(sheet, axis, raw string, styleCache map[int]bool) CellValue {
	if strings.TrimSpace(raw) == "" {
		return TextCell("")
	}
	cellType, err := w.file.GetCellType(sheet, axis)
	if err != nil {
		return TextCell(raw)
	}

	switch cellType {
	case excelize.CellTypeDate:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, perr := time.Parse(layout, raw); perr == nil {
				return DateCell(t)
			}
		}
		return TextCell(raw)
	case excelize.CellTypeNumber, excelize.CellTypeUnset, excelize.CellTypeFormula:
		d, perr := decimal.NewFromString(strings.TrimSpace(raw))
		if perr != nil {
			return TextCell(raw)
		}
		if w.isDateStyled(sheet, axis, styleCache) {
			if t, terr := excelize.ExcelDateToTime(d.InexactFloat64(), w.date1904); terr == nil {
				return DateCell(t)
			}
		}
		return NumberCell(d)
	}
	return TextCell(raw)
}

var quotedOrBracketed = regexp.MustCompile(`"[^"]*"|\[[^\]]*\]`)

func (w *Workbook) isDateStyled(sheet, axis string, cache map[int]bool) bool {
	styleID, err := w.file.GetCellStyle(sheet, axis)
	if err != nil || styleID == 0 {
		return false
	}
	if v, ok := cache[styleID]; ok {
		return v
	}
	isDate := false
	if style, err := w.file.GetStyle(styleID); err == nil && style != nil {
		switch {
		case style.NumFmt >= 14 && style.NumFmt <= 17, style.NumFmt == 22:
			isDate = true
		case style.CustomNumFmt != nil:
			format := strings.ToLower(quotedOrBracketed.ReplaceAllString(*style.CustomNumFmt, ""))
			isDate = strings.Contains(format, "y") || (strings.Contains(format, "d") && strings.Contains(format, "m"))
		}
	}
	cache[styleID] = isDate
	return isDate
}

func blankLine(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
