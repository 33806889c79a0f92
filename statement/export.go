package statement

import (
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	defaultSheetName = "Releve"
	footerLabel      = "TOTAL"
	headerFill       = "D9D9D9"
	footerFill       = "F2F2F2"
	amountFormat     = "0.00"
	dateFormat       = "dd/mm/yyyy"
)

func thinBorders() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
}

type exportStyles struct {
	header, text, amount, date, footer, footerAmount int
}

func newExportStyles(f *excelize.File) (exportStyles, error) {
	var s exportStyles
	var err error
	amountFmt := amountFormat
	dateFmt := dateFormat

	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
		Border:    thinBorders(),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}); err != nil {
		return s, err
	}
	if s.text, err = f.NewStyle(&excelize.Style{Border: thinBorders()}); err != nil {
		return s, err
	}
	if s.amount, err = f.NewStyle(&excelize.Style{Border: thinBorders(), CustomNumFmt: &amountFmt}); err != nil {
		return s, err
	}
	if s.date, err = f.NewStyle(&excelize.Style{Border: thinBorders(), CustomNumFmt: &dateFmt}); err != nil {
		return s, err
	}
	if s.footer, err = f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{footerFill}},
		Border: thinBorders(),
	}); err != nil {
		return s, err
	}
	if s.footerAmount, err = f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Bold: true},
		Fill:         excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{footerFill}},
		Border:       thinBorders(),
		CustomNumFmt: &amountFmt,
	}); err != nil {
		return s, err
	}
	return s, nil
}

// BuildWorkbook renders the statement with a shaded header, bordered cells,
// two-decimal amounts and a footer of per-column totals.
func BuildWorkbook(st *Statement) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := st.Sheet
	if sheet == "" {
		sheet = defaultSheetName
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	styles, err := newExportStyles(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	monetary := map[string]bool{}
	for _, col := range st.MonetaryColumns() {
		monetary[col] = true
	}
	widths := make([]int, len(st.Headers))

	fail := func(err error) (*excelize.File, error) {
		_ = f.Close()
		return nil, err
	}

	for c, header := range st.Headers {
		axis, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return fail(err)
		}
		if err := f.SetCellStr(sheet, axis, header); err != nil {
			return fail(err)
		}
		if err := f.SetCellStyle(sheet, axis, axis, styles.header); err != nil {
			return fail(err)
		}
		widths[c] = utf8.RuneCountInString(header)
	}

	for r, row := range st.Rows {
		for c, header := range st.Headers {
			axis, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return fail(err)
			}
			cell := row[header]
			style := styles.text
			switch {
			case cell.Kind == CellDate:
				err = f.SetCellValue(sheet, axis, cell.Date)
				style = styles.date
			case monetary[header] && !cell.IsEmpty():
				amount, aerr := cell.AsAmount()
				if aerr != nil {
					err = f.SetCellStr(sheet, axis, cell.String())
				} else {
					err = f.SetCellFloat(sheet, axis, amount.InexactFloat64(), 2, 64)
					style = styles.amount
				}
			case cell.Kind == CellNumber:
				err = f.SetCellFloat(sheet, axis, cell.Number.InexactFloat64(), -1, 64)
			default:
				err = f.SetCellStr(sheet, axis, cell.Text)
			}
			if err != nil {
				return fail(err)
			}
			if err := f.SetCellStyle(sheet, axis, axis, style); err != nil {
				return fail(err)
			}
			if n := utf8.RuneCountInString(cell.String()); n > widths[c] {
				widths[c] = n
			}
		}
	}

	totals, _ := st.Totals()
	footerRow := len(st.Rows) + 2
	for c, header := range st.Headers {
		axis, err := excelize.CoordinatesToCellName(c+1, footerRow)
		if err != nil {
			return fail(err)
		}
		style := styles.footer
		switch {
		case monetary[header]:
			err = f.SetCellFloat(sheet, axis, totals[header].InexactFloat64(), 2, 64)
			style = styles.footerAmount
		case c == 0:
			err = f.SetCellStr(sheet, axis, footerLabel)
		}
		if err != nil {
			return fail(err)
		}
		if err := f.SetCellStyle(sheet, axis, axis, style); err != nil {
			return fail(err)
		}
	}

	for c, w := range widths {
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return fail(err)
		}
		width := float64(w + 2)
		if width > 60 {
			width = 60
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return fail(err)
		}
	}
	return f, nil
}

// Export writes the rendered statement as xlsx.
func Export(st *Statement, w io.Writer) error {
	f, err := BuildWorkbook(st)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}
