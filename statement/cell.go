package statement

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
)

var (
	ErrUnparsableDate   = errors.New("unparsable date")
	ErrUnparsableAmount = errors.New("unparsable amount")
)

// Excel serial day counts accepted as dates when a cell carries a bare number.
const (
	serialMin        = 40000
	serialMax        = 60000
	serialUnixOffset = 25569
)

// DisplayDateLayout is how dates are shown and used in grouping keys.
const DisplayDateLayout = "02/01/2006"

var textDateLayouts = []string{
	"02/01/2006",
	"02/01/06",
	"2006-01-02",
	"02-01-2006",
	"02.01.2006",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

type CellKind int

const (
	CellText CellKind = iota
	CellNumber
	CellDate
)

func (k CellKind) String() string {
	switch k {
	case CellNumber:
		return "number"
	case CellDate:
		return "date"
	}
	return "text"
}

// CellValue is a statement cell resolved once at import: a date, a number or text.
type CellValue struct {
	Kind   CellKind
	Date   time.Time
	Number decimal.Decimal
	Text   string
}

func TextCell(s string) CellValue {
	return CellValue{Kind: CellText, Text: s}
}

func NumberCell(d decimal.Decimal) CellValue {
	return CellValue{Kind: CellNumber, Number: d}
}

func DateCell(t time.Time) CellValue {
	return CellValue{Kind: CellDate, Date: t}
}

func (c CellValue) IsEmpty() bool {
	return c.Kind == CellText && strings.TrimSpace(c.Text) == ""
}

func (c CellValue) String() string {
	switch c.Kind {
	case CellDate:
		return c.Date.Format(DisplayDateLayout)
	case CellNumber:
		return c.Number.String()
	}
	return c.Text
}

// AsDate is the one date normalization used for display, grouping and sorting.
func (c CellValue) AsDate() (time.Time, error) {
	switch c.Kind {
	case CellDate:
		return c.Date, nil
	case CellNumber:
		if t, ok := serialToDate(c.Number); ok {
			return t, nil
		}
		return time.Time{}, ErrUnparsableDate
	}
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return time.Time{}, ErrUnparsableDate
	}
	for _, layout := range textDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	if d, err := decimal.NewFromString(text); err == nil {
		if t, ok := serialToDate(d); ok {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparsableDate
}

// AsAmount is the one amount normalization. Empty cells are zero.
func (c CellValue) AsAmount() (decimal.Decimal, error) {
	switch c.Kind {
	case CellNumber:
		return c.Number, nil
	case CellDate:
		return decimal.Zero, ErrUnparsableAmount
	}
	d, err := utils.ParseAmount(c.Text)
	if err != nil {
		return decimal.Zero, ErrUnparsableAmount
	}
	return d, nil
}

func serialToDate(d decimal.Decimal) (time.Time, bool) {
	if !d.IsInteger() {
		return time.Time{}, false
	}
	serial := d.IntPart()
	if serial < serialMin || serial > serialMax {
		return time.Time{}, false
	}
	return time.Unix((serial-serialUnixOffset)*86400, 0).UTC(), true
}

type cellJSON struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (c CellValue) MarshalJSON() ([]byte, error) {
	out := cellJSON{Type: c.Kind.String()}
	switch c.Kind {
	case CellDate:
		out.Value = c.Date.Format(time.RFC3339)
	case CellNumber:
		out.Value = c.Number.String()
	default:
		out.Value = c.Text
	}
	return json.Marshal(out)
}

func (c *CellValue) UnmarshalJSON(data []byte) error {
	var in cellJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Type {
	case "date":
		t, err := time.Parse(time.RFC3339, in.Value)
		if err != nil {
			return fmt.Errorf("cell date %q: %w", in.Value, err)
		}
		*c = DateCell(t)
	case "number":
		d, err := decimal.NewFromString(in.Value)
		if err != nil {
			return fmt.Errorf("cell number %q: %w", in.Value, err)
		}
		*c = NumberCell(d)
	default:
		*c = TextCell(in.Value)
	}
	return nil
}
