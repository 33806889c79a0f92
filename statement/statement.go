package statement

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Row is one imported statement line keyed by column header.
type Row map[string]CellValue

// Statement is an imported sheet. Headers keep the column order of the file.
type Statement struct {
	Sheet   string   `json:"sheet"`
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

var (
	monetaryHints    = []string{"debit", "credit", "montant", "euro"}
	descriptiveHints = []string{"libelle", "description", "designation", "operation", "label", "intitule", "detail"}
)

// foldHeader lowercases and strips accents so "Débit" and "DEBIT" compare equal.
func foldHeader(header string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, header)
	if err != nil {
		folded = header
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

func IsMonetaryHeader(header string) bool {
	return containsAny(foldHeader(header), monetaryHints)
}

// MonetaryColumns lists the headers summed by compression and totalled on export.
func (s *Statement) MonetaryColumns() []string {
	var cols []string
	for _, h := range s.Headers {
		if IsMonetaryHeader(h) {
			cols = append(cols, h)
		}
	}
	return cols
}

// DateColumn is the first header containing "date", or "".
func (s *Statement) DateColumn() string {
	for _, h := range s.Headers {
		if strings.Contains(foldHeader(h), "date") {
			return h
		}
	}
	return ""
}

// DescriptiveColumns are the label-like columns, or the first column that is
// neither a date nor an amount when no header looks like a label.
func (s *Statement) DescriptiveColumns() []string {
	var cols []string
	for _, h := range s.Headers {
		folded := foldHeader(h)
		if strings.Contains(folded, "date") || containsAny(folded, monetaryHints) {
			continue
		}
		if containsAny(folded, descriptiveHints) {
			cols = append(cols, h)
		}
	}
	if len(cols) > 0 {
		return cols
	}
	for _, h := range s.Headers {
		folded := foldHeader(h)
		if !strings.Contains(folded, "date") && !containsAny(folded, monetaryHints) {
			return []string{h}
		}
	}
	return nil
}

// Text joins the row's cells in column order, as searched for TPE markers.
func (s *Statement) Text(row Row) string {
	parts := make([]string, 0, len(s.Headers))
	for _, h := range s.Headers {
		if cell, ok := row[h]; ok && !cell.IsEmpty() {
			parts = append(parts, cell.String())
		}
	}
	return strings.Join(parts, " ")
}

// Totals sums every monetary column, rounding to cents after each addition.
// Cells that are not amounts count as zero.
func (s *Statement) Totals() (map[string]decimal.Decimal, int) {
	totals := map[string]decimal.Decimal{}
	unparsable := 0
	for _, col := range s.MonetaryColumns() {
		sum := decimal.Zero
		for _, row := range s.Rows {
			amount, err := row[col].AsAmount()
			if err != nil {
				unparsable++
			}
			sum = utils.RoundCents(sum.Add(amount))
		}
		totals[col] = sum
	}
	return totals, unparsable
}

// uniqueHeaders names blank headers and disambiguates repeated ones.
func uniqueHeaders(raw []string) []string {
	seen := map[string]int{}
	out := make([]string, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Colonne %d", i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		out[i] = h
	}
	return out
}
