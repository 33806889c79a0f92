package statement

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
)

const tpeToken = "TPE"

var (
	internalDatePattern = regexp.MustCompile(`\b\d{2}/\d{2}/\d{2}\b`)
	terminalIdPattern   = regexp.MustCompile(`\b\d{8,12}\b`)
)

var epoch = time.Unix(0, 0).UTC()

// CompressStats reports what compression did and which cells it had to count as zero or epoch.
type CompressStats struct {
	InputRows         int `json:"inputRows"`
	OutputRows        int `json:"outputRows"`
	Groups            int `json:"groups"`
	MergedRows        int `json:"mergedRows"`
	UnparsableAmounts int `json:"unparsableAmounts"`
	UnparsableDates   int `json:"unparsableDates"`
}

type tpeKey struct {
	bankDate     string
	internalDate string
	terminalId   string
}

type tpeGroup struct {
	key  tpeKey
	row  Row
	sums map[string]decimal.Decimal
}

// BankDateString is the grouping form of a row's bank date: dd/mm/yyyy when it normalizes, the raw text otherwise.
func BankDateString(cell CellValue) string {
	if t, err := cell.AsDate(); err == nil {
		return t.Format(DisplayDateLayout)
	}
	return strings.TrimSpace(cell.String())
}

// CompressLabel is the descriptive text of a compressed TPE row.
func CompressLabel(internalDate, terminalId string) string {
	label := strings.TrimSpace("Cumul TPE " + terminalId)
	if internalDate != "" {
		return internalDate + " " + label
	}
	return label
}

// Compress merges card terminal lines into one line per (bank date, transaction date, terminal).
// Other rows are kept untouched. The result is sorted by the date column, stable, with
// undated rows first.
func Compress(st *Statement) (*Statement, CompressStats) {
	stats := CompressStats{InputRows: len(st.Rows)}
	dateCol := st.DateColumn()
	monetary := st.MonetaryColumns()
	descriptive := st.DescriptiveColumns()

	passthrough := make([]Row, 0, len(st.Rows))
	groups := map[tpeKey]*tpeGroup{}
	var order []*tpeGroup

	for _, row := range st.Rows {
		text := st.Text(row)
		if !strings.Contains(text, tpeToken) {
			passthrough = append(passthrough, row)
			continue
		}
		key := tpeKey{
			internalDate: internalDatePattern.FindString(text),
			terminalId:   terminalIdPattern.FindString(text),
		}
		if dateCol != "" {
			key.bankDate = BankDateString(row[dateCol])
		}

		g, ok := groups[key]
		if !ok {
			g = &tpeGroup{key: key, row: copyRow(row), sums: map[string]decimal.Decimal{}}
			for _, col := range monetary {
				g.sums[col] = decimal.Zero
			}
			groups[key] = g
			order = append(order, g)
		}
		stats.MergedRows++
		for _, col := range monetary {
			amount, err := row[col].AsAmount()
			if err != nil {
				stats.UnparsableAmounts++
			}
			g.sums[col] = utils.RoundCents(g.sums[col].Add(amount))
		}
	}

	out := &Statement{
		Sheet:   st.Sheet,
		Headers: append([]string(nil), st.Headers...),
		Rows:    make([]Row, 0, len(passthrough)+len(order)),
	}
	out.Rows = append(out.Rows, passthrough...)
	for _, g := range order {
		for _, col := range monetary {
			g.row[col] = NumberCell(g.sums[col])
		}
		label := CompressLabel(g.key.internalDate, g.key.terminalId)
		for _, col := range descriptive {
			g.row[col] = TextCell(label)
		}
		out.Rows = append(out.Rows, g.row)
	}

	if dateCol != "" {
		stats.UnparsableDates = SortByDate(out, dateCol)
	}
	stats.Groups = len(order)
	stats.OutputRows = len(out.Rows)
	return out, stats
}

// SortByDate stable-sorts rows ascending on the given column; rows whose date does not parse sort as the epoch.
// Returns how many rows had no usable date.
func SortByDate(st *Statement, dateCol string) int {
	keys := make([]time.Time, len(st.Rows))
	unparsable := 0
	for i, row := range st.Rows {
		t, err := row[dateCol].AsDate()
		if err != nil {
			unparsable++
			t = epoch
		}
		keys[i] = t
	}
	idx := make([]int, len(st.Rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]].Before(keys[idx[b]])
	})
	sorted := make([]Row, len(st.Rows))
	for i, j := range idx {
		sorted[i] = st.Rows[j]
	}
	st.Rows = sorted
	return unparsable
}

func copyRow(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
