package workflow

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mmdatafocus/bakery_backend/config"
	"github.com/mmdatafocus/bakery_backend/models"
	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var reconcileTolerance = decimal.RequireFromString("0.01")

// ReconciliationRow is one date of the CMI / bank comparison.
type ReconciliationRow struct {
	Date            string                   `json:"date"`
	CMIEntry        *models.CMIJournalEntry  `json:"cmiEntry,omitempty"`
	BankEntries     []models.BankLedgerEntry `json:"bankEntries"`
	TotalBankAmount decimal.Decimal          `json:"totalBankAmount"`
	IsReconciled    bool                     `json:"isReconciled"`
	DisplayAmount   decimal.Decimal          `json:"displayAmount"`
}

// CMIReconciler matches the CMI journal against the bank ledger.
// Which dates are CMI-reconciled lives only in the reconciler; the ledger's isReconciled
// flag belongs to the manual bank pointing and is never set here.
type CMIReconciler struct {
	journal models.CMIJournalRepository
	ledger  models.BankLedgerRepository
	logger  *logrus.Logger

	mu         sync.Mutex
	reconciled map[string]bool
}

func NewCMIReconciler(journal models.CMIJournalRepository, ledger models.BankLedgerRepository, logger *logrus.Logger) *CMIReconciler {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &CMIReconciler{
		journal:    journal,
		ledger:     ledger,
		logger:     logger,
		reconciled: map[string]bool{},
	}
}

func (r *CMIReconciler) IsReconciled(dateKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconciled[dateKey]
}

// BuildView lists every date of the month having a CMI settlement or a CMI bank entry,
// and rebuilds the reconciled set for that month.
func (r *CMIReconciler) BuildView(ctx context.Context, monthKey string) (rows []ReconciliationRow, err error) {
	ctx, span := startSpan(ctx, "CMIReconciler.BuildView", attribute.String("cmi.month", monthKey))
	defer func() { endSpan(span, err) }()

	if _, _, perr := utils.ParseMonthKey(monthKey); perr != nil {
		return nil, ErrInvalidMonth
	}

	journal, _, err := r.journal.GetMonth(ctx, monthKey)
	if err != nil {
		config.LogError(r.logger, "cmiReconciliation.go", "BuildView", "get journal month", monthKey, err)
		return nil, err
	}
	bank, err := r.ledger.Find(ctx, models.BankLedgerQuery{Month: monthKey, Account: models.AccountBanque})
	if err != nil {
		config.LogError(r.logger, "cmiReconciliation.go", "BuildView", "find bank entries", monthKey, err)
		return nil, err
	}

	cmiByDate := map[string][]models.CMIJournalEntry{}
	for _, entry := range journal {
		if !strings.HasPrefix(entry.Date, monthKey+"-") || !utils.AmountOrZero(entry.Brut).IsPositive() {
			continue
		}
		cmiByDate[entry.Date] = append(cmiByDate[entry.Date], entry)
	}
	bankByDate := map[string][]models.BankLedgerEntry{}
	for _, entry := range bank {
		if !entry.IsCMISettlement() {
			continue
		}
		bankByDate[entry.Date] = append(bankByDate[entry.Date], entry)
	}

	dates := make([]string, 0, len(cmiByDate)+len(bankByDate))
	for date := range cmiByDate {
		dates = append(dates, date)
	}
	for date := range bankByDate {
		dates = append(dates, date)
	}
	dates = utils.UniqueSlice(dates)
	sort.Strings(dates)

	r.mu.Lock()
	defer r.mu.Unlock()
	for date := range r.reconciled {
		if strings.HasPrefix(date, monthKey+"-") {
			delete(r.reconciled, date)
		}
	}

	rows = make([]ReconciliationRow, 0, len(dates))
	for _, date := range dates {
		row := ReconciliationRow{
			Date:            date,
			BankEntries:     bankByDate[date],
			TotalBankAmount: decimal.Zero,
		}
		if row.BankEntries == nil {
			row.BankEntries = []models.BankLedgerEntry{}
		}
		for _, b := range row.BankEntries {
			row.TotalBankAmount = row.TotalBankAmount.Add(b.Amount)
		}

		cmiEntries := cmiByDate[date]
		if len(cmiEntries) > 0 {
			first := cmiEntries[0]
			row.CMIEntry = &first
		}
		if matched := matchCMIEntry(cmiEntries, row.BankEntries); matched != nil {
			r.reconciled[date] = true
			row.CMIEntry = matched
		}

		row.IsReconciled = r.reconciled[date]
		row.DisplayAmount = row.TotalBankAmount
		if row.IsReconciled && row.CMIEntry != nil {
			if net := utils.AmountOrZero(row.CMIEntry.Net); net.IsPositive() {
				row.DisplayAmount = net
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// matchCMIEntry returns the first CMI entry with a positive net within a cent of one of the bank amounts.
func matchCMIEntry(cmiEntries []models.CMIJournalEntry, bankEntries []models.BankLedgerEntry) *models.CMIJournalEntry {
	for _, bankEntry := range bankEntries {
		for i := range cmiEntries {
			net := utils.AmountOrZero(cmiEntries[i].Net)
			if !net.IsPositive() {
				continue
			}
			if utils.WithinCents(bankEntry.Amount, net, reconcileTolerance) {
				matched := cmiEntries[i]
				return &matched
			}
		}
	}
	return nil
}

// Reconcile overwrites the amount of every CMI bank entry of the date with the processor net.
func (r *CMIReconciler) Reconcile(ctx context.Context, dateKey string, cmiNet decimal.Decimal) (err error) {
	ctx, span := startSpan(ctx, "CMIReconciler.Reconcile",
		attribute.String("cmi.date", dateKey),
		attribute.String("cmi.net", cmiNet.String()),
	)
	defer func() { endSpan(span, err) }()

	if !utils.IsDateKey(dateKey) {
		return ErrInvalidDate
	}
	if !cmiNet.IsPositive() {
		return ErrInvalidAmount
	}

	release, err := utils.DayLock(ctx, dateKey, "cmiReconciliation.go", "Reconcile")
	if err != nil {
		return err
	}
	defer release()

	candidates, err := r.ledger.Find(ctx, models.BankLedgerQuery{Date: dateKey, Account: models.AccountBanque})
	if err != nil {
		config.LogError(r.logger, "cmiReconciliation.go", "Reconcile", "find bank entries", dateKey, err)
		return err
	}
	var matching []models.BankLedgerEntry
	for _, entry := range candidates {
		if entry.IsCMISettlement() {
			matching = append(matching, entry)
		}
	}
	if len(matching) == 0 {
		return ErrNoMatchingEntry
	}
	for _, entry := range matching {
		if entry.IsReconciled {
			return &AlreadyReconciledError{Date: dateKey, EntryId: entry.ID}
		}
	}

	amount := utils.RoundCents(cmiNet)
	for i := range matching {
		matching[i].Amount = amount
		if err := r.ledger.Upsert(ctx, &matching[i]); err != nil {
			config.LogError(r.logger, "cmiReconciliation.go", "Reconcile", "update bank entry", matching[i].ID, err)
			return err
		}
	}

	r.mu.Lock()
	r.reconciled[dateKey] = true
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"date":    dateKey,
		"cmiNet":  amount.StringFixed(2),
		"entries": len(matching),
	}).Info("CMI settlement reconciled")
	return nil
}
