package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/bakery_backend/config"
	"github.com/mmdatafocus/bakery_backend/models"
	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// SyncMarker is written in the label of every bank entry created by a day sync.
const SyncMarker = "[sync-caisse]"

type SyncAction string

const (
	SyncActionDraft    SyncAction = "draft"
	SyncActionValidate SyncAction = "sync"
	SyncActionDesync   SyncAction = "desync"
)

func (a SyncAction) IsValid() bool {
	switch a {
	case SyncActionDraft, SyncActionValidate, SyncActionDesync:
		return true
	}
	return false
}

// DaySyncService moves day views between draft and synced and keeps the
// card receipts of the real view in the bank ledger, one entry per day.
type DaySyncService struct {
	days   models.DayRepository
	ledger models.BankLedgerRepository
	rates  Rates
	logger *logrus.Logger
	now    func() time.Time
	newId  func() string
}

type DaySyncOption func(*DaySyncService)

func WithRates(rates Rates) DaySyncOption {
	return func(s *DaySyncService) { s.rates = rates }
}

func WithClock(now func() time.Time) DaySyncOption {
	return func(s *DaySyncService) { s.now = now }
}

func WithIdGenerator(newId func() string) DaySyncOption {
	return func(s *DaySyncService) { s.newId = newId }
}

func NewDaySyncService(days models.DayRepository, ledger models.BankLedgerRepository, logger *logrus.Logger, opts ...DaySyncOption) *DaySyncService {
	if logger == nil {
		logger = config.GetLogger()
	}
	s := &DaySyncService{
		days:   days,
		ledger: ledger,
		rates:  DefaultRates(),
		logger: logger,
		now:    time.Now,
		newId:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DaySyncService) Rates() Rates {
	return s.rates
}

// GetDay returns the stored record, or an empty one for a date never written.
func (s *DaySyncService) GetDay(ctx context.Context, dateKey string) (*models.DayRecord, error) {
	if !utils.IsDateKey(dateKey) {
		return nil, ErrInvalidDate
	}
	record, err := s.days.Get(ctx, dateKey)
	if err != nil {
		config.LogError(s.logger, "daySync.go", "GetDay", "get day record", dateKey, err)
		return nil, err
	}
	if record == nil {
		record = &models.DayRecord{DateKey: dateKey}
	}
	return record, nil
}

// Sync applies a draft save, a validation or a desync to one view of a day.
// On AlreadyReconciled nothing is written.
func (s *DaySyncService) Sync(ctx context.Context, action SyncAction, view models.ViewKind, dateKey string, data models.DaySalesView) (result models.DaySalesView, err error) {
	ctx, span := startSpan(ctx, "DaySync.Sync",
		attribute.String("day.date", dateKey),
		attribute.String("day.view", string(view)),
		attribute.String("day.action", string(action)),
	)
	defer func() { endSpan(span, err) }()

	if !view.IsValid() {
		return models.DaySalesView{}, ErrInvalidView
	}
	if !action.IsValid() {
		return models.DaySalesView{}, ErrInvalidAction
	}
	if !utils.IsDateKey(dateKey) {
		return models.DaySalesView{}, ErrInvalidDate
	}

	release, err := utils.DayLock(ctx, dateKey, "daySync.go", "Sync")
	if err != nil {
		return models.DaySalesView{}, err
	}
	defer release()

	record, err := s.days.Get(ctx, dateKey)
	if err != nil {
		config.LogError(s.logger, "daySync.go", "Sync", "get day record", dateKey, err)
		return models.DaySalesView{}, err
	}

	switch action {
	case SyncActionDesync:
		return s.desync(ctx, record, view, dateKey)
	case SyncActionDraft:
		if view == models.ViewReal {
			return s.saveReal(ctx, record, dateKey, data, false)
		}
		return s.saveDeclared(ctx, record, dateKey, data, false)
	default:
		if view == models.ViewReal {
			return s.saveReal(ctx, record, dateKey, data, true)
		}
		return s.saveDeclared(ctx, record, dateKey, data, true)
	}
}

// identity fields are owned by the engine, never by the caller's payload
func keepIdentity(next models.DaySalesView, stored models.DaySalesView) models.DaySalesView {
	next.Status = stored.Status
	next.LastSyncAt = stored.LastSyncAt
	next.BankEntryId = stored.BankEntryId
	return next
}

func (s *DaySyncService) saveReal(ctx context.Context, record *models.DayRecord, dateKey string, data models.DaySalesView, validate bool) (models.DaySalesView, error) {
	realView, invalid := ComputeRealTotals(keepIdentity(data.Clone(), record.View(models.ViewReal)))
	// derived fields of the real view are recomputed, not taken from input
	realView.CoeffExo = ""
	realView.CoeffImp = ""
	s.warnInvalid("Sync", dateKey, invalid)

	if validate {
		mtCmi, err := utils.ParseAmount(data.Payments.MtCmi)
		if err != nil || mtCmi.IsNegative() {
			config.LogWarning(s.logger, "daySync.go", "Sync", "mtCmi ignored, ledger step skipped",
				map[string]string{"date": dateKey, "mtCmi": data.Payments.MtCmi}, ErrInvalidAmount)
		} else if mtCmi.IsPositive() {
			entryId, err := s.upsertBankEntry(ctx, dateKey, realView.BankEntryId, mtCmi)
			if err != nil {
				return models.DaySalesView{}, err
			}
			realView.BankEntryId = entryId
		}
		now := s.now()
		realView.Status = models.SyncStatusSynced
		realView.LastSyncAt = &now
	} else {
		realView.Status = models.SyncStatusDraft
	}

	if err := s.days.Put(ctx, dateKey, models.ViewReal, realView); err != nil {
		config.LogError(s.logger, "daySync.go", "Sync", "put real view", dateKey, err)
		return models.DaySalesView{}, err
	}

	declared, derivation := s.rates.Derive(realView, record.View(models.ViewDeclared))
	s.warnInvalid("Sync", dateKey, derivation.InvalidFields)
	if err := s.days.Put(ctx, dateKey, models.ViewDeclared, declared); err != nil {
		config.LogError(s.logger, "daySync.go", "Sync", "put declared view", dateKey, err)
		return models.DaySalesView{}, err
	}
	return realView, nil
}

// saveDeclared only takes the coefficients from data; everything else is derived from the stored real view.
func (s *DaySyncService) saveDeclared(ctx context.Context, record *models.DayRecord, dateKey string, data models.DaySalesView, validate bool) (models.DaySalesView, error) {
	base := record.View(models.ViewDeclared)
	base.CoeffExo = data.CoeffExo
	base.CoeffImp = data.CoeffImp

	declared, derivation := s.rates.Derive(record.View(models.ViewReal), base)
	s.warnInvalid("Sync", dateKey, derivation.InvalidFields)
	if validate {
		now := s.now()
		declared.Status = models.SyncStatusSynced
		declared.LastSyncAt = &now
	} else {
		declared.Status = models.SyncStatusDraft
	}

	if err := s.days.Put(ctx, dateKey, models.ViewDeclared, declared); err != nil {
		config.LogError(s.logger, "daySync.go", "Sync", "put declared view", dateKey, err)
		return models.DaySalesView{}, err
	}
	return declared, nil
}

// desync is a status rollback. The bank entry created by the sync stays as it is.
func (s *DaySyncService) desync(ctx context.Context, record *models.DayRecord, view models.ViewKind, dateKey string) (models.DaySalesView, error) {
	realView := record.View(models.ViewReal)
	entry, err := s.resolveBankEntry(ctx, dateKey, realView.BankEntryId)
	if err != nil {
		return models.DaySalesView{}, err
	}
	if entry != nil && entry.IsReconciled {
		return models.DaySalesView{}, &AlreadyReconciledError{Date: dateKey, EntryId: entry.ID}
	}

	current := record.View(view)
	current.Status = models.SyncStatusDraft
	current.LastSyncAt = nil
	if err := s.days.Put(ctx, dateKey, view, current); err != nil {
		config.LogError(s.logger, "daySync.go", "Sync", "put desynced view", dateKey, err)
		return models.DaySalesView{}, err
	}
	return current, nil
}

// resolveBankEntry finds the bank entry a day sync owns: first by stored id, then by
// searching the date for a CMI-tagged or marked entry that is not reconciled yet.
// Only the entry behind the stored id can come back reconciled. Returns nil when there is none.
func (s *DaySyncService) resolveBankEntry(ctx context.Context, dateKey string, bankEntryId string) (*models.BankLedgerEntry, error) {
	if bankEntryId != "" {
		entry, err := s.ledger.Get(ctx, bankEntryId)
		if err != nil {
			config.LogError(s.logger, "daySync.go", "resolveBankEntry", "get by id", bankEntryId, err)
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}
	}

	candidates, err := s.ledger.Find(ctx, models.BankLedgerQuery{Date: dateKey})
	if err != nil {
		config.LogError(s.logger, "daySync.go", "resolveBankEntry", "search by date", dateKey, err)
		return nil, err
	}
	for i := range candidates {
		c := candidates[i]
		if c.IsReconciled {
			continue
		}
		if c.Tier == models.TierCMI || strings.Contains(c.Label, SyncMarker) {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *DaySyncService) upsertBankEntry(ctx context.Context, dateKey string, bankEntryId string, mtCmi decimal.Decimal) (string, error) {
	entry, err := s.resolveBankEntry(ctx, dateKey, bankEntryId)
	if err != nil {
		return "", err
	}
	if entry != nil && entry.IsReconciled {
		return "", &AlreadyReconciledError{Date: dateKey, EntryId: entry.ID}
	}

	commission := s.rates.ComputeCommission(mtCmi)
	if entry == nil {
		entry = &models.BankLedgerEntry{
			ID:          s.newId(),
			Date:        dateKey,
			Label:       syncLabel(dateKey),
			Type:        models.EntryTypeRecette,
			Category:    "Ventes CB",
			Account:     models.AccountBanque,
			Tier:        models.TierCMI,
			PieceNumber: "CMI-" + strings.ReplaceAll(dateKey, "-", ""),
		}
	}
	entry.Amount = commission.NetBank
	entry.IsReconciled = false

	if err := s.ledger.Upsert(ctx, entry); err != nil {
		config.LogError(s.logger, "daySync.go", "upsertBankEntry", "upsert bank entry", entry, err)
		return "", err
	}
	s.logger.WithFields(logrus.Fields{
		"date":    dateKey,
		"entryId": entry.ID,
		"mtCmi":   mtCmi.String(),
		"netBank": commission.NetBank.StringFixed(2),
	}).Info("card receipts synced to bank ledger")
	return entry.ID, nil
}

func syncLabel(dateKey string) string {
	label := "Remise CMI"
	if t, err := utils.ParseDateKey(dateKey); err == nil {
		label = fmt.Sprintf("Remise CMI du %s", t.Format("02/01/2006"))
	}
	return label + " " + SyncMarker
}

// ApplyCoefficientOverride changes the declared coefficients of a day and re-derives the declared view.
// Status and sync fields of the declared view are kept.
func (s *DaySyncService) ApplyCoefficientOverride(ctx context.Context, dateKey string, coeffExo, coeffImp *string) (result models.DaySalesView, err error) {
	ctx, span := startSpan(ctx, "DaySync.ApplyCoefficientOverride", attribute.String("day.date", dateKey))
	defer func() { endSpan(span, err) }()

	if !utils.IsDateKey(dateKey) {
		return models.DaySalesView{}, ErrInvalidDate
	}
	release, err := utils.DayLock(ctx, dateKey, "daySync.go", "ApplyCoefficientOverride")
	if err != nil {
		return models.DaySalesView{}, err
	}
	defer release()

	record, err := s.days.Get(ctx, dateKey)
	if err != nil {
		config.LogError(s.logger, "daySync.go", "ApplyCoefficientOverride", "get day record", dateKey, err)
		return models.DaySalesView{}, err
	}

	declared, derivation := s.rates.ApplyCoefficientOverride(record.View(models.ViewReal), record.View(models.ViewDeclared), coeffExo, coeffImp)
	s.warnInvalid("ApplyCoefficientOverride", dateKey, derivation.InvalidFields)
	if err := s.days.Put(ctx, dateKey, models.ViewDeclared, declared); err != nil {
		config.LogError(s.logger, "daySync.go", "ApplyCoefficientOverride", "put declared view", dateKey, err)
		return models.DaySalesView{}, err
	}
	return declared, nil
}

func (s *DaySyncService) warnInvalid(funcName string, dateKey string, fields []string) {
	if len(fields) == 0 {
		return
	}
	config.LogWarning(s.logger, "daySync.go", funcName, "amounts counted as zero",
		map[string]any{"date": dateKey, "fields": fields}, ErrInvalidAmount)
}
