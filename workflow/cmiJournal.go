package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/bakery_backend/config"
	"github.com/mmdatafocus/bakery_backend/models"
	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type JournalField string

const (
	JournalFieldDate       JournalField = "date"
	JournalFieldBrut       JournalField = "brut"
	JournalFieldCommission JournalField = "commission"
	JournalFieldTva        JournalField = "tva"
)

func (f JournalField) IsValid() bool {
	switch f {
	case JournalFieldDate, JournalFieldBrut, JournalFieldCommission, JournalFieldTva:
		return true
	}
	return false
}

// ComputeNet is brut - commission - tva, unparsable input counting as zero.
func ComputeNet(brut, commission, tva string) string {
	net := utils.AmountOrZero(brut).Sub(utils.AmountOrZero(commission)).Sub(utils.AmountOrZero(tva))
	return utils.FormatAmount(net)
}

// CMIJournalService edits the month-scoped card processor journal.
// Every mutation writes the whole month back.
type CMIJournalService struct {
	repo   models.CMIJournalRepository
	logger *logrus.Logger
	newId  func() string
}

func NewCMIJournalService(repo models.CMIJournalRepository, logger *logrus.Logger) *CMIJournalService {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &CMIJournalService{repo: repo, logger: logger, newId: uuid.NewString}
}

// EnsureMonth creates one empty row per calendar day the first time a month is opened.
// A month already written is returned as stored, even if it has since been emptied.
func (s *CMIJournalService) EnsureMonth(ctx context.Context, year int, month time.Month) (entries []models.CMIJournalEntry, err error) {
	monthKey := utils.MonthKey(year, month)
	ctx, span := startSpan(ctx, "CMIJournal.EnsureMonth", attribute.String("cmi.month", monthKey))
	defer func() { endSpan(span, err) }()

	entries, exists, err := s.repo.GetMonth(ctx, monthKey)
	if err != nil {
		config.LogError(s.logger, "cmiJournal.go", "EnsureMonth", "get month", monthKey, err)
		return nil, err
	}
	if exists {
		return entries, nil
	}

	dates := utils.MonthDateKeys(year, month)
	entries = make([]models.CMIJournalEntry, 0, len(dates))
	for _, date := range dates {
		entries = append(entries, models.CMIJournalEntry{
			ID:       s.newId(),
			MonthKey: monthKey,
			Date:     date,
			Net:      "0.00",
		})
	}
	if err := s.repo.PutMonth(ctx, monthKey, entries); err != nil {
		config.LogError(s.logger, "cmiJournal.go", "EnsureMonth", "put month", monthKey, err)
		return nil, err
	}
	return entries, nil
}

// ListMonth is EnsureMonth addressed by "YYYY-MM".
func (s *CMIJournalService) ListMonth(ctx context.Context, monthKey string) ([]models.CMIJournalEntry, error) {
	year, month, err := utils.ParseMonthKey(monthKey)
	if err != nil {
		return nil, ErrInvalidMonth
	}
	return s.EnsureMonth(ctx, year, month)
}

// UpdateEntry sets one field of a row. Changing brut, commission or tva recomputes net.
func (s *CMIJournalService) UpdateEntry(ctx context.Context, monthKey string, id string, field JournalField, value string) (*models.CMIJournalEntry, error) {
	if !field.IsValid() {
		return nil, ErrInvalidField
	}
	if field == JournalFieldDate && value != "" && !utils.IsDateKey(value) {
		return nil, ErrInvalidDate
	}
	entries, err := s.ListMonth(ctx, monthKey)
	if err != nil {
		return nil, err
	}

	idx := indexOfEntry(entries, id)
	if idx < 0 {
		return nil, ErrEntryNotFound
	}
	entry := &entries[idx]
	switch field {
	case JournalFieldDate:
		entry.Date = value
	case JournalFieldBrut:
		entry.Brut = value
	case JournalFieldCommission:
		entry.Commission = value
	case JournalFieldTva:
		entry.Tva = value
	}
	if field != JournalFieldDate {
		if _, perr := utils.ParseAmount(value); perr != nil {
			config.LogWarning(s.logger, "cmiJournal.go", "UpdateEntry", "value counted as zero in net",
				map[string]string{"id": id, "field": string(field), "value": value}, ErrInvalidAmount)
		}
		entry.Net = ComputeNet(entry.Brut, entry.Commission, entry.Tva)
	}

	if err := s.repo.PutMonth(ctx, monthKey, entries); err != nil {
		config.LogError(s.logger, "cmiJournal.go", "UpdateEntry", "put month", monthKey, err)
		return nil, err
	}
	updated := *entry
	return &updated, nil
}

// AddRow appends a free-form row; several settlements on one day are allowed.
func (s *CMIJournalService) AddRow(ctx context.Context, monthKey string, date string) (*models.CMIJournalEntry, error) {
	if date != "" && !utils.IsDateKey(date) {
		return nil, ErrInvalidDate
	}
	entries, err := s.ListMonth(ctx, monthKey)
	if err != nil {
		return nil, err
	}
	entry := models.CMIJournalEntry{
		ID:       s.newId(),
		MonthKey: monthKey,
		Date:     date,
		Net:      "0.00",
	}
	entries = append(entries, entry)
	if err := s.repo.PutMonth(ctx, monthKey, entries); err != nil {
		config.LogError(s.logger, "cmiJournal.go", "AddRow", "put month", monthKey, err)
		return nil, err
	}
	return &entry, nil
}

// RemoveRow deletes a row unconditionally.
func (s *CMIJournalService) RemoveRow(ctx context.Context, monthKey string, id string) error {
	entries, err := s.ListMonth(ctx, monthKey)
	if err != nil {
		return err
	}
	idx := indexOfEntry(entries, id)
	if idx < 0 {
		return ErrEntryNotFound
	}
	entries = append(entries[:idx], entries[idx+1:]...)
	if err := s.repo.PutMonth(ctx, monthKey, entries); err != nil {
		config.LogError(s.logger, "cmiJournal.go", "RemoveRow", "put month", monthKey, err)
		return err
	}
	return nil
}

func indexOfEntry(entries []models.CMIJournalEntry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}
