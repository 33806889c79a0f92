package workflow

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mmdatafocus/bakery_backend/models"
	"github.com/sirupsen/logrus"
)

// In-memory stores; tests here stay DB-free.

type memDayRepo struct {
	mu   sync.Mutex
	days map[string]*models.DayRecord
	puts int
}

func newMemDayRepo() *memDayRepo {
	return &memDayRepo{days: map[string]*models.DayRecord{}}
}

func (r *memDayRepo) Get(_ context.Context, dateKey string) (*models.DayRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.days[dateKey]
	if !ok {
		return nil, nil
	}
	out := &models.DayRecord{DateKey: dateKey}
	if rec.Real != nil {
		v := rec.Real.Clone()
		out.Real = &v
	}
	if rec.Declared != nil {
		v := rec.Declared.Clone()
		out.Declared = &v
	}
	return out, nil
}

func (r *memDayRepo) Put(_ context.Context, dateKey string, view models.ViewKind, data models.DaySalesView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.days[dateKey]
	if !ok {
		rec = &models.DayRecord{DateKey: dateKey}
		r.days[dateKey] = rec
	}
	v := data.Clone()
	if view == models.ViewDeclared {
		rec.Declared = &v
	} else {
		rec.Real = &v
	}
	r.puts++
	return nil
}

type memLedger struct {
	mu      sync.Mutex
	entries []models.BankLedgerEntry
	upserts int
}

func (l *memLedger) Get(_ context.Context, id string) (*models.BankLedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.ID == id {
			out := e
			return &out, nil
		}
	}
	return nil, nil
}

func (l *memLedger) Find(_ context.Context, q models.BankLedgerQuery) ([]models.BankLedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.BankLedgerEntry
	for _, e := range l.entries {
		if q.Date != "" && e.Date != q.Date {
			continue
		}
		if q.Month != "" && !strings.HasPrefix(e.Date, q.Month+"-") {
			continue
		}
		if q.Account != "" && e.Account != q.Account {
			continue
		}
		if q.Tier != "" && e.Tier != q.Tier {
			continue
		}
		if q.LabelContains != "" && !strings.Contains(strings.ToLower(e.Label), strings.ToLower(q.LabelContains)) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *memLedger) Upsert(_ context.Context, entry *models.BankLedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.upserts++
	for i := range l.entries {
		if l.entries[i].ID == entry.ID {
			l.entries[i] = *entry
			return nil
		}
	}
	l.entries = append(l.entries, *entry)
	return nil
}

func (l *memLedger) byDate(date string) []models.BankLedgerEntry {
	found, _ := l.Find(context.Background(), models.BankLedgerQuery{Date: date})
	return found
}

type memJournal struct {
	mu     sync.Mutex
	months map[string][]models.CMIJournalEntry
	puts   int
}

func newMemJournal() *memJournal {
	return &memJournal{months: map[string][]models.CMIJournalEntry{}}
}

func (j *memJournal) GetMonth(_ context.Context, monthKey string) ([]models.CMIJournalEntry, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entries, ok := j.months[monthKey]
	if !ok {
		return nil, false, nil
	}
	return append([]models.CMIJournalEntry(nil), entries...), true, nil
}

func (j *memJournal) PutMonth(_ context.Context, monthKey string, entries []models.CMIJournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.months[monthKey] = append([]models.CMIJournalEntry{}, entries...)
	j.puts++
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func sequentialIds(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 3, 5, 20, 30, 0, 0, time.UTC)
	return func() time.Time { return t }
}
