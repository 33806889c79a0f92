package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CMIJournalEntry is one manual card-processor settlement line. Amounts are kept as typed.
type CMIJournalEntry struct {
	ID         string `gorm:"primaryKey;size:64" json:"id"`
	MonthKey   string `gorm:"size:7;index;not null" json:"-"`
	Position   int    `gorm:"not null;default:0" json:"-"`
	Date       string `gorm:"size:10" json:"date"`
	Brut       string `gorm:"size:32" json:"brut"`
	Commission string `gorm:"size:32" json:"commission"`
	Tva        string `gorm:"size:32" json:"tva"`
	Net        string `gorm:"size:32" json:"net"`
}

// CMIJournalMonth marks a month as initialized, so an emptied month is not regenerated.
type CMIJournalMonth struct {
	MonthKey  string `gorm:"primaryKey;size:7"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CMIJournalRepository stores the journal one month at a time, last write wins.
type CMIJournalRepository interface {
	// GetMonth returns the entries in stored order and whether the month was ever written.
	GetMonth(ctx context.Context, monthKey string) ([]CMIJournalEntry, bool, error)
	PutMonth(ctx context.Context, monthKey string, entries []CMIJournalEntry) error
}

type cmiJournalRepository struct {
	db *gorm.DB
}

func NewCMIJournalRepository(db *gorm.DB) CMIJournalRepository {
	return &cmiJournalRepository{db: db}
}

func (r *cmiJournalRepository) GetMonth(ctx context.Context, monthKey string) ([]CMIJournalEntry, bool, error) {
	var month CMIJournalMonth
	err := r.db.WithContext(ctx).Where("month_key = ?", monthKey).First(&month).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entries []CMIJournalEntry
	err = r.db.WithContext(ctx).
		Where("month_key = ?", monthKey).
		Order("position ASC").
		Find(&entries).Error
	if err != nil {
		return nil, true, err
	}
	return entries, true, nil
}

// PutMonth replaces the whole month in one transaction.
func (r *cmiJournalRepository) PutMonth(ctx context.Context, monthKey string, entries []CMIJournalEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("month_key = ?", monthKey).Delete(&CMIJournalEntry{}).Error; err != nil {
			return err
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "month_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).Create(&CMIJournalMonth{MonthKey: monthKey}).Error
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		rows := make([]CMIJournalEntry, len(entries))
		for i, entry := range entries {
			entry.MonthKey = monthKey
			entry.Position = i
			rows[i] = entry
		}
		return tx.CreateInBatches(rows, 100).Error
	})
}
