package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TierCMI is the counterparty tag of card processor settlements.
const TierCMI = "CMI"

type BankLedgerEntry struct {
	ID           string          `gorm:"primaryKey;size:64" json:"id"`
	Date         string          `gorm:"size:10;index;not null" json:"date"`
	Label        string          `gorm:"size:255" json:"label"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Type         EntryType       `gorm:"size:20;not null" json:"type"`
	Category     string          `gorm:"size:100" json:"category"`
	Account      AccountKind     `gorm:"size:20;index" json:"account"`
	Tier         string          `gorm:"size:100;index" json:"tier"`
	PieceNumber  string          `gorm:"size:100" json:"pieceNumber"`
	IsReconciled bool            `gorm:"not null;default:false" json:"isReconciled"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// IsCMISettlement matches bank-account entries tagged CMI or whose label mentions cmi.
func (e BankLedgerEntry) IsCMISettlement() bool {
	if e.Account != AccountBanque {
		return false
	}
	return e.Tier == TierCMI || strings.Contains(strings.ToLower(e.Label), "cmi")
}

// BankLedgerQuery filters are ANDed; empty fields are ignored.
type BankLedgerQuery struct {
	Date          string
	Month         string
	Account       AccountKind
	Tier          string
	LabelContains string
}

// BankLedgerRepository is the flat bank ledger. Get returns (nil, nil) for an unknown id.
// Find orders by date then creation time.
type BankLedgerRepository interface {
	Get(ctx context.Context, id string) (*BankLedgerEntry, error)
	Find(ctx context.Context, query BankLedgerQuery) ([]BankLedgerEntry, error)
	Upsert(ctx context.Context, entry *BankLedgerEntry) error
}

type bankLedgerRepository struct {
	db *gorm.DB
}

func NewBankLedgerRepository(db *gorm.DB) BankLedgerRepository {
	return &bankLedgerRepository{db: db}
}

func (r *bankLedgerRepository) Get(ctx context.Context, id string) (*BankLedgerEntry, error) {
	if id == "" {
		return nil, nil
	}
	var entry BankLedgerEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *bankLedgerRepository) Find(ctx context.Context, query BankLedgerQuery) ([]BankLedgerEntry, error) {
	dbCtx := r.db.WithContext(ctx).Model(&BankLedgerEntry{})
	if query.Date != "" {
		dbCtx = dbCtx.Where("date = ?", query.Date)
	}
	if query.Month != "" {
		dbCtx = dbCtx.Where("date LIKE ?", query.Month+"-%")
	}
	if query.Account != "" {
		dbCtx = dbCtx.Where("account = ?", query.Account)
	}
	if query.Tier != "" {
		dbCtx = dbCtx.Where("tier = ?", query.Tier)
	}
	if query.LabelContains != "" {
		dbCtx = dbCtx.Where("LOWER(label) LIKE ?", "%"+strings.ToLower(query.LabelContains)+"%")
	}

	var entries []BankLedgerEntry
	if err := dbCtx.Order("date ASC").Order("created_at ASC").Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *bankLedgerRepository) Upsert(ctx context.Context, entry *BankLedgerEntry) error {
	if entry == nil || entry.ID == "" {
		return errors.New("bank ledger entry requires an id")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(entry).Error
}
