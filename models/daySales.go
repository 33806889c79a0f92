package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExemptCategory is the only VAT-exempt sales category; every other category is taxable.
const ExemptCategory = "BOULANGERIE"

// DaySalesView is the shape of both the real and the declared view of a day.
// Amounts are decimal strings as typed by the operator; calculated values are fixed to 2 places.
type DaySalesView struct {
	Status      SyncStatus        `json:"status,omitempty"`
	LastSyncAt  *time.Time        `json:"lastSyncAt,omitempty"`
	BankEntryId string            `json:"bankEntryId,omitempty"`
	Sales       map[string]string `json:"sales"`
	Payments    Payments          `json:"payments"`
	Glovo       Glovo             `json:"glovo"`
	NbTickets   string            `json:"nbTickets"`
	CoeffExo    string            `json:"coeffExo,omitempty"`
	CoeffImp    string            `json:"coeffImp,omitempty"`
	Calculated  Calculated        `json:"calculated"`
}

type Payments struct {
	NbCmi   string `json:"nbCmi"`
	MtCmi   string `json:"mtCmi"`
	NbChq   string `json:"nbChq"`
	MtChq   string `json:"mtChq"`
	Especes string `json:"especes"`
}

// Glovo is the delivery platform settlement breakdown.
type Glovo struct {
	Brut    string `json:"brut"`
	BrutImp string `json:"brutImp"`
	BrutExo string `json:"brutExo"`
	Incid   string `json:"incid"`
	Cash    string `json:"cash"`
}

type Calculated struct {
	Exo   string `json:"exo"`
	ImpHt string `json:"impHt"`
	TotHt string `json:"totHt"`
	Ttc   string `json:"ttc"`
	Esp   string `json:"esp"`
	Cmi   string `json:"cmi"`
	Chq   string `json:"chq"`
	Glovo string `json:"glovo"`
}

// Clone returns a deep copy; views are handed around by value and must not share the sales map.
func (v DaySalesView) Clone() DaySalesView {
	out := v
	if v.Sales != nil {
		out.Sales = make(map[string]string, len(v.Sales))
		for k, amount := range v.Sales {
			out.Sales[k] = amount
		}
	}
	if v.LastSyncAt != nil {
		t := *v.LastSyncAt
		out.LastSyncAt = &t
	}
	return out
}

// DayRecord holds at most one real and one declared view for a date. Created on first write, never deleted.
type DayRecord struct {
	DateKey   string        `gorm:"primaryKey;size:10" json:"date"`
	Real      *DaySalesView `gorm:"column:real_view;type:text;serializer:json" json:"real,omitempty"`
	Declared  *DaySalesView `gorm:"column:declared_view;type:text;serializer:json" json:"declared,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// View returns a copy of the requested view, or an empty one when absent.
func (r *DayRecord) View(view ViewKind) DaySalesView {
	if r == nil {
		return DaySalesView{}
	}
	var v *DaySalesView
	if view == ViewDeclared {
		v = r.Declared
	} else {
		v = r.Real
	}
	if v == nil {
		return DaySalesView{}
	}
	return v.Clone()
}

// DayRepository is the day-indexed store. Get returns (nil, nil) for a date never written.
type DayRepository interface {
	Get(ctx context.Context, dateKey string) (*DayRecord, error)
	Put(ctx context.Context, dateKey string, view ViewKind, data DaySalesView) error
}

type dayRepository struct {
	db *gorm.DB
}

func NewDayRepository(db *gorm.DB) DayRepository {
	return &dayRepository{db: db}
}

func (r *dayRepository) Get(ctx context.Context, dateKey string) (*DayRecord, error) {
	var record DayRecord
	err := r.db.WithContext(ctx).Where("date_key = ?", dateKey).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Put overwrites one view of the record, creating the record if needed. The other view is left as is.
func (r *dayRepository) Put(ctx context.Context, dateKey string, view ViewKind, data DaySalesView) error {
	if !view.IsValid() {
		return errors.New("invalid view")
	}
	record := DayRecord{DateKey: dateKey}
	column := "real_view"
	if view == ViewDeclared {
		column = "declared_view"
		record.Declared = &data
	} else {
		record.Real = &data
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date_key"}},
		DoUpdates: clause.AssignmentColumns([]string{column, "updated_at"}),
	}).Create(&record).Error
}
