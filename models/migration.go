package models

import (
	"log"

	"github.com/mmdatafocus/bakery_backend/config"
	"gorm.io/gorm"
)

func MigrateTable() {
	if err := AutoMigrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&DayRecord{},
		&BankLedgerEntry{},
		&CMIJournalEntry{}, &CMIJournalMonth{},
	)
}
