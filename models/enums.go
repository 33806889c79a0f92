package models

import (
	"errors"
	"strings"
)

// ViewKind selects one of the two views held by a DayRecord.
type ViewKind string

const (
	ViewReal     ViewKind = "real"
	ViewDeclared ViewKind = "declared"
)

func (v ViewKind) IsValid() bool {
	return v == ViewReal || v == ViewDeclared
}

// ParseViewKind accepts "real"/"declared" in any case.
func ParseViewKind(s string) (ViewKind, error) {
	v := ViewKind(strings.ToLower(strings.TrimSpace(s)))
	if !v.IsValid() {
		return "", errors.New("invalid view, expected real or declared")
	}
	return v, nil
}

type SyncStatus string

const (
	SyncStatusDraft  SyncStatus = "draft"
	SyncStatusSynced SyncStatus = "synced"
)

type EntryType string

const (
	EntryTypeDepense EntryType = "Depense"
	EntryTypeRecette EntryType = "Recette"
)

func (t EntryType) IsValid() bool {
	return t == EntryTypeDepense || t == EntryTypeRecette
}

type AccountKind string

const (
	AccountBanque AccountKind = "Banque"
	AccountCaisse AccountKind = "Caisse"
	AccountCoffre AccountKind = "Coffre"
)

func (a AccountKind) IsValid() bool {
	switch a {
	case AccountBanque, AccountCaisse, AccountCoffre:
		return true
	}
	return false
}
