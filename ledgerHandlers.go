package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/bakery_backend/models"
	"github.com/mmdatafocus/bakery_backend/utils"
)

type ledgerQuery struct {
	Month   string `form:"month" validate:"omitempty,monthkey"`
	Date    string `form:"date" validate:"omitempty,datekey"`
	Account string `form:"account" validate:"omitempty,oneof=Banque Caisse Coffre"`
	Tier    string `form:"tier"`
	Label   string `form:"label"`
}

// ledgerEntryRequest records a manual bank ledger line, or updates it when id is given.
type ledgerEntryRequest struct {
	ID           string `json:"id"`
	Date         string `json:"date" validate:"required,datekey"`
	Label        string `json:"label" validate:"required,max=255"`
	Amount       string `json:"amount" validate:"required,amount"`
	Type         string `json:"type" validate:"required,oneof=Depense Recette"`
	Category     string `json:"category" validate:"max=100"`
	Account      string `json:"account" validate:"required,oneof=Banque Caisse Coffre"`
	Tier         string `json:"tier" validate:"max=100"`
	PieceNumber  string `json:"pieceNumber" validate:"max=100"`
	IsReconciled bool   `json:"isReconciled"`
}

func (app *application) listLedger(c *gin.Context) {
	var q ledgerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := utils.ValidateStruct(q); err != nil {
		respondValidation(c, err)
		return
	}
	entries, err := app.ledger.Find(c.Request.Context(), models.BankLedgerQuery{
		Date:          q.Date,
		Month:         q.Month,
		Account:       models.AccountKind(q.Account),
		Tier:          q.Tier,
		LabelContains: strings.TrimSpace(q.Label),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []models.BankLedgerEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (app *application) upsertLedgerEntry(c *gin.Context) {
	var req ledgerEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondValidation(c, err)
		return
	}
	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		respondError(c, fmt.Errorf("%w: amount", errBadRequest))
		return
	}
	ctx := c.Request.Context()
	entry := &models.BankLedgerEntry{ID: req.ID}
	if req.ID != "" {
		existing, err := app.ledger.Get(ctx, req.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		if existing == nil {
			respondError(c, utils.ErrorRecordNotFound)
			return
		}
		entry = existing
	} else {
		entry.ID = uuid.NewString()
	}
	entry.Date = req.Date
	entry.Label = req.Label
	entry.Amount = utils.RoundCents(amount)
	entry.Type = models.EntryType(req.Type)
	entry.Category = req.Category
	entry.Account = models.AccountKind(req.Account)
	entry.Tier = req.Tier
	entry.PieceNumber = req.PieceNumber
	entry.IsReconciled = req.IsReconciled

	if err := app.ledger.Upsert(ctx, entry); err != nil {
		respondError(c, err)
		return
	}
	app.logger.WithField("entryId", entry.ID).WithField("operator", operatorOf(c)).Info("bank ledger entry saved")
	c.JSON(http.StatusOK, entry)
}

func operatorOf(c *gin.Context) string {
	operator, _ := utils.GetOperatorFromContext(c.Request.Context())
	return operator
}
