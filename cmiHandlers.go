package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/mmdatafocus/bakery_backend/workflow"
)

type monthParams struct {
	Month string `validate:"monthkey"`
}

type updateEntryRequest struct {
	Field string `json:"field" validate:"required,oneof=date brut commission tva"`
	Value string `json:"value"`
}

type addRowRequest struct {
	Date string `json:"date" validate:"omitempty,datekey"`
}

type reconcileRequest struct {
	CMINet string `json:"cmiNet" validate:"required,amount"`
}

func bindMonth(c *gin.Context) (string, bool) {
	params := monthParams{Month: c.Param("month")}
	if err := utils.ValidateStruct(params); err != nil {
		respondValidation(c, err)
		return "", false
	}
	return params.Month, true
}

// listJournal creates the month on first access and returns its entries.
func (app *application) listJournal(c *gin.Context) {
	monthKey, ok := bindMonth(c)
	if !ok {
		return
	}
	entries, err := app.journal.ListMonth(c.Request.Context(), monthKey)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"month": monthKey, "entries": entries})
}

func (app *application) updateJournalEntry(c *gin.Context) {
	monthKey, ok := bindMonth(c)
	if !ok {
		return
	}
	var req updateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondValidation(c, err)
		return
	}
	entry, err := app.journal.UpdateEntry(c.Request.Context(), monthKey, c.Param("id"), workflow.JournalField(req.Field), req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (app *application) addJournalRow(c *gin.Context) {
	monthKey, ok := bindMonth(c)
	if !ok {
		return
	}
	var req addRowRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondValidation(c, err)
		return
	}
	entry, err := app.journal.AddRow(c.Request.Context(), monthKey, req.Date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (app *application) removeJournalRow(c *gin.Context) {
	monthKey, ok := bindMonth(c)
	if !ok {
		return
	}
	if err := app.journal.RemoveRow(c.Request.Context(), monthKey, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (app *application) reconciliationView(c *gin.Context) {
	monthKey, ok := bindMonth(c)
	if !ok {
		return
	}
	rows, err := app.reconciler.BuildView(c.Request.Context(), monthKey)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"month": monthKey, "rows": rows})
}

func (app *application) reconcile(c *gin.Context) {
	params := dayParams{Date: c.Param("date")}
	if err := utils.ValidateStruct(params); err != nil {
		respondValidation(c, err)
		return
	}
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondValidation(c, err)
		return
	}
	net, err := utils.ParseAmount(req.CMINet)
	if err != nil {
		respondError(c, workflow.ErrInvalidAmount)
		return
	}
	if err := app.reconciler.Reconcile(c.Request.Context(), params.Date, net); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":         params.Date,
		"amount":       utils.FormatAmount(net),
		"isReconciled": app.reconciler.IsReconciled(params.Date),
	})
}
