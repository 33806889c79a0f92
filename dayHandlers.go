package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/bakery_backend/models"
	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/mmdatafocus/bakery_backend/workflow"
)

type dayParams struct {
	Date string `validate:"datekey"`
	View string `validate:"omitempty,oneof=real declared"`
}

type coefficientRequest struct {
	CoeffExo *string `json:"coeffExo" validate:"omitempty,amount"`
	CoeffImp *string `json:"coeffImp" validate:"omitempty,amount"`
}

type deriveRequest struct {
	Real         models.DaySalesView `json:"real"`
	DeclaredBase models.DaySalesView `json:"declaredBase"`
}

type dayResponse struct {
	Date     string              `json:"date"`
	Real     models.DaySalesView `json:"real"`
	Declared models.DaySalesView `json:"declared"`
}

func bindDayParams(c *gin.Context) (dayParams, bool) {
	params := dayParams{Date: c.Param("date"), View: c.Param("view")}
	if err := utils.ValidateStruct(params); err != nil {
		respondValidation(c, err)
		return params, false
	}
	return params, true
}

func (app *application) getDay(c *gin.Context) {
	params, ok := bindDayParams(c)
	if !ok {
		return
	}
	record, err := app.days.GetDay(c.Request.Context(), params.Date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dayResponse{
		Date:     params.Date,
		Real:     record.View(models.ViewReal),
		Declared: record.View(models.ViewDeclared),
	})
}

// syncDay handles draft, sync and desync of one view.
func (app *application) syncDay(action workflow.SyncAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		params, ok := bindDayParams(c)
		if !ok {
			return
		}
		var data models.DaySalesView
		if action != workflow.SyncActionDesync {
			if err := c.ShouldBindJSON(&data); err != nil {
				respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
				return
			}
		}
		view, err := models.ParseViewKind(params.View)
		if err != nil {
			respondError(c, workflow.ErrInvalidView)
			return
		}
		result, err := app.days.Sync(c.Request.Context(), action, view, params.Date, data)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (app *application) overrideCoefficients(c *gin.Context) {
	params, ok := bindDayParams(c)
	if !ok {
		return
	}
	var req coefficientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondValidation(c, err)
		return
	}
	result, err := app.days.ApplyCoefficientOverride(c.Request.Context(), params.Date, req.CoeffExo, req.CoeffImp)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// derive previews the declared view of a real view without storing anything.
func (app *application) derive(c *gin.Context) {
	var req deriveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	rates := app.days.Rates()
	declared, breakdown := rates.Derive(req.Real, req.DeclaredBase)
	commission := rates.ComputeCommission(utils.AmountOrZero(req.Real.Payments.MtCmi))
	c.JSON(http.StatusOK, gin.H{
		"declared":   declared,
		"derivation": breakdown,
		"commission": commission,
	})
}
