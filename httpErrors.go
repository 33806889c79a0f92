package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/bakery_backend/statement"
	"github.com/mmdatafocus/bakery_backend/utils"
	"github.com/mmdatafocus/bakery_backend/workflow"
)

// errBadRequest wraps malformed bodies and uploads so they map to 400.
var errBadRequest = errors.New("invalid request")

func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrAlreadyReconciled):
		return http.StatusConflict
	case errors.Is(err, utils.ErrDayBusy):
		return http.StatusLocked
	case errors.Is(err, workflow.ErrNoMatchingEntry),
		errors.Is(err, workflow.ErrEntryNotFound),
		errors.Is(err, statement.ErrSessionNotFound),
		errors.Is(err, statement.ErrUnknownSheet),
		errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, workflow.ErrInvalidAmount),
		errors.Is(err, workflow.ErrInvalidView),
		errors.Is(err, workflow.ErrInvalidDate),
		errors.Is(err, workflow.ErrInvalidMonth),
		errors.Is(err, workflow.ErrInvalidField),
		errors.Is(err, workflow.ErrInvalidAction),
		errors.Is(err, statement.ErrSheetSelectionRequired),
		errors.Is(err, statement.ErrEmptyWorkbook):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": ...}. Server errors are attached to the gin context for customErrorLogger.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// respondValidation reports validator failures as a field to tag map.
func respondValidation(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":  errBadRequest.Error(),
		"fields": utils.ProcessValidationErrors(err),
	})
}
