package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/bakery_backend/statement"
)

const (
	maxStatementSize = 20 << 20
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type selectSheetRequest struct {
	Sheet string `json:"sheet" binding:"required"`
}

type sessionResponse struct {
	ID         string                   `json:"id"`
	FileName   string                   `json:"fileName"`
	Sheets     []string                 `json:"sheets"`
	Statement  *statement.Statement     `json:"statement,omitempty"`
	Compressed bool                     `json:"compressed"`
	Stats      *statement.CompressStats `json:"stats,omitempty"`
}

func toSessionResponse(s *statement.Session) sessionResponse {
	return sessionResponse{
		ID:         s.ID,
		FileName:   s.FileName,
		Sheets:     s.Sheets,
		Statement:  s.Statement,
		Compressed: s.Compressed,
		Stats:      s.Stats,
	}
}

func (app *application) importStatement(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		respondError(c, fmt.Errorf("%w: file is required", errBadRequest))
		return
	}
	if header.Size > maxStatementSize {
		respondError(c, fmt.Errorf("%w: file too large", errBadRequest))
		return
	}
	file, err := header.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxStatementSize))
	if err != nil {
		respondError(c, err)
		return
	}

	session, err := app.statements.Import(c.Request.Context(), header.Filename, data)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			// excelize could not read the upload
			err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(session))
}

func (app *application) selectStatementSheet(c *gin.Context) {
	var req selectSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	session, err := app.statements.SelectSheet(c.Request.Context(), c.Param("session"), req.Sheet)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

func (app *application) compressStatement(c *gin.Context) {
	session, err := app.statements.Compress(c.Request.Context(), c.Param("session"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

func (app *application) exportStatement(c *gin.Context) {
	var buf bytes.Buffer
	session, err := app.statements.Export(c.Request.Context(), c.Param("session"), &buf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", statement.ExportFileName(session)))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (app *application) discardStatement(c *gin.Context) {
	if err := app.statements.Discard(c.Request.Context(), c.Param("session")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
