package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/bakery_backend/models"
	"github.com/mmdatafocus/bakery_backend/statement"
	"github.com/mmdatafocus/bakery_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T, ready bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatal(err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := newApplication(db, statement.NewMemorySessionStore(time.Hour), workflow.DefaultRates(), logger)
	var flag atomic.Bool
	flag.Store(ready)
	return newRouter(app, &flag, logger)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			payload, err := json.Marshal(b)
			if err != nil {
				t.Fatal(err)
			}
			reader = bytes.NewReader(payload)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthAndReadiness(t *testing.T) {
	r := newTestServer(t, false)
	if w := doJSON(t, r, http.MethodGet, "/healthz", nil); w.Code != http.StatusNoContent {
		t.Fatalf("healthz: got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/days/2024-03-05", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready: got %d", w.Code)
	}

	ready := newTestServer(t, true)
	w := doJSON(t, ready, http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown route: got %d", w.Code)
	}
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Errorf("correlation id header missing")
	}
}

func TestDayRoutesRejectBadInput(t *testing.T) {
	r := newTestServer(t, true)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"bad date", http.MethodGet, "/days/2024-13-40", nil},
		{"bad view", http.MethodPut, "/days/2024-03-05/fiscal/draft", map[string]any{}},
		{"bad body", http.MethodPut, "/days/2024-03-05/real/draft", "{"},
		{"bad coefficient", http.MethodPut, "/days/2024-03-05/coefficients", map[string]any{"coeffImp": "beaucoup"}},
		{"bad month", http.MethodGet, "/cmi-journal/2024-3", nil},
		{"bad ledger filter", http.MethodGet, "/bank-ledger?account=Tirelire", nil},
	}
	for _, tt := range tests {
		w := doJSON(t, r, tt.method, tt.path, tt.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d %s", tt.name, w.Code, w.Body.String())
		}
	}
}

func TestDaySyncOverHTTP(t *testing.T) {
	r := newTestServer(t, true)
	const date = "2024-03-05"
	realView := map[string]any{
		"sales":     map[string]string{"BOULANGERIE": "1000.00"},
		"payments":  map[string]string{"mtCmi": "1000"},
		"nbTickets": "10",
	}

	w := doJSON(t, r, http.MethodPut, "/days/"+date+"/real/draft", realView)
	if w.Code != http.StatusOK {
		t.Fatalf("draft: got %d %s", w.Code, w.Body.String())
	}
	if got := decode[models.DaySalesView](t, w); got.Status != models.SyncStatusDraft {
		t.Fatalf("draft status = %q", got.Status)
	}

	w = doJSON(t, r, http.MethodPost, "/days/"+date+"/real/sync", realView)
	if w.Code != http.StatusOK {
		t.Fatalf("sync: got %d %s", w.Code, w.Body.String())
	}
	synced := decode[models.DaySalesView](t, w)
	if synced.Status != models.SyncStatusSynced || synced.BankEntryId == "" {
		t.Fatalf("sync result = %+v", synced)
	}

	w = doJSON(t, r, http.MethodGet, "/bank-ledger?date="+date, nil)
	ledger := decode[struct {
		Entries []models.BankLedgerEntry `json:"entries"`
	}](t, w)
	if len(ledger.Entries) != 1 {
		t.Fatalf("expected one bank entry, got %d", len(ledger.Entries))
	}
	entry := ledger.Entries[0]
	if !entry.Amount.Equal(decimal.RequireFromString("989")) || entry.ID != synced.BankEntryId {
		t.Fatalf("bank entry = %+v", entry)
	}

	w = doJSON(t, r, http.MethodGet, "/days/"+date, nil)
	day := decode[dayResponse](t, w)
	if day.Declared.Calculated.Exo != "1110.00" {
		t.Errorf("declared exo = %q", day.Declared.Calculated.Exo)
	}

	// manual pointing of the bank line
	w = doJSON(t, r, http.MethodPost, "/bank-ledger", map[string]any{
		"id": entry.ID, "date": date, "label": entry.Label, "amount": "989.00",
		"type": "Recette", "account": "Banque", "tier": "CMI", "isReconciled": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("pointing: got %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/days/"+date+"/real/desync", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("desync of reconciled day: got %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "already reconciled") {
		t.Errorf("error body = %s", w.Body.String())
	}
}

func TestSyncNextToPointedEntryOverHTTP(t *testing.T) {
	r := newTestServer(t, true)
	const date = "2024-03-06"
	w := doJSON(t, r, http.MethodPost, "/bank-ledger", map[string]any{
		"date": date, "label": "Remise CMI", "amount": "950.00",
		"type": "Recette", "account": "Banque", "tier": "CMI", "isReconciled": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("pointed entry: got %d %s", w.Code, w.Body.String())
	}
	pointed := decode[models.BankLedgerEntry](t, w)

	w = doJSON(t, r, http.MethodPost, "/days/"+date+"/real/sync", map[string]any{
		"sales":    map[string]string{"BOULANGERIE": "1000.00"},
		"payments": map[string]string{"mtCmi": "1000"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("sync of a fresh day: got %d %s", w.Code, w.Body.String())
	}
	synced := decode[models.DaySalesView](t, w)
	if synced.BankEntryId == "" || synced.BankEntryId == pointed.ID {
		t.Fatalf("bankEntryId = %q", synced.BankEntryId)
	}

	ledger := decode[struct {
		Entries []models.BankLedgerEntry `json:"entries"`
	}](t, doJSON(t, r, http.MethodGet, "/bank-ledger?date="+date, nil))
	if len(ledger.Entries) != 2 {
		t.Fatalf("expected the pointed entry and a new one, got %d", len(ledger.Entries))
	}
	for _, e := range ledger.Entries {
		if e.ID == pointed.ID && (!e.IsReconciled || !e.Amount.Equal(decimal.RequireFromString("950"))) {
			t.Fatalf("pointed entry changed: %+v", e)
		}
	}
}

func TestCoefficientOverrideAndDerive(t *testing.T) {
	r := newTestServer(t, true)
	realView := map[string]any{
		"sales":     map[string]string{"BOULANGERIE": "1000.00", "VIENNOISERIE": "500.00"},
		"nbTickets": "100",
		"payments":  map[string]string{"mtCmi": "1000"},
	}

	w := doJSON(t, r, http.MethodPost, "/derive", map[string]any{"real": realView})
	if w.Code != http.StatusOK {
		t.Fatalf("derive: got %d %s", w.Code, w.Body.String())
	}
	preview := decode[struct {
		Declared   models.DaySalesView `json:"declared"`
		Commission workflow.Commission `json:"commission"`
	}](t, w)
	if preview.Declared.Calculated.Ttc != "1410.00" || preview.Declared.NbTickets != "60" {
		t.Errorf("derive = %+v", preview.Declared.Calculated)
	}
	if !preview.Commission.NetBank.Equal(decimal.RequireFromString("989")) {
		t.Errorf("commission = %+v", preview.Commission)
	}

	if w := doJSON(t, r, http.MethodPut, "/days/2024-03-05/real/draft", realView); w.Code != http.StatusOK {
		t.Fatalf("draft: got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPut, "/days/2024-03-05/coefficients", map[string]any{"coeffImp": "0.80"})
	if w.Code != http.StatusOK {
		t.Fatalf("override: got %d %s", w.Code, w.Body.String())
	}
	if got := decode[models.DaySalesView](t, w); got.Calculated.Ttc != "1510.00" || got.CoeffImp != "0.80" {
		t.Errorf("override = %+v", got)
	}
}

type reconciliationBody struct {
	Rows []struct {
		Date          string          `json:"date"`
		IsReconciled  bool            `json:"isReconciled"`
		DisplayAmount decimal.Decimal `json:"displayAmount"`
	} `json:"rows"`
}

func TestCMIJournalAndReconciliationOverHTTP(t *testing.T) {
	r := newTestServer(t, true)

	w := doJSON(t, r, http.MethodGet, "/cmi-journal/2024-02", nil)
	journal := decode[struct {
		Entries []models.CMIJournalEntry `json:"entries"`
	}](t, w)
	if len(journal.Entries) != 29 {
		t.Fatalf("february 2024 has 29 rows, got %d", len(journal.Entries))
	}
	target := journal.Entries[4]
	if target.Date != "2024-02-05" {
		t.Fatalf("row 4 date = %s", target.Date)
	}
	for _, step := range []struct{ field, value string }{{"brut", "1000"}, {"commission", "10"}, {"tva", "1"}} {
		w = doJSON(t, r, http.MethodPatch, "/cmi-journal/2024-02/entries/"+target.ID, map[string]string{"field": step.field, "value": step.value})
		if w.Code != http.StatusOK {
			t.Fatalf("patch %s: got %d %s", step.field, w.Code, w.Body.String())
		}
	}
	if got := decode[models.CMIJournalEntry](t, w); got.Net != "989.00" {
		t.Fatalf("net = %s", got.Net)
	}
	if w := doJSON(t, r, http.MethodPatch, "/cmi-journal/2024-02/entries/"+target.ID, map[string]string{"field": "net", "value": "1"}); w.Code != http.StatusBadRequest {
		t.Errorf("net is not editable: got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/bank-ledger", map[string]any{
		"date": "2024-02-05", "label": "VIR REMISE CMI", "amount": "950", "type": "Recette", "account": "Banque", "tier": "CMI",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("ledger entry: got %d %s", w.Code, w.Body.String())
	}

	view := decode[reconciliationBody](t, doJSON(t, r, http.MethodGet, "/reconciliation/2024-02", nil))
	if len(view.Rows) != 1 || view.Rows[0].IsReconciled || !view.Rows[0].DisplayAmount.Equal(decimal.NewFromInt(950)) {
		t.Fatalf("before reconcile = %+v", view.Rows)
	}

	w = doJSON(t, r, http.MethodPost, "/reconciliation/2024-02-05", map[string]string{"cmiNet": "989,00"})
	if w.Code != http.StatusOK {
		t.Fatalf("reconcile: got %d %s", w.Code, w.Body.String())
	}

	view = decode[reconciliationBody](t, doJSON(t, r, http.MethodGet, "/reconciliation/2024-02", nil))
	if len(view.Rows) != 1 || !view.Rows[0].IsReconciled || !view.Rows[0].DisplayAmount.Equal(decimal.NewFromInt(989)) {
		t.Fatalf("after reconcile = %+v", view.Rows)
	}

	if w := doJSON(t, r, http.MethodPost, "/reconciliation/2024-02-06", map[string]string{"cmiNet": "10"}); w.Code != http.StatusNotFound {
		t.Errorf("no bank entry: got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/reconciliation/2024-02-05", map[string]string{"cmiNet": "abc"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad net: got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/cmi-journal/2024-02/entries", map[string]string{"date": "2024-02-05"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add row: got %d %s", w.Code, w.Body.String())
	}
	added := decode[models.CMIJournalEntry](t, w)
	if w := doJSON(t, r, http.MethodDelete, "/cmi-journal/2024-02/entries/"+added.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("remove row: got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/cmi-journal/2024-02/entries/"+added.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("remove twice: got %d", w.Code)
	}
}

func uploadRequest(t *testing.T, fileName string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/statements", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func statementWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"Date", "Libellé", "Crédit"},
		{"05/03/2024", "PAIEMENT TPE 04/03/24 123456789", "10,00"},
		{"05/03/2024", "PAIEMENT TPE 04/03/24 123456789", "2,50"},
		{"05/03/2024", "VIREMENT RECU", "100,00"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestStatementFlowOverHTTP(t *testing.T) {
	r := newTestServer(t, true)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "mars.xlsx", statementWorkbook(t)))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: got %d %s", w.Code, w.Body.String())
	}
	session := decode[sessionResponse](t, w)
	if session.Statement == nil || len(session.Statement.Rows) != 3 {
		t.Fatalf("imported session = %+v", session)
	}

	w = doJSON(t, r, http.MethodPost, "/statements/"+session.ID+"/compress", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("compress: got %d %s", w.Code, w.Body.String())
	}
	compressed := decode[sessionResponse](t, w)
	if compressed.Stats == nil || compressed.Stats.Groups != 1 || len(compressed.Statement.Rows) != 2 {
		t.Fatalf("compressed = %+v", compressed)
	}

	w = doJSON(t, r, http.MethodGet, "/statements/"+session.ID+"/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: got %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("content type = %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "mars_compresse.xlsx") {
		t.Errorf("content disposition = %s", cd)
	}
	if _, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes())); err != nil {
		t.Fatalf("exported file unreadable: %v", err)
	}

	if w := doJSON(t, r, http.MethodGet, "/statements/"+session.ID+"/export", nil); w.Code != http.StatusNotFound {
		t.Errorf("session must end after export: got %d", w.Code)
	}

	bad := httptest.NewRecorder()
	r.ServeHTTP(bad, uploadRequest(t, "notes.txt", []byte("hello")))
	if bad.Code != http.StatusBadRequest {
		t.Errorf("garbage upload: got %d", bad.Code)
	}
}
