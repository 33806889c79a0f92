package statement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/bakery_backend/config"
	"github.com/sirupsen/logrus"
)

// Service drives the import, sheet selection, compression and export of one statement file.
type Service struct {
	store  SessionStore
	logger *logrus.Logger
	now    func() time.Time
	newId  func() string
}

func NewService(store SessionStore, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Service{store: store, logger: logger, now: time.Now, newId: uuid.NewString}
}

// Import opens the file and starts a session. A single-sheet workbook is loaded
// right away; otherwise the caller must pick a sheet.
func (s *Service) Import(ctx context.Context, fileName string, data []byte) (*Session, error) {
	wb, err := OpenWorkbook(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	session := &Session{
		ID:        s.newId(),
		FileName:  fileName,
		Sheets:    wb.Sheets(),
		Workbook:  data,
		CreatedAt: s.now(),
	}
	if sheet, err := wb.AutoSelect(); err == nil {
		st, err := wb.Load(sheet)
		if err != nil {
			return nil, err
		}
		session.Statement = st
	}
	if err := s.store.Save(ctx, session); err != nil {
		config.LogError(s.logger, "statement", "Import", "save session", fileName, err)
		return nil, err
	}
	return session, nil
}

// SelectSheet loads the named sheet and drops any previous compression.
func (s *Service) SelectSheet(ctx context.Context, sessionId, sheet string) (*Session, error) {
	session, err := s.store.Load(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	wb, err := OpenWorkbook(bytes.NewReader(session.Workbook))
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	st, err := wb.Load(sheet)
	if err != nil {
		return nil, err
	}
	session.Statement = st
	session.Compressed = false
	session.Stats = nil
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) loaded(ctx context.Context, sessionId string) (*Session, error) {
	session, err := s.store.Load(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.Statement == nil {
		return nil, ErrSheetSelectionRequired
	}
	return session, nil
}

// Compress merges the TPE lines of the loaded sheet. Compressing twice is a no-op on merged lines.
func (s *Service) Compress(ctx context.Context, sessionId string) (*Session, error) {
	session, err := s.loaded(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	out, stats := Compress(session.Statement)
	if stats.UnparsableAmounts > 0 {
		config.LogWarning(s.logger, "statement", "Compress", "amounts counted as zero", stats,
			fmt.Errorf("%w: %d cell(s)", ErrUnparsableAmount, stats.UnparsableAmounts))
	}
	if stats.UnparsableDates > 0 {
		config.LogWarning(s.logger, "statement", "Compress", "rows sorted as epoch", stats,
			fmt.Errorf("%w: %d row(s)", ErrUnparsableDate, stats.UnparsableDates))
	}
	session.Statement = out
	session.Compressed = true
	session.Stats = &stats
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Export writes the current statement and ends the session.
func (s *Service) Export(ctx context.Context, sessionId string, w io.Writer) (*Session, error) {
	session, err := s.loaded(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if err := Export(session.Statement, w); err != nil {
		config.LogError(s.logger, "statement", "Export", "write workbook", sessionId, err)
		return nil, err
	}
	if err := s.store.Delete(ctx, sessionId); err != nil {
		config.LogWarning(s.logger, "statement", "Export", "delete session", sessionId, err)
	}
	return session, nil
}

func (s *Service) Discard(ctx context.Context, sessionId string) error {
	if _, err := s.store.Load(ctx, sessionId); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	return s.store.Delete(ctx, sessionId)
}

// ExportFileName is the download name of the exported statement.
func ExportFileName(session *Session) string {
	name := session.FileName
	if n := len(name); n > 5 && (name[n-5:] == ".xlsx" || name[n-5:] == ".XLSX") {
		name = name[:n-5]
	}
	if name == "" {
		name = "releve"
	}
	if session.Compressed {
		return name + "_compresse.xlsx"
	}
	return name + ".xlsx"
}
