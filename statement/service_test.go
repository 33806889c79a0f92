package statement

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestMemorySessionStoreExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore(time.Hour)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, &Session{ID: "s1"}))
	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)

	now = now.Add(2 * time.Hour)
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestServiceSingleSheetFlow(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(time.Hour)
	svc := NewService(store, quietLogger())

	session, err := svc.Import(ctx, "mars.xlsx", buildStatementFile(t))
	require.NoError(t, err)
	require.NotNil(t, session.Statement)
	assert.Equal(t, []string{"Sheet1"}, session.Sheets)

	session, err = svc.Compress(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, session.Compressed)
	require.NotNil(t, session.Stats)
	assert.Equal(t, 1, session.Stats.Groups)
	assert.Equal(t, "mars_compresse.xlsx", ExportFileName(session))

	var buf bytes.Buffer
	_, err = svc.Export(ctx, session.ID, &buf)
	require.NoError(t, err)
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	_, err = store.Load(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound, "export ends the session")
}

func TestServiceRequiresSheetSelection(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemorySessionStore(time.Hour), quietLogger())

	session, err := svc.Import(ctx, "releve.xlsx", buildStatementFile(t, "Avril"))
	require.NoError(t, err)
	assert.Nil(t, session.Statement)

	_, err = svc.Compress(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSheetSelectionRequired)

	_, err = svc.SelectSheet(ctx, session.ID, "Inconnue")
	assert.ErrorIs(t, err, ErrUnknownSheet)

	session, err = svc.SelectSheet(ctx, session.ID, "Sheet1")
	require.NoError(t, err)
	require.NotNil(t, session.Statement)
	assert.Len(t, session.Statement.Rows, 2)
	assert.Equal(t, "releve.xlsx", ExportFileName(session))

	require.NoError(t, svc.Discard(ctx, session.ID))
	require.NoError(t, svc.Discard(ctx, session.ID))
	_, err = svc.Compress(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if os.Getenv("INTEGRATION_TESTS") == "" || addr == "" {
		t.Skip("set INTEGRATION_TESTS and REDIS_ADDRESS to run against redis")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	store := NewRedisSessionStore(client, time.Minute)

	session := &Session{ID: "test-" + t.Name(), FileName: "mars.xlsx", Statement: sampleStatement()}
	require.NoError(t, store.Save(ctx, session))
	defer store.Delete(ctx, session.ID)

	got, err := store.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Statement.Headers, got.Statement.Headers)
	assert.Equal(t, "PAIEMENT TPE 04/03/24 123456789 CB", got.Statement.Rows[0]["Libellé"].Text)

	require.NoError(t, store.Delete(ctx, session.ID))
	_, err = store.Load(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
