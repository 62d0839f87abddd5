package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresStore(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStore(mock, "snapshots; DROP TABLE x")
	require.Error(t, err)

	store, err := NewPostgresStore(mock, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTable, store.table)
}

func TestSaveInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStore(mock, "page_snapshots")
	require.NoError(t, err)

	snap := Snapshot{
		ID:          "0190c3a0-0000-7000-8000-0000000000aa",
		URL:         "https://example.com",
		FinalURL:    "https://example.com/",
		StatusCode:  200,
		Title:       "Example",
		ContentHash: "abc123",
		Bytes:       512,
		RenderedAt:  time.Unix(1700000000, 0).UTC(),
	}
	mock.ExpectExec("INSERT INTO page_snapshots").
		WithArgs(
			snap.ID,
			snap.URL,
			snap.FinalURL,
			snap.StatusCode,
			snap.Title,
			snap.ContentHash,
			snap.Bytes,
			snap.RenderedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStore(mock, "")
	require.NoError(t, err)
	require.Error(t, store.Save(context.Background(), Snapshot{URL: "https://example.com"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStore(mock, "")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO page_snapshots").WillReturnError(boom)

	err = store.Save(context.Background(), Snapshot{ID: "id"})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStore(mock, "")
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"id", "url", "final_url", "status_code", "title", "content_hash", "bytes", "rendered_at",
	}).
		AddRow("id-2", "https://b.example", "https://b.example/", 200, "B", "h2", 20, at).
		AddRow("id-1", "https://a.example", "https://a.example/", 404, "", "h1", 10, at.Add(-time.Minute))
	mock.ExpectQuery("SELECT id, url").WithArgs(DefaultLimit).WillReturnRows(rows)

	got, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "id-2", got[0].ID)
	assert.Equal(t, 404, got[1].StatusCode)
	assert.False(t, got[0].Sample)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStore(mock, "")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS page_snapshots").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultLimit, ClampLimit(-1))
	assert.Equal(t, 5, ClampLimit(5))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}
