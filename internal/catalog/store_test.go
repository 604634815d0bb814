package catalog

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreMock(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
	}
	return NewStore(sqlxDB), mock, cleanup
}

var testKey = Key{Grade: 9, Subject: "Физика", Category: "Конспекты", Topic: "Законы Ньютона"}

func TestRegisterUserIdempotentUpsert(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"telegram_id", "username", "first_name", "role", "joined_at"}).
		AddRow(int64(42), "vasya", "Вася", RoleStudent, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(int64(42), "vasya", "Вася").
		WillReturnRows(rows)

	u, err := store.RegisterUser(context.Background(), 42, "vasya", "Вася")
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.TelegramID)
	assert.Equal(t, RoleStudent, u.Role)
	assert.False(t, u.IsAdmin())
}

func TestListMaterialsEmptyIsValid(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT topic, downloads, storage_path, display_name")).
		WithArgs(9, "Физика", "Конспекты").
		WillReturnRows(sqlmock.NewRows([]string{"topic", "downloads", "storage_path", "display_name"}))

	items, err := store.ListMaterials(context.Background(), 9, "Физика", "Конспекты")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFetchMaterialNotFound(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, grade, subject").
		WithArgs(testKey.Grade, testKey.Subject, testKey.Category, testKey.Topic).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FetchMaterial(context.Background(), testKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementDownloadsFansOutToAllMatches(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	// Two materials share the taxonomy key; both counters move.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE materials SET downloads = downloads + 1")).
		WithArgs(testKey.Grade, testKey.Subject, testKey.Category, testKey.Topic).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.IncrementDownloads(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIncrementDownloadsNotFound(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE materials SET downloads = downloads + 1")).
		WithArgs(testKey.Grade, testKey.Subject, testKey.Category, testKey.Topic).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.IncrementDownloads(context.Background(), testKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertMaterialStorageConflict(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO materials")).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.InsertMaterial(context.Background(), Material{
		Grade: 9, Subject: "Физика", Category: "Конспекты", Topic: "Законы Ньютона",
		StoragePath: "9/Физика/Конспекты/notes.pdf", DisplayName: "notes.pdf",
	})
	assert.ErrorIs(t, err, ErrStorageConflict)
}

func TestDeleteMaterialReturnsRemovedRecord(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	cols := []string{"id", "grade", "subject", "category", "topic", "storage_path",
		"display_name", "byte_size", "uploaded_at", "downloads", "uploaded_by"}
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM materials WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			int64(7), 9, "Физика", "Конспекты", "Законы Ньютона",
			"9/Физика/Конспекты/notes.pdf", "notes.pdf", int64(1024),
			time.Now(), int64(3), int64(100)))

	m, err := store.DeleteMaterial(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "9/Физика/Конспекты/notes.pdf", m.StoragePath)
	assert.Equal(t, testKey, m.Key())
}

func TestCompleteRequestOnlyMovesPending(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status = 'completed'")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.CompleteRequest(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPendingMatching(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	cols := []string{"id", "requester_id", "grade", "subject", "category", "topic",
		"description", "status", "created_at", "completed_at"}
	rows := sqlmock.NewRows(cols).
		AddRow(int64(1), int64(10), 9, "Физика", "Конспекты", "Законы Ньютона", nil, StatusPending, time.Now(), nil).
		AddRow(int64(2), int64(11), 9, "Физика", "Конспекты", "Законы Ньютона", nil, StatusPending, time.Now(), nil)

	mock.ExpectQuery("SELECT id, requester_id").
		WithArgs(testKey.Grade, testKey.Subject, testKey.Category, testKey.Topic).
		WillReturnRows(rows)

	reqs, err := store.ListPendingMatching(context.Background(), testKey)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.True(t, reqs[0].IsPending())
	assert.Equal(t, testKey, reqs[0].Key())
}

func TestStats(t *testing.T) {
	store, mock, cleanup := newStoreMock(t)
	defer cleanup()

	cols := []string{"total_materials", "total_downloads", "total_users", "pending_requests", "completed_requests"}
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(12), int64(80), int64(40), int64(3), int64(9)))

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), st.TotalMaterials)
	assert.Equal(t, int64(80), st.TotalDownloads)
	assert.Equal(t, int64(3), st.PendingRequests)
}
