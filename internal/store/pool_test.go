package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pocketbase/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-system/models"
)

func setupTestStore(t *testing.T) (*TicketStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewTicketStore(dbx.NewFromDB(db, "mysql")), mock
}

func TestInitializePool_Fresh(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tickets`).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
	for i := 0; i < 3; i++ {
		mock.ExpectExec(`INSERT INTO tickets \(id, number, state\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	result, err := store.InitializePool(context.Background(), 3)
	require.NoError(t, err)

	assert.False(t, result.AlreadyInitialized)
	assert.Equal(t, 3, result.Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializePool_AlreadyInitialized(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tickets`).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(100))
	mock.ExpectCommit()

	result, err := store.InitializePool(context.Background(), 100)
	require.NoError(t, err)

	// Second initialization is a no-op, never a duplicate insert or a reset
	assert.True(t, result.AlreadyInitialized)
	assert.Equal(t, 100, result.Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializePool_InvalidSize(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.InitializePool(context.Background(), 0)
	assert.Error(t, err)
}

func TestCountByState(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tickets WHERE state=\?`).
		WithArgs("available").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(42))

	count, err := store.CountByState(context.Background(), models.StateAvailable)
	require.NoError(t, err)

	assert.Equal(t, 42, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBoard_OrderedByNumber(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectQuery(`SELECT number, state FROM tickets ORDER BY number ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"number", "state"}).
			AddRow(1, "sold").
			AddRow(2, "available").
			AddRow(3, "reserved"))

	board, err := store.ListBoard(context.Background())
	require.NoError(t, err)

	require.Len(t, board, 3)
	assert.Equal(t, 1, board[0].Number)
	assert.Equal(t, models.StateSold, board[0].State)
	assert.Equal(t, models.StateAvailable, board[1].State)
	assert.Equal(t, models.StateReserved, board[2].State)
}

func TestSummary(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectQuery(`SELECT state, COUNT\(\*\) AS cnt FROM tickets GROUP BY state`).
		WillReturnRows(sqlmock.NewRows([]string{"state", "cnt"}).
			AddRow("available", 97).
			AddRow("reserved", 1).
			AddRow("sold", 2))

	summary, err := store.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100, summary.Total)
	assert.Equal(t, 97, summary.Available)
	assert.Equal(t, 1, summary.Reserved)
	assert.Equal(t, 2, summary.Sold)
}

func TestLockRandomAvailable(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`ORDER BY RAND\(\) LIMIT 1$`).
		WithArgs("available").
		WillReturnRows(sqlmock.NewRows([]string{"id", "number"}).AddRow("ABCD1234", 7))
	mock.ExpectQuery(`WHERE id=\? AND state=\? FOR UPDATE SKIP LOCKED`).
		WithArgs("ABCD1234", "available").
		WillReturnRows(sqlmock.NewRows([]string{"id", "number"}).AddRow("ABCD1234", 7))
	mock.ExpectCommit()

	err := store.Transactional(context.Background(), func(tx *dbx.Tx) error {
		ticket, err := store.LockRandomAvailable(context.Background(), tx)
		require.NoError(t, err)

		assert.Equal(t, "ABCD1234", ticket.ID)
		assert.Equal(t, 7, ticket.Number)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRandomAvailable_NoneAvailable(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`ORDER BY RAND\(\) LIMIT 1$`).
		WithArgs("available").
		WillReturnRows(sqlmock.NewRows([]string{"id", "number"}))
	mock.ExpectRollback()

	err := store.Transactional(context.Background(), func(tx *dbx.Tx) error {
		_, err := store.LockRandomAvailable(context.Background(), tx)
		return err
	})
	assert.ErrorIs(t, err, ErrNoneAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRandomAvailable_RepicksContendedCandidate(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectBegin()
	// First candidate is held by a competitor: the single-row locking read
	// skips it and a fresh candidate is picked.
	mock.ExpectQuery(`ORDER BY RAND\(\) LIMIT 1$`).
		WithArgs("available").
		WillReturnRows(sqlmock.NewRows([]string{"id", "number"}).AddRow("HELD0001", 1))
	mock.ExpectQuery(`WHERE id=\? AND state=\? FOR UPDATE SKIP LOCKED`).
		WithArgs("HELD0001", "available").
		WillReturnRows(sqlmock.NewRows([]string{"id", "number"}))
	mock.ExpectQuery(`ORDER BY RAND\(\) LIMIT 1$`).
		WithArgs("available").
		WillReturnRows(sqlmock.NewRows([]string{"id", "number"}).AddRow("FREE0002", 2))
	mock.ExpectQuery(`WHERE id=\? AND state=\? FOR UPDATE SKIP LOCKED`).
		WithArgs("FREE0002", "available").
		WillReturnRows(sqlmock.NewRows([]string{"id", "number"}).AddRow("FREE0002", 2))
	mock.ExpectCommit()

	err := store.Transactional(context.Background(), func(tx *dbx.Tx) error {
		ticket, err := store.LockRandomAvailable(context.Background(), tx)
		require.NoError(t, err)

		assert.Equal(t, "FREE0002", ticket.ID)
		assert.Equal(t, 2, ticket.Number)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRandomAvailable_GivesUpAfterBoundedAttempts(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectBegin()
	for i := 0; i < lockAttempts; i++ {
		mock.ExpectQuery(`ORDER BY RAND\(\) LIMIT 1$`).
			WithArgs("available").
			WillReturnRows(sqlmock.NewRows([]string{"id", "number"}).AddRow("HELD0001", 1))
		mock.ExpectQuery(`WHERE id=\? AND state=\? FOR UPDATE SKIP LOCKED`).
			WithArgs("HELD0001", "available").
			WillReturnRows(sqlmock.NewRows([]string{"id", "number"}))
	}
	mock.ExpectRollback()

	err := store.Transactional(context.Background(), func(tx *dbx.Tx) error {
		_, err := store.LockRandomAvailable(context.Background(), tx)
		return err
	})
	assert.ErrorIs(t, err, ErrNoneAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve(t *testing.T) {
	store, mock := setupTestStore(t)
	buyer := models.Buyer{Name: "Ada", Email: "ada@example.com", Phone: "02055551234"}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE tickets`).
		WithArgs("reserved", "Ada", "ada@example.com", "02055551234", sqlmock.AnyArg(), "ABCD1234", "available").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Transactional(context.Background(), func(tx *dbx.Tx) error {
		return store.Reserve(context.Background(), tx, "ABCD1234", buyer)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalize(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectExec(`UPDATE tickets`).
		WithArgs("sold", "FP-REF-1", int64(7), sqlmock.AnyArg(), "ABCD1234", "reserved").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Finalize(context.Background(), "ABCD1234", "FP-REF-1", 7)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalize_ReservationLost(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectExec(`UPDATE tickets`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Finalize(context.Background(), "ABCD1234", "FP-REF-1", 7)
	assert.ErrorIs(t, err, ErrReservationLost)
}

func TestRelease_Idempotent(t *testing.T) {
	store, mock := setupTestStore(t)

	// Releasing a ticket that is no longer reserved matches no row and is
	// still a success: the compensation path can run more than once.
	mock.ExpectExec(`UPDATE tickets`).
		WithArgs("available", "ABCD1234", "reserved").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.Release(context.Background(), "ABCD1234"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseExpired(t *testing.T) {
	store, mock := setupTestStore(t)

	mock.ExpectExec(`UPDATE tickets`).
		WithArgs("available", "reserved", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	released, err := store.ReleaseExpired(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), released)
}
