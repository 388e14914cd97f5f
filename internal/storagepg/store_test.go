package storagepg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kestrel-run/agentcore/pkg/models"
)

func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *Store) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return mock, &Store{db: db}
}

func TestCreateSessionRejectsMissingID(t *testing.T) {
	_, store := setupMockStore(t)
	err := store.CreateSession(context.Background(), &models.Session{})
	if err == nil {
		t.Fatal("expected error for missing session id")
	}
}

func TestCreateSessionExecutesInsert(t *testing.T) {
	mock, store := setupMockStore(t)
	now := time.Now()
	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateSession(context.Background(), &models.Session{
		ID: "s1", UserID: "u1", Goal: "do a thing", Status: models.SessionActive,
		Kind: models.AgentAutonomous, CreatedAt: now, UpdatedAt: now, LastActivityAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetSessionReturnsNotFoundError(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectQuery("SELECT id, user_id, goal").WillReturnError(sql.ErrNoRows)

	if _, err := store.GetSession(context.Background(), "missing"); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestUpdateStepRequiresAffectedRow(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectExec("UPDATE steps").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateStep(context.Background(), &models.Step{ID: "step-missing"})
	if err == nil {
		t.Fatal("expected error when no rows affected")
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.Transaction(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		return sql.ErrConnDone
	})
	if err == nil {
		t.Fatal("expected transaction error to propagate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	err := store.Transaction(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLatestCheckpointReturnsNilWhenAbsent(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectQuery("SELECT id, session_id, step_number, summary").WillReturnError(sql.ErrNoRows)

	cp, err := store.LatestCheckpoint(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if cp != nil {
		t.Fatalf("expected nil checkpoint, got %+v", cp)
	}
}
