package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/agentos-dev/agentkernel/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect_Rebind(t *testing.T) {
	q := `INSERT INTO t (a, b, c) VALUES (?, ?, ?)`
	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t, `INSERT INTO t (a, b, c) VALUES ($1, $2, $3)`, Postgres.rebind(q))
}

func TestSQLStateStore_PostgresPutState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQLStateStore(db, Postgres)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO kernel_state (key, value, updated_at) VALUES ($1, $2, $3)`)).
		WithArgs("control_state", `{"active_runs":2}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.PutState(context.Background(), "control_state", map[string]int{"active_runs": 2}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStateStore_PostgresGetStateMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQLStateStore(db, Postgres)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM kernel_state WHERE key = $1`)).
		WithArgs("agent_state").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	var dst map[string]any
	ok, err := s.GetState(context.Background(), "agent_state", &dst)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStateStore_PostgresEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQLStateStore(db, Postgres)
	events := sampleEvents("run-7")

	for _, ev := range events {
		body, err := encodeEvent(ev)
		require.NoError(t, err)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO kernel_events (run_id, step_id, type, body, recorded_at) VALUES ($1, $2, $3, $4, $5)`)).
			WithArgs("run-7", ev.StepID, string(ev.Type), string(body), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	for _, ev := range events {
		require.NoError(t, s.AppendEvent(context.Background(), "run-7", ev))
	}

	rows := sqlmock.NewRows([]string{"body"})
	for _, ev := range events {
		body, _ := encodeEvent(ev)
		rows.AddRow(string(body))
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM kernel_events WHERE run_id = $1 ORDER BY step_id`)).
		WithArgs("run-7").
		WillReturnRows(rows)

	got, err := s.Events(context.Background(), "run-7")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, contracts.EventRunCompleted, got[2].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStateStore_InitCreatesBothTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS kernel_state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS kernel_events").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewSQLStateStore(db, Postgres).Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
