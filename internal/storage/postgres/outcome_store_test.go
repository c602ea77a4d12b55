package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-directory/internal/backfill"
)

func newMockStore(t *testing.T) (*OutcomeStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewOutcomeStoreWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestRecordOutcomeInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	start := time.Unix(1700000000, 0).UTC()
	outcome := backfill.Outcome{
		RunID:      "run-1",
		RecordID:   "rec1",
		Domain:     "acme.com",
		Stage:      backfill.StageFetching,
		Failure:    backfill.FailureNotFound,
		Err:        errors.New("lookup: unexpected status 404"),
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	}

	mock.ExpectExec("INSERT INTO backfill_outcomes").
		WithArgs(
			"run-1",
			"rec1",
			"acme.com",
			"fetching",
			false,
			"not_found",
			"",
			"lookup: unexpected status 404",
			outcome.StartedAt,
			outcome.FinishedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordOutcome(context.Background(), outcome))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomeRequiresIDs(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	err := store.RecordOutcome(context.Background(), backfill.Outcome{RunID: "run-1"})
	require.Error(t, err)
}

func TestRecordOutcomeWrapsExecError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO backfill_outcomes").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := store.RecordOutcome(context.Background(), backfill.Outcome{RunID: "r", RecordID: "rec"})
	require.ErrorContains(t, err, "insert outcome")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSummaryUpsertsRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	start := time.Unix(1700000000, 0).UTC()
	summary := backfill.Summary{
		RunID:      "run-1",
		Total:      3,
		Skipped:    2,
		Processed:  1,
		Succeeded:  1,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
	}

	mock.ExpectExec("INSERT INTO backfill_outcomes_runs").
		WithArgs("run-1", 3, 2, 1, 1, 0, summary.StartedAt, summary.FinishedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordSummary(context.Background(), summary))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaCreatesTables(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS backfill_outcomes ").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS backfill_outcomes_runs").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableNameValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewOutcomeStoreWithPool(mock, "outcomes; DROP TABLE x")
	require.Error(t, err)

	_, err = NewOutcomeStoreWithPool(nil, "")
	require.Error(t, err)

	_, err = NewOutcomeStore(context.Background(), Config{})
	require.Error(t, err)
}
