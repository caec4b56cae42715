package accounts

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
)

func TestActivateChartUnknownID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE charts SET is_active=FALSE`).WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE charts SET is_active=TRUE`).WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewStore(mock).ActivateChart(context.Background(), 5)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMappedCodeMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT account_code FROM account_mappings`).WithArgs(int64(1), "CASH").
		WillReturnRows(pgxmock.NewRows([]string{"account_code"}))

	_, err = NewStore(mock).MappedCode(context.Background(), 1, CodeCash)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateAccountDuplicateCode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_accounts_chart_code"})

	_, err = NewStore(mock).CreateAccount(context.Background(), Account{ChartID: 1, Code: "1000", Name: "Cash", Type: TypeAsset})
	require.ErrorIs(t, err, shared.ErrValidation)
}
