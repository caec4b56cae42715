package accounts_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/DocMeNN/DocMeNN-sub000/internal/accounting/accounts"
	"github.com/DocMeNN/DocMeNN-sub000/internal/shared"
	"github.com/DocMeNN/DocMeNN-sub000/internal/store"
	"github.com/DocMeNN/DocMeNN-sub000/internal/testing/memstore"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func resolve(t *testing.T, db *memstore.DB, reg *accounts.Registry, chartID int64, code string) (accounts.Account, error) {
	t.Helper()
	var (
		acc accounts.Account
		err error
	)
	db.View(func(tx store.Tx) {
		acc, err = reg.Resolve(context.Background(), tx.Accounts(), chartID, code)
	})
	return acc, err
}

func mutate(t *testing.T, db *memstore.DB, fn func(ctx context.Context, st accounts.Store) error) {
	t.Helper()
	require.NoError(t, db.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, tx.Accounts())
	}))
}

func TestResolveSemanticAndLiteralCodes(t *testing.T) {
	db := memstore.New()
	chart := db.SeedStandardChart("main", true)
	reg := accounts.NewRegistry(newRedis(t), nil)

	cash, err := resolve(t, db, reg, chart.Chart.ID, " cash ")
	require.NoError(t, err)
	require.Equal(t, "1000", cash.Code)

	literal, err := resolve(t, db, reg, chart.Chart.ID, "1000")
	require.NoError(t, err)
	require.Equal(t, cash.ID, literal.ID)

	_, err = resolve(t, db, reg, chart.Chart.ID, "9999")
	require.ErrorIs(t, err, shared.ErrAccountResolution)

	_, err = resolve(t, db, reg, chart.Chart.ID, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestResolveRejectsInactiveAccount(t *testing.T) {
	db := memstore.New()
	chart := db.SeedStandardChart("main", true)
	mutate(t, db, func(ctx context.Context, st accounts.Store) error {
		_, err := st.CreateAccount(ctx, accounts.Account{ChartID: chart.Chart.ID, Code: "1090", Name: "Old till", Type: accounts.TypeAsset})
		return err
	})
	reg := accounts.NewRegistry(nil, nil)

	_, err := resolve(t, db, reg, chart.Chart.ID, "1090")
	require.ErrorIs(t, err, shared.ErrAccountResolution)
}

func TestMappingChangeNeedsInvalidation(t *testing.T) {
	db := memstore.New()
	chart := db.SeedStandardChart("main", true)
	mutate(t, db, func(ctx context.Context, st accounts.Store) error {
		_, err := st.CreateAccount(ctx, accounts.Account{ChartID: chart.Chart.ID, Code: "1001", Name: "Petty cash", Type: accounts.TypeAsset, Active: true})
		return err
	})
	client := newRedis(t)
	reg := accounts.NewRegistry(client, nil)
	ctx := context.Background()

	before, err := resolve(t, db, reg, chart.Chart.ID, "CASH")
	require.NoError(t, err)
	require.Equal(t, "1000", before.Code)

	mutate(t, db, func(ctx context.Context, st accounts.Store) error {
		return st.MapCode(ctx, chart.Chart.ID, accounts.CodeCash, "1001")
	})
	cached, err := resolve(t, db, reg, chart.Chart.ID, "CASH")
	require.NoError(t, err)
	require.Equal(t, "1000", cached.Code, "cached until the version moves")

	// A second process bumps the shared version.
	other := accounts.NewRegistry(client, nil)
	require.NoError(t, other.Invalidate(ctx))

	after, err := resolve(t, db, reg, chart.Chart.ID, "CASH")
	require.NoError(t, err)
	require.Equal(t, "1001", after.Code)

	ver, err := reg.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), ver)
}

func TestChartIDPrecedence(t *testing.T) {
	db := memstore.New()
	active := db.SeedStandardChart("main", true)
	pinned := db.SeedStandardChart("branch", false)
	reg := accounts.NewRegistry(nil, nil)

	db.View(func(tx store.Tx) {
		ctx := context.Background()
		id, err := reg.ChartID(ctx, tx.Accounts(), 0)
		require.NoError(t, err)
		require.Equal(t, active.Chart.ID, id)

		id, err = reg.ChartID(accounts.WithChart(ctx, pinned.Chart.ID), tx.Accounts(), 0)
		require.NoError(t, err)
		require.Equal(t, pinned.Chart.ID, id)

		id, err = reg.ChartID(accounts.WithChart(ctx, pinned.Chart.ID), tx.Accounts(), 99)
		require.NoError(t, err)
		require.Equal(t, int64(99), id)
	})
}

func TestActiveChartMissing(t *testing.T) {
	db := memstore.New()
	db.SeedStandardChart("draft", false)
	reg := accounts.NewRegistry(newRedis(t), nil)

	db.View(func(tx store.Tx) {
		_, err := reg.ActiveChart(context.Background(), tx.Accounts())
		require.ErrorIs(t, err, shared.ErrAccountResolution)
	})
}
