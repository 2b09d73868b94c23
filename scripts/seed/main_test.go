package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memstore"
)

func TestLoadChart(t *testing.T) {
	c, err := loadChart(defaultChart)
	require.NoError(t, err)
	require.Len(t, c.Categories, 10)
	require.Len(t, c.Accounts, 17)

	_, err = loadChart([]byte("categories: []\n"))
	require.ErrorContains(t, err, "no accounts")

	_, err = loadChart([]byte("accounts: [unterminated"))
	require.ErrorContains(t, err, "parse chart")
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	acct := accounts.NewService(st, nil, nil)
	poster := ledger.NewPoster(st, nil, nil, ledger.Config{})
	mgr := periods.NewManager(st, poster, lock.NewLocalLocker(), nil, nil, periods.Config{})

	c, err := loadChart(defaultChart)
	require.NoError(t, err)

	stats, err := seed(ctx, c, acct, mgr, 2025)
	require.NoError(t, err)
	require.Equal(t, seedStats{Categories: 10, Accounts: 17, Periods: 12}, stats)

	depr, err := acct.Resolve(ctx, "1490")
	require.NoError(t, err)
	require.Equal(t, domain.NormalCredit, depr.NormalBalance)

	stats, err = seed(ctx, c, acct, mgr, 2025)
	require.NoError(t, err)
	require.Equal(t, seedStats{}, stats)
}
