package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memstore"
)

func amt(s string) decimal.Decimal { return domain.MustAmount(s) }

type fixture struct {
	store  *memstore.Store
	poster *ledger.Poster
	svc    *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := ledgertest.Seed(t)
	poster := ledger.NewPoster(st, nil, nil, ledger.Config{})
	return fixture{store: st, poster: poster, svc: NewService(st, poster, nil, nil, ServiceConfig{})}
}

func (f fixture) item(t *testing.T, code string, method domain.ValuationMethod) domain.InventoryItem {
	t.Helper()
	item, err := f.svc.RegisterItem(context.Background(), ItemInput{
		Code:                 code,
		Name:                 "Widget " + code,
		Unit:                 "pcs",
		Method:               method,
		InventoryAccountCode: ledgertest.Inventory,
	})
	require.NoError(t, err)
	return item
}

func (f fixture) receive(t *testing.T, itemID int64, day int, qty, cost string) MovementResult {
	t.Helper()
	res, err := f.svc.Receive(context.Background(), InboundInput{
		ItemID:            itemID,
		Date:              ledgertest.Date(2024, time.January, day),
		Type:              domain.MovementPurchase,
		Quantity:          amt(qty),
		UnitCost:          amt(cost),
		OffsetAccountCode: ledgertest.Payable,
	})
	require.NoError(t, err)
	return res
}

func (f fixture) issue(itemID int64, day int, qty string) (MovementResult, error) {
	return f.svc.Issue(context.Background(), OutboundInput{
		ItemID:            itemID,
		Date:              ledgertest.Date(2024, time.January, day),
		Type:              domain.MovementSale,
		Quantity:          amt(qty),
		OffsetAccountCode: ledgertest.COGS,
	})
}

func (f fixture) balance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	bal, err := f.poster.BalanceAsOf(context.Background(), code, ledgertest.Date(2024, time.December, 31))
	require.NoError(t, err)
	return bal
}

func TestIssueFIFOConsumesOldestLots(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "W-FIFO", domain.ValuationFIFO)
	f.receive(t, item.ID, 5, "10", "100")
	f.receive(t, item.ID, 10, "5", "120")

	res, err := f.issue(item.ID, 15, "12")
	require.NoError(t, err)
	require.NotNil(t, res.Valuation)
	require.True(t, res.Valuation.TotalCost.Equal(amt("1240")), res.Valuation.TotalCost.String())
	require.Len(t, res.Valuation.LotsConsumed, 2)
	require.True(t, res.Movement.Quantity.Equal(amt("-12")))

	lots, err := f.store.OpenLots(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	require.True(t, lots[0].Remaining.Equal(amt("3")))
	require.True(t, lots[0].UnitCost.Equal(amt("120")))

	require.True(t, res.Item.TotalValue.Equal(amt("360")))
	require.True(t, f.balance(t, ledgertest.Inventory).Equal(amt("360")))
	require.True(t, f.balance(t, ledgertest.COGS).Equal(amt("1240")))
}

func TestIssueLIFOConsumesNewestLots(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "W-LIFO", domain.ValuationLIFO)
	f.receive(t, item.ID, 5, "10", "100")
	f.receive(t, item.ID, 10, "5", "120")

	res, err := f.issue(item.ID, 15, "12")
	require.NoError(t, err)
	require.True(t, res.Valuation.TotalCost.Equal(amt("1300")), res.Valuation.TotalCost.String())

	lots, err := f.store.OpenLots(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	require.True(t, lots[0].Remaining.Equal(amt("3")))
	require.True(t, lots[0].UnitCost.Equal(amt("100")))
}

func TestAverageCostRecomputedOnReceipt(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "W-AVG", domain.ValuationAverage)
	f.receive(t, item.ID, 5, "10", "100")
	res := f.receive(t, item.ID, 10, "10", "120")
	require.True(t, res.Item.UnitCost().Equal(amt("110")))

	out, err := f.issue(item.ID, 15, "5")
	require.NoError(t, err)
	require.True(t, out.Valuation.TotalCost.Equal(amt("550")))
	require.True(t, out.Item.OnHand.Equal(amt("15")))
	require.True(t, out.Item.UnitCost().Equal(amt("110")))

	lots, err := f.store.OpenLots(context.Background(), item.ID)
	require.NoError(t, err)
	require.Empty(t, lots)
}

func TestAverageIssueOfEverythingChargesFullValue(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "W-ODD", domain.ValuationAverage)
	f.receive(t, item.ID, 5, "3", "10")
	f.receive(t, item.ID, 6, "3", "10.0001")

	out, err := f.issue(item.ID, 7, "6")
	require.NoError(t, err)
	require.True(t, out.Item.OnHand.IsZero())
	require.True(t, out.Item.TotalValue.IsZero())
	require.True(t, f.balance(t, ledgertest.Inventory).IsZero())
}

func TestIssueInsufficientStockWritesNothing(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "W-SHORT", domain.ValuationFIFO)
	f.receive(t, item.ID, 5, "10", "100")
	f.receive(t, item.ID, 10, "5", "120")
	rowsBefore := f.store.RowCount()

	_, err := f.issue(item.ID, 15, "20")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var short *domain.InsufficientStockError
	require.True(t, errors.As(err, &short))
	require.True(t, short.Available.Equal(amt("15")))

	require.Equal(t, rowsBefore, f.store.RowCount())
	movements, err := f.svc.Movements(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	current, err := f.svc.Item(context.Background(), item.ID)
	require.NoError(t, err)
	require.True(t, current.OnHand.Equal(amt("15")))
}

func TestValueOutboundIsReadOnly(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "W-PEEK", domain.ValuationFIFO)
	f.receive(t, item.ID, 5, "10", "100")
	f.receive(t, item.ID, 10, "5", "120")

	v, err := f.svc.ValueOutbound(context.Background(), item.ID, ledgertest.Date(2024, time.January, 15), amt("12"))
	require.NoError(t, err)
	require.True(t, v.TotalCost.Equal(amt("1240")))

	// Lots received after the valuation date are not eligible.
	_, err = f.svc.ValueOutbound(context.Background(), item.ID, ledgertest.Date(2024, time.January, 7), amt("12"))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	lots, err := f.store.OpenLots(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, lots, 2)
}

func TestValueOutboundAsOfDateBetweenReceipts(t *testing.T) {
	cases := []struct {
		method   domain.ValuationMethod
		afterAll string
	}{
		{domain.ValuationFIFO, "500"},
		{domain.ValuationLIFO, "600"},
		{domain.ValuationAverage, "550"},
	}
	for _, tc := range cases {
		t.Run(string(tc.method), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			item := f.item(t, "W-"+string(tc.method), tc.method)
			f.receive(t, item.ID, 5, "10", "100")
			f.receive(t, item.ID, 20, "10", "120")
			between := ledgertest.Date(2024, time.January, 10)

			v, err := f.svc.ValueOutbound(ctx, item.ID, between, amt("5"))
			require.NoError(t, err)
			require.True(t, v.TotalCost.Equal(amt("500")), v.TotalCost.String())
			require.True(t, v.UnitCost.Equal(amt("100")))

			_, err = f.svc.ValueOutbound(ctx, item.ID, between, amt("15"))
			var short *domain.InsufficientStockError
			require.ErrorAs(t, err, &short)
			require.True(t, short.Available.Equal(amt("10")), short.Available.String())

			v, err = f.svc.ValueOutbound(ctx, item.ID, ledgertest.Date(2024, time.January, 25), amt("5"))
			require.NoError(t, err)
			require.True(t, v.TotalCost.Equal(amt(tc.afterAll)), v.TotalCost.String())
		})
	}
}

func TestAverageBackdatedIssueUsesHistoricalCost(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "W-AVG-BACK", domain.ValuationAverage)
	f.receive(t, item.ID, 5, "10", "100")
	f.receive(t, item.ID, 20, "10", "120")

	out, err := f.issue(item.ID, 10, "5")
	require.NoError(t, err)
	require.True(t, out.Valuation.TotalCost.Equal(amt("500")))
	require.True(t, out.Item.OnHand.Equal(amt("15")))
	require.True(t, out.Item.TotalValue.Equal(amt("1700")))

	// Only five units remain as of the tenth once the issue is recorded.
	_, err = f.issue(item.ID, 10, "6")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.True(t, f.balance(t, ledgertest.Inventory).Equal(amt("1700")))
}

func TestReceiveDuplicateReference(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "W-DUP", domain.ValuationFIFO)
	in := InboundInput{
		ItemID:            item.ID,
		Date:              ledgertest.Date(2024, time.January, 5),
		Type:              domain.MovementPurchase,
		Quantity:          amt("1"),
		UnitCost:          amt("50"),
		OffsetAccountCode: ledgertest.Payable,
		ReferenceNo:       "PO-1",
	}
	_, err := f.svc.Receive(context.Background(), in)
	require.NoError(t, err)
	_, err = f.svc.Receive(context.Background(), in)
	require.ErrorIs(t, err, domain.ErrAlreadyPosted)

	current, err := f.svc.Item(context.Background(), item.ID)
	require.NoError(t, err)
	require.True(t, current.OnHand.Equal(amt("1")))
}

func TestInputValidation(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "W-BAD", domain.ValuationFIFO)

	_, err := f.svc.RegisterItem(context.Background(), ItemInput{Code: "X", Name: "X", Method: "weighted", InventoryAccountCode: ledgertest.Inventory})
	require.ErrorIs(t, err, ErrUnsupportedMethod)

	_, err = f.svc.RegisterItem(context.Background(), ItemInput{Code: "Y", Name: "Y", Method: domain.ValuationFIFO, InventoryAccountCode: ledgertest.Sales})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.Receive(context.Background(), InboundInput{ItemID: item.ID, Type: domain.MovementSale, Quantity: amt("1"), UnitCost: amt("1")})
	require.ErrorIs(t, err, ErrInvalidMovement)

	_, err = f.svc.Receive(context.Background(), InboundInput{ItemID: item.ID, Type: domain.MovementPurchase, Quantity: amt("0"), UnitCost: amt("1")})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.Receive(context.Background(), InboundInput{ItemID: item.ID, Type: domain.MovementPurchase, Quantity: amt("1"), UnitCost: amt("-1")})
	require.ErrorIs(t, err, ErrInvalidUnitCost)

	_, err = f.issue(item.ID, 5, "-2")
	require.ErrorIs(t, err, ErrInvalidQuantity)
}
