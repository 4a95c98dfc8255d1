package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func scenarioOrder() Order {
	return Order{
		OrderID:        "o1",
		CustomerID:     "c1",
		DiscountRate:   0.1,
		OrderStatus:    OrderConfirmed,
		DeliveryStatus: DeliveryPending,
		Lines:          []OrderLine{{LineID: "l1", ItemID: "x", Quantity: 3, UnitValue: 100}},
	}
}

func TestRecomputeTotals(t *testing.T) {
	o := scenarioOrder()
	o.GrossTotal = 999
	o.PaymentStatus = PaymentPaid
	o.RecomputeTotals()

	require.Equal(t, 300.0, o.Lines[0].LineTotal)
	require.Equal(t, 300.0, o.GrossTotal)
	require.InDelta(t, 30.0, o.DiscountValue, 1e-6)
	require.InDelta(t, 270.0, o.NetTotal, 1e-6)
	require.InDelta(t, 270.0, o.BalanceDue, 1e-6)
	require.Equal(t, PaymentUnpaid, o.PaymentStatus)
}

func TestRecomputeTotalsPayments(t *testing.T) {
	cases := []struct {
		name     string
		payments []float64
		balance  float64
		status   PaymentStatus
	}{
		{"full", []float64{270}, 0, PaymentPaid},
		{"partial", []float64{100, 50}, 120, PaymentPartial},
		{"within tolerance", []float64{269.6}, 0.4, PaymentPaid},
		{"overpaid", []float64{300}, -30, PaymentPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := scenarioOrder()
			for _, amt := range tc.payments {
				o.Payments = append(o.Payments, Payment{Amount: amt, PaymentType: PaymentCash})
			}
			o.RecomputeTotals()

			sum := 0.0
			for _, amt := range tc.payments {
				sum += amt
			}
			require.InDelta(t, sum, o.PaidAmount, 1e-6)
			require.InDelta(t, tc.balance, o.BalanceDue, 1e-6)
			require.InDelta(t, o.NetTotal-o.PaidAmount, o.BalanceDue, 1e-6)
			require.Equal(t, tc.status, o.PaymentStatus)
		})
	}
}

func TestDisplayBalance(t *testing.T) {
	o := Order{BalanceDue: -12}
	require.Zero(t, o.DisplayBalance())
	o.BalanceDue = 12
	require.Equal(t, 12.0, o.DisplayBalance())
}

func TestOrderValidate(t *testing.T) {
	o := scenarioOrder()
	require.NoError(t, o.Validate())

	bad := o.Clone()
	bad.Lines[0].Quantity = 0
	require.ErrorIs(t, bad.Validate(), ErrValidation)
	require.Equal(t, 3, o.Lines[0].Quantity)

	bad = o.Clone()
	bad.DiscountRate = 10
	require.ErrorIs(t, bad.Validate(), ErrValidation)

	bad = o.Clone()
	bad.DeliveryStatus = "lost"
	require.ErrorIs(t, bad.Validate(), ErrValidation)

	bad = o.Clone()
	bad.Payments = []Payment{{Amount: 10, PaymentType: "barter"}}
	require.ErrorIs(t, bad.Validate(), ErrValidation)
}

func TestLifecycleHelpers(t *testing.T) {
	o := scenarioOrder()
	require.True(t, o.ShouldHoldStock())
	require.True(t, o.Counted())

	o.DeliveryStatus = DeliveryCancelled
	require.False(t, o.ShouldHoldStock())
	require.False(t, o.Counted())

	o.DeliveryStatus = DeliveryDelivered
	o.OrderStatus = OrderDraft
	require.False(t, o.ShouldHoldStock())
	require.False(t, o.Counted())
}

func TestAdjustmentEffect(t *testing.T) {
	cases := map[AdjustmentType]int{
		AdjustmentRestock:    5,
		AdjustmentReturn:     5,
		AdjustmentDamage:     -5,
		AdjustmentCorrection: -5,
	}
	for typ, delta := range cases {
		eff, err := StockAdjustment{AdjustmentType: typ, Quantity: 5}.Effect()
		require.NoError(t, err)
		require.Equal(t, 5, eff.Quantity)
		require.Equal(t, delta, eff.Delta())
	}

	_, err := StockAdjustment{AdjustmentType: AdjustmentRestock, Quantity: 0}.Effect()
	require.ErrorIs(t, err, ErrValidation)
	_, err = StockAdjustment{AdjustmentType: "theft", Quantity: 1}.Effect()
	require.ErrorIs(t, err, ErrValidation)
}

func TestValidateEntities(t *testing.T) {
	require.NoError(t, Customer{ShopName: "Shop", DiscountRate: 0.25}.Validate())
	require.ErrorIs(t, Customer{ShopName: " "}.Validate(), ErrValidation)
	require.ErrorIs(t, Customer{ShopName: "Shop", DiscountRate: 25}.Validate(), ErrValidation)

	require.NoError(t, Item{ItemDisplayName: "Bolt"}.Validate())
	require.ErrorIs(t, Item{ItemDisplayName: "Bolt", CurrentStockQty: -1}.Validate(), ErrValidation)

	a := Item{ItemName: "Brake Pad", VehicleModel: "CT100", SourceBrand: "Bajaj"}
	b := Item{ItemName: " brake pad", VehicleModel: "ct100", SourceBrand: "BAJAJ "}
	require.True(t, a.SameDefinition(b))
	b.VehicleModel = "Pulsar"
	require.False(t, a.SameDefinition(b))
}

func TestAvailable(t *testing.T) {
	it := Item{CurrentStockQty: 2, IsOutOfStock: true}
	require.True(t, it.Available(2, true))
	require.False(t, it.Available(3, true))
	require.False(t, it.Available(1, false))
}

func TestEnvelopeTouch(t *testing.T) {
	var e Envelope
	e.SyncStatus = SyncSynced
	now := mustTime(t, "2026-03-01T10:00:00Z")
	e.Touch(now)
	require.Equal(t, now, e.CreatedAt)
	require.True(t, e.Pending())

	later := now.Add(time.Hour)
	e.Touch(later)
	require.Equal(t, now, e.CreatedAt)
	require.Equal(t, later, e.UpdatedAt)
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return v
}
