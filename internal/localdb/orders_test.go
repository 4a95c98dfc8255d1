package localdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"partflow/m/domain"
	"partflow/m/internal/events"
	"partflow/m/internal/seed"
)

func rate(v float64) *float64 { return &v }

// scenarioOrder confirms 3 units of x at a 10% discount.
func scenarioOrder(t *testing.T, repo *Repository) domain.Order {
	t.Helper()
	o, err := repo.FinalizeOrder(context.Background(), OrderDraft{
		CustomerID:   "c1",
		RepID:        "user-1",
		DiscountRate: rate(0.1),
		Lines:        []DraftLine{{ItemID: "x", Quantity: 3}},
	})
	require.NoError(t, err)
	return o
}

func TestFinalizeOrder(t *testing.T) {
	repo, rec := setupRepo(t)

	o := scenarioOrder(t, repo)
	require.Equal(t, 300.0, o.GrossTotal)
	require.InDelta(t, 30.0, o.DiscountValue, 1e-6)
	require.InDelta(t, 270.0, o.NetTotal, 1e-6)
	require.Equal(t, domain.PaymentUnpaid, o.PaymentStatus)
	require.Equal(t, domain.OrderConfirmed, o.OrderStatus)
	require.Equal(t, domain.DeliveryPending, o.DeliveryStatus)
	require.Equal(t, domain.SyncPending, o.SyncStatus)
	require.Equal(t, "2026-03-15", o.OrderDate)
	require.Equal(t, "user-1", o.RepID)
	require.True(t, o.StockDeducted)

	require.Len(t, o.Lines, 1)
	line := o.Lines[0]
	require.Equal(t, o.OrderID, line.OrderID)
	require.Equal(t, "Item X - M1 - B1", line.ItemName)
	require.Equal(t, 300.0, line.LineTotal)

	require.Equal(t, 7, mustItem(t, repo, "x").CurrentStockQty)
	c := mustCustomer(t, repo, "c1")
	require.InDelta(t, 270.0, c.OutstandingBalance, 1e-6)
	require.Equal(t, domain.SyncPending, c.SyncStatus)

	require.Len(t, repo.Orders(), 1)
	require.Equal(t, []string{events.OrderCreated}, rec.types())
}

func TestFinalizeOrderUsesCustomerDiscount(t *testing.T) {
	repo, _ := setupRepo(t)
	o, err := repo.FinalizeOrder(context.Background(), OrderDraft{
		CustomerID: "c1",
		Lines:      []DraftLine{{ItemID: "y", Quantity: 2}},
		Payment:    &domain.Payment{Amount: 40, PaymentType: domain.PaymentCheque, ReferenceNumber: "CHQ-1"},
	})
	require.NoError(t, err)
	require.Equal(t, 0.1, o.DiscountRate)
	require.InDelta(t, 90.0, o.NetTotal, 1e-6)
	require.InDelta(t, 50.0, o.BalanceDue, 1e-6)
	require.Equal(t, domain.PaymentPartial, o.PaymentStatus)
	require.Len(t, o.Payments, 1)
	require.Equal(t, o.OrderID, o.Payments[0].OrderID)
	require.Equal(t, "2026-03-15", o.Payments[0].PaymentDate)
}

func TestFinalizeOrderRejects(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		draft OrderDraft
		err   error
	}{
		{"insufficient stock", OrderDraft{CustomerID: "c1", Lines: []DraftLine{{ItemID: "x", Quantity: 11}}}, ErrInsufficientStock},
		{"split lines exceed stock", OrderDraft{CustomerID: "c1", Lines: []DraftLine{{ItemID: "y", Quantity: 3}, {ItemID: "y", Quantity: 3}}}, ErrInsufficientStock},
		{"unknown customer", OrderDraft{CustomerID: "nope", Lines: []DraftLine{{ItemID: "x", Quantity: 1}}}, ErrNotFound},
		{"unknown item", OrderDraft{CustomerID: "c1", Lines: []DraftLine{{ItemID: "nope", Quantity: 1}}}, ErrNotFound},
		{"zero quantity", OrderDraft{CustomerID: "c1", Lines: []DraftLine{{ItemID: "x", Quantity: 0}}}, ErrValidation},
		{"no lines", OrderDraft{CustomerID: "c1"}, ErrValidation},
		{"bad discount", OrderDraft{CustomerID: "c1", DiscountRate: rate(10), Lines: []DraftLine{{ItemID: "x", Quantity: 1}}}, ErrValidation},
		{"bad payment", OrderDraft{CustomerID: "c1", Lines: []DraftLine{{ItemID: "x", Quantity: 1}}, Payment: &domain.Payment{Amount: -5}}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.FinalizeOrder(ctx, tc.draft)
			require.ErrorIs(t, err, tc.err)
		})
	}

	require.Empty(t, repo.Orders())
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)
	require.Equal(t, 5, mustItem(t, repo, "y").CurrentStockQty)
	require.Equal(t, domain.SyncSynced, mustCustomer(t, repo, "c1").SyncStatus)
}

func TestFinalizeOrderIsIdempotentByID(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	draft := OrderDraft{OrderID: "o-1", CustomerID: "c1", Lines: []DraftLine{{ItemID: "x", Quantity: 3}}}

	_, err := repo.FinalizeOrder(ctx, draft)
	require.NoError(t, err)
	_, err = repo.FinalizeOrder(ctx, draft)
	require.ErrorIs(t, err, ErrDuplicate)
	require.Equal(t, 7, mustItem(t, repo, "x").CurrentStockQty)
}

func TestFinalizeDraftHoldsNoStock(t *testing.T) {
	repo, _ := setupRepo(t)
	o, err := repo.FinalizeOrder(context.Background(), OrderDraft{
		CustomerID: "c1",
		Status:     domain.OrderDraft,
		Lines:      []DraftLine{{ItemID: "x", Quantity: 20}},
	})
	require.NoError(t, err)
	require.False(t, o.StockDeducted)
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)
	require.Zero(t, mustCustomer(t, repo, "c1").OutstandingBalance)
}

func TestFinalizeWithoutStockTracking(t *testing.T) {
	repo, _ := setupRepo(t, func(d *seed.Data) {
		d.Settings.StockTrackingEnabled = false
		d.Items[1].IsOutOfStock = true
	})
	ctx := context.Background()

	_, err := repo.FinalizeOrder(ctx, OrderDraft{CustomerID: "c1", Lines: []DraftLine{{ItemID: "y", Quantity: 1}}})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Quantity on hand is not the availability signal without tracking.
	o, err := repo.FinalizeOrder(ctx, OrderDraft{CustomerID: "c1", Lines: []DraftLine{{ItemID: "x", Quantity: 50}}})
	require.NoError(t, err)
	require.False(t, o.StockDeducted)
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)

	require.NoError(t, repo.DeleteOrder(ctx, o.OrderID))
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)
}

func TestAddPayment(t *testing.T) {
	t.Run("paid in full", func(t *testing.T) {
		repo, rec := setupRepo(t)
		o := scenarioOrder(t, repo)

		o, err := repo.AddPayment(context.Background(), domain.Payment{OrderID: o.OrderID, Amount: 270, PaymentType: domain.PaymentCash})
		require.NoError(t, err)
		require.InDelta(t, 270.0, o.PaidAmount, 1e-6)
		require.InDelta(t, 0.0, o.BalanceDue, 1e-6)
		require.Equal(t, domain.PaymentPaid, o.PaymentStatus)
		require.InDelta(t, 0.0, mustCustomer(t, repo, "c1").OutstandingBalance, 1e-6)
		require.Contains(t, rec.types(), events.PaymentAdded)
	})

	t.Run("partial", func(t *testing.T) {
		repo, _ := setupRepo(t)
		o := scenarioOrder(t, repo)
		ctx := context.Background()

		_, err := repo.AddPayment(ctx, domain.Payment{OrderID: o.OrderID, Amount: 100, PaymentType: domain.PaymentCash})
		require.NoError(t, err)
		o, err = repo.AddPayment(ctx, domain.Payment{OrderID: o.OrderID, Amount: 50, PaymentType: domain.PaymentBankTransfer})
		require.NoError(t, err)
		require.InDelta(t, 150.0, o.PaidAmount, 1e-6)
		require.InDelta(t, 120.0, o.BalanceDue, 1e-6)
		require.Equal(t, domain.PaymentPartial, o.PaymentStatus)
		require.Len(t, o.Payments, 2)
		require.InDelta(t, 120.0, mustCustomer(t, repo, "c1").OutstandingBalance, 1e-6)
	})

	t.Run("rejects", func(t *testing.T) {
		repo, _ := setupRepo(t)
		o := scenarioOrder(t, repo)
		ctx := context.Background()

		_, err := repo.AddPayment(ctx, domain.Payment{OrderID: "missing", Amount: 10})
		require.ErrorIs(t, err, ErrNotFound)
		_, err = repo.AddPayment(ctx, domain.Payment{OrderID: o.OrderID, Amount: 0})
		require.ErrorIs(t, err, ErrValidation)
		_, err = repo.AddPayment(ctx, domain.Payment{PaymentID: "p1", OrderID: o.OrderID, Amount: 10})
		require.NoError(t, err)
		_, err = repo.AddPayment(ctx, domain.Payment{PaymentID: "p1", OrderID: o.OrderID, Amount: 10})
		require.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestDeleteOrder(t *testing.T) {
	t.Run("unsynced restores stock", func(t *testing.T) {
		repo, rec := setupRepo(t)
		o := scenarioOrder(t, repo)

		require.NoError(t, repo.DeleteOrder(context.Background(), o.OrderID))
		require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)
		require.Empty(t, repo.Orders())
		require.Zero(t, mustCustomer(t, repo, "c1").OutstandingBalance)
		require.Contains(t, rec.types(), events.OrderDeleted)
	})

	t.Run("synced is rejected", func(t *testing.T) {
		repo, _ := setupRepo(t)
		ctx := context.Background()
		o := scenarioOrder(t, repo)

		snap, err := repo.PendingSnapshot(domain.SyncUpsert)
		require.NoError(t, err)
		_, err = repo.ApplySync(ctx, snap, nil)
		require.NoError(t, err)

		err = repo.DeleteOrder(ctx, o.OrderID)
		require.ErrorIs(t, err, ErrAlreadySynced)
		require.Len(t, repo.Orders(), 1)
		require.Equal(t, 7, mustItem(t, repo, "x").CurrentStockQty)
	})

	t.Run("missing", func(t *testing.T) {
		repo, _ := setupRepo(t)
		require.ErrorIs(t, repo.DeleteOrder(context.Background(), "missing"), ErrNotFound)
	})
}

func TestUpdateDeliveryStatus(t *testing.T) {
	repo, rec := setupRepo(t)
	ctx := context.Background()
	o := scenarioOrder(t, repo)
	notes := "shop closed"

	o, err := repo.UpdateDeliveryStatus(ctx, o.OrderID, domain.DeliveryCancelled, &notes)
	require.NoError(t, err)
	require.Equal(t, "shop closed", o.DeliveryNotes)
	require.False(t, o.StockDeducted)
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)
	require.Zero(t, mustCustomer(t, repo, "c1").OutstandingBalance)

	_, err = repo.UpdateDeliveryStatus(ctx, o.OrderID, domain.DeliveryFailed, nil)
	require.NoError(t, err)
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)

	o, err = repo.UpdateDeliveryStatus(ctx, o.OrderID, domain.DeliveryShipped, nil)
	require.NoError(t, err)
	require.Equal(t, "shop closed", o.DeliveryNotes)
	require.True(t, o.StockDeducted)
	require.Equal(t, 7, mustItem(t, repo, "x").CurrentStockQty)
	require.InDelta(t, 270.0, mustCustomer(t, repo, "c1").OutstandingBalance, 1e-6)

	_, err = repo.UpdateDeliveryStatus(ctx, o.OrderID, domain.DeliveryDelivered, nil)
	require.NoError(t, err)
	require.Equal(t, 7, mustItem(t, repo, "x").CurrentStockQty)

	_, err = repo.UpdateDeliveryStatus(ctx, o.OrderID, "lost", nil)
	require.ErrorIs(t, err, ErrValidation)
	_, err = repo.UpdateDeliveryStatus(ctx, "missing", domain.DeliveryShipped, nil)
	require.ErrorIs(t, err, ErrNotFound)

	require.Contains(t, rec.types(), events.DeliveryChanged)
}

func TestDeleteCancelledOrderRestoresOnce(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	o := scenarioOrder(t, repo)

	_, err := repo.UpdateDeliveryStatus(ctx, o.OrderID, domain.DeliveryCancelled, nil)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteOrder(ctx, o.OrderID))
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)
}

func TestEditOrder(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	o := scenarioOrder(t, repo)

	// Catalog price changes never touch existing lines.
	x := mustItem(t, repo, "x")
	x.UnitValue = 200
	_, err := repo.SaveItem(ctx, x)
	require.NoError(t, err)

	edited, err := repo.EditOrder(ctx, o.OrderID, OrderDraft{Lines: []DraftLine{{ItemID: "x", Quantity: 5}, {ItemID: "y", Quantity: 1}}})
	require.NoError(t, err)
	require.Equal(t, 100.0, edited.Lines[0].UnitValue)
	require.Equal(t, o.Lines[0].LineID, edited.Lines[0].LineID)
	require.Equal(t, 550.0, edited.GrossTotal)
	require.InDelta(t, 495.0, edited.NetTotal, 1e-6)
	require.Equal(t, 5, mustItem(t, repo, "x").CurrentStockQty)
	require.Equal(t, 4, mustItem(t, repo, "y").CurrentStockQty)
	require.InDelta(t, 495.0, mustCustomer(t, repo, "c1").OutstandingBalance, 1e-6)

	// Released quantity counts towards availability.
	_, err = repo.EditOrder(ctx, o.OrderID, OrderDraft{Lines: []DraftLine{{ItemID: "x", Quantity: 10}}})
	require.NoError(t, err)
	require.Equal(t, 0, mustItem(t, repo, "x").CurrentStockQty)
	require.Equal(t, 5, mustItem(t, repo, "y").CurrentStockQty)

	_, err = repo.EditOrder(ctx, o.OrderID, OrderDraft{Lines: []DraftLine{{ItemID: "x", Quantity: 11}}})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 0, mustItem(t, repo, "x").CurrentStockQty)

	_, err = repo.EditOrder(ctx, o.OrderID, OrderDraft{CustomerID: "c2", Lines: []DraftLine{{ItemID: "x", Quantity: 1}}})
	require.NoError(t, err)
	require.Zero(t, mustCustomer(t, repo, "c1").OutstandingBalance)
	require.InDelta(t, 90.0, mustCustomer(t, repo, "c2").OutstandingBalance, 1e-6)

	_, err = repo.UpdateDeliveryStatus(ctx, o.OrderID, domain.DeliveryShipped, nil)
	require.NoError(t, err)
	_, err = repo.EditOrder(ctx, o.OrderID, OrderDraft{Lines: []DraftLine{{ItemID: "x", Quantity: 2}}})
	require.ErrorIs(t, err, ErrOrderLocked)
}

func TestSaveOrderRecomputesTotals(t *testing.T) {
	repo, _ := setupRepo(t)
	o := scenarioOrder(t, repo)

	o.GrossTotal = 1
	o.NetTotal = 1
	o.PaymentStatus = domain.PaymentPaid
	o.SyncStatus = domain.SyncSynced
	o.StockDeducted = false
	o.Payments = append(o.Payments, domain.Payment{PaymentID: "p", Amount: 20, PaymentType: domain.PaymentCash})

	saved, err := repo.SaveOrder(context.Background(), o)
	require.NoError(t, err)
	require.Equal(t, 300.0, saved.GrossTotal)
	require.InDelta(t, 250.0, saved.BalanceDue, 1e-6)
	require.Equal(t, domain.PaymentPartial, saved.PaymentStatus)
	require.Equal(t, domain.SyncPending, saved.SyncStatus)
	require.True(t, saved.StockDeducted)
	require.Equal(t, 7, mustItem(t, repo, "x").CurrentStockQty)
}

func TestSaveOrderConservesHeldStock(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	o := scenarioOrder(t, repo)
	require.Equal(t, 7, mustItem(t, repo, "x").CurrentStockQty)

	o.Lines[0].Quantity = 5
	saved, err := repo.SaveOrder(ctx, o)
	require.NoError(t, err)
	require.True(t, saved.StockDeducted)
	require.Equal(t, 500.0, saved.GrossTotal)
	require.Equal(t, 5, mustItem(t, repo, "x").CurrentStockQty)

	// The released quantity counts towards availability; a failed save
	// leaves stock and the order untouched.
	saved.Lines[0].Quantity = 11
	_, err = repo.SaveOrder(ctx, saved)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 5, mustItem(t, repo, "x").CurrentStockQty)
	stored, err := repo.Order(o.OrderID)
	require.NoError(t, err)
	require.Equal(t, 5, stored.Lines[0].Quantity)

	require.NoError(t, repo.DeleteOrder(ctx, o.OrderID))
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)
}

func TestSaveOrderToDraftReleasesStock(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()
	o := scenarioOrder(t, repo)

	o.OrderStatus = domain.OrderDraft
	saved, err := repo.SaveOrder(ctx, o)
	require.NoError(t, err)
	require.False(t, saved.StockDeducted)
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)

	require.NoError(t, repo.DeleteOrder(ctx, o.OrderID))
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)
}

func TestEditOrderRepeatedItemLines(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	o, err := repo.FinalizeOrder(ctx, OrderDraft{
		CustomerID: "c1",
		Lines:      []DraftLine{{ItemID: "x", Quantity: 1}, {ItemID: "x", Quantity: 2}},
	})
	require.NoError(t, err)
	require.Len(t, o.Lines, 2)
	require.NotEqual(t, o.Lines[0].LineID, o.Lines[1].LineID)
	require.Equal(t, 7, mustItem(t, repo, "x").CurrentStockQty)

	edited, err := repo.EditOrder(ctx, o.OrderID, OrderDraft{
		Lines: []DraftLine{{ItemID: "x", Quantity: 2}, {ItemID: "x", Quantity: 2}, {ItemID: "x", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, edited.Lines, 3)
	require.Equal(t, o.Lines[0].LineID, edited.Lines[0].LineID)
	require.Equal(t, o.Lines[1].LineID, edited.Lines[1].LineID)
	ids := map[string]bool{}
	for _, l := range edited.Lines {
		ids[l.LineID] = true
	}
	require.Len(t, ids, 3)
	require.Equal(t, 5, mustItem(t, repo, "x").CurrentStockQty)

	require.NoError(t, repo.DeleteOrder(ctx, o.OrderID))
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)
}

func TestDashboardStats(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	scenarioOrder(t, repo)
	_, err := repo.FinalizeOrder(ctx, OrderDraft{CustomerID: "c2", OrderDate: "2026-03-01", Lines: []DraftLine{{ItemID: "y", Quantity: 2}}})
	require.NoError(t, err)
	_, err = repo.FinalizeOrder(ctx, OrderDraft{CustomerID: "c2", OrderDate: "2026-02-28", Lines: []DraftLine{{ItemID: "y", Quantity: 1}}})
	require.NoError(t, err)
	cancelled, err := repo.FinalizeOrder(ctx, OrderDraft{CustomerID: "c2", Lines: []DraftLine{{ItemID: "x", Quantity: 1}}})
	require.NoError(t, err)
	_, err = repo.UpdateDeliveryStatus(ctx, cancelled.OrderID, domain.DeliveryCancelled, nil)
	require.NoError(t, err)

	stats := repo.DashboardStats()
	require.InDelta(t, 270.0, stats.DailySales, 1e-6)
	require.InDelta(t, 370.0, stats.MonthlySales, 1e-6)
	require.Equal(t, 1, stats.CriticalItems)
	require.Equal(t, 4, stats.TotalOrders)
}

func TestSalesReport(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	scenarioOrder(t, repo)
	second, err := repo.FinalizeOrder(ctx, OrderDraft{CustomerID: "c2", OrderDate: "2026-03-01", Lines: []DraftLine{{ItemID: "y", Quantity: 2}}})
	require.NoError(t, err)
	_, err = repo.AddPayment(ctx, domain.Payment{OrderID: second.OrderID, Amount: 40})
	require.NoError(t, err)
	_, err = repo.FinalizeOrder(ctx, OrderDraft{CustomerID: "c2", OrderDate: "2026-04-01", Lines: []DraftLine{{ItemID: "y", Quantity: 1}}})
	require.NoError(t, err)

	report, err := repo.SalesReport("2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.Equal(t, 2, report.OrderCount)
	require.InDelta(t, 370.0, report.TotalRevenue, 1e-6)
	require.InDelta(t, 185.0, report.AvgOrderValue, 1e-6)
	require.InDelta(t, 330.0, report.OutstandingDue, 1e-6)

	require.Len(t, report.Customers, 2)
	require.Equal(t, "c1", report.Customers[0].CustomerID)
	require.Equal(t, "Shop One", report.Customers[0].ShopName)
	require.InDelta(t, 30.0, report.Customers[0].DiscountTotal, 1e-6)
	require.InDelta(t, 40.0, report.Customers[1].PaidTotal, 1e-6)
	require.InDelta(t, 60.0, report.Customers[1].BalanceTotal, 1e-6)

	require.Equal(t, "x", report.TopItems[0].ItemID)
	require.Equal(t, 3, report.TopItems[0].Quantity)
	require.Equal(t, 2, report.TopItems[1].Quantity)

	_, err = repo.SalesReport("2026-03-31", "2026-03-01")
	require.ErrorIs(t, err, ErrValidation)
	_, err = repo.SalesReport("March", "2026-03-01")
	require.ErrorIs(t, err, ErrValidation)
}
