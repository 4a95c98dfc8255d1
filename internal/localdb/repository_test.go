package localdb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"partflow/m/domain"
	"partflow/m/internal/database"
	"partflow/m/internal/events"
	"partflow/m/internal/migrations"
	"partflow/m/internal/seed"
	"partflow/m/internal/store"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

func testSeed() seed.Data {
	synced := domain.Envelope{SyncStatus: domain.SyncSynced}
	return seed.Data{
		Settings: domain.CompanySettings{
			CompanyName:          "Test Parts",
			InvoicePrefix:        "INV-",
			CurrencySymbol:       "Rs.",
			StockTrackingEnabled: true,
			GoogleSheetID:        "sheet-1",
		},
		Customers: []domain.Customer{
			{CustomerID: "c1", ShopName: "Shop One", DiscountRate: 0.1, Status: domain.StatusActive, Envelope: synced},
			{CustomerID: "c2", ShopName: "Shop Two", Status: domain.StatusActive, Envelope: synced},
		},
		Items: []domain.Item{
			{ItemID: "x", ItemDisplayName: "Item X", ItemName: "Item X", VehicleModel: "M1", SourceBrand: "B1",
				UnitValue: 100, CurrentStockQty: 10, LowStockThreshold: 2, Status: domain.StatusActive, Envelope: synced},
			{ItemID: "y", ItemDisplayName: "Item Y", ItemName: "Item Y", VehicleModel: "M2", SourceBrand: "B2",
				UnitValue: 50, CurrentStockQty: 5, LowStockThreshold: 5, Status: domain.StatusActive, Envelope: synced},
		},
	}
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	// Use a per-test in-memory database to avoid cross-test interference
	db, err := database.Connect(fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))
	return store.New(db)
}

func openRepo(t *testing.T, st *store.Store, data seed.Data) (*Repository, *recorder) {
	t.Helper()
	rec := &recorder{}
	repo, err := Open(context.Background(), st, data, zaptest.NewLogger(t),
		WithClock(func() time.Time { return testNow }),
		WithPublisher(rec))
	require.NoError(t, err)
	return repo, rec
}

func setupRepo(t *testing.T, mutate ...func(*seed.Data)) (*Repository, *recorder) {
	t.Helper()
	data := testSeed()
	for _, m := range mutate {
		m(&data)
	}
	return openRepo(t, setupStore(t), data)
}

func mustItem(t *testing.T, r *Repository, id string) domain.Item {
	t.Helper()
	it, err := r.Item(id)
	require.NoError(t, err)
	return it
}

func mustCustomer(t *testing.T, r *Repository, id string) domain.Customer {
	t.Helper()
	c, err := r.Customer(id)
	require.NoError(t, err)
	return c
}

func TestOpenSeedsOnce(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	repo, _ := openRepo(t, st, testSeed())
	require.Len(t, repo.Customers(), 2)
	require.Len(t, repo.Items(), 2)
	require.Empty(t, repo.Orders())
	require.Equal(t, "Test Parts", repo.Settings().CompanyName)

	_, err := repo.SaveCustomer(ctx, domain.Customer{ShopName: "Shop Three"})
	require.NoError(t, err)

	other := testSeed()
	other.Customers = nil
	other.Settings.CompanyName = "Other"
	reopened, _ := openRepo(t, st, other)
	require.Len(t, reopened.Customers(), 3)
	require.Equal(t, "Test Parts", reopened.Settings().CompanyName)
	require.Equal(t, "Shop Three", reopened.Customers()[2].ShopName)
}

func TestSaveMarksPending(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	c := mustCustomer(t, repo, "c1")
	c.Phone = "0771234567"
	c.SyncStatus = domain.SyncSynced
	c.OutstandingBalance = 5000
	saved, err := repo.SaveCustomer(ctx, c)
	require.NoError(t, err)
	require.Equal(t, domain.SyncPending, saved.SyncStatus)
	require.Zero(t, saved.OutstandingBalance)
	require.True(t, saved.UpdatedAt.After(testNow) || saved.UpdatedAt.Equal(testNow))
	require.Equal(t, domain.SyncPending, mustCustomer(t, repo, "c1").SyncStatus)

	it := mustItem(t, repo, "x")
	it.UnitValue = 120
	it.SyncStatus = domain.SyncSynced
	_, err = repo.SaveItem(ctx, it)
	require.NoError(t, err)
	require.Equal(t, domain.SyncPending, mustItem(t, repo, "x").SyncStatus)
	require.Equal(t, 120.0, mustItem(t, repo, "x").UnitValue)

	stats := repo.SyncStats()
	require.Equal(t, 1, stats.PendingCustomers)
	require.Equal(t, 1, stats.PendingItems)
}

func TestSaveCustomerValidation(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	_, err := repo.SaveCustomer(ctx, domain.Customer{ShopName: "Percent Shop", DiscountRate: 10})
	require.ErrorIs(t, err, ErrValidation)
	_, err = repo.SaveCustomer(ctx, domain.Customer{ShopName: ""})
	require.ErrorIs(t, err, ErrValidation)
	require.Len(t, repo.Customers(), 2)

	created, err := repo.SaveCustomer(ctx, domain.Customer{ShopName: "New Shop", DiscountRate: 0.05})
	require.NoError(t, err)
	require.NotEmpty(t, created.CustomerID)
	require.Equal(t, domain.StatusActive, created.Status)
}

func TestSoftDeletes(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.DeleteItem(ctx, "x"))
	require.Len(t, repo.Items(), 2)
	it := mustItem(t, repo, "x")
	require.Equal(t, domain.StatusInactive, it.Status)
	require.Equal(t, domain.SyncPending, it.SyncStatus)

	require.NoError(t, repo.DeactivateCustomer(ctx, "c2"))
	require.Len(t, repo.Customers(), 2)
	c := mustCustomer(t, repo, "c2")
	require.Equal(t, domain.StatusInactive, c.Status)
	require.Equal(t, domain.SyncPending, c.SyncStatus)

	require.ErrorIs(t, repo.DeleteItem(ctx, "missing"), ErrNotFound)
	require.ErrorIs(t, repo.DeactivateCustomer(ctx, "missing"), ErrNotFound)
}

func TestSaveKeepsStoredStatus(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.DeleteItem(ctx, "x"))
	it := mustItem(t, repo, "x")
	it.Status = ""
	it.UnitValue = 150
	saved, err := repo.SaveItem(ctx, it)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInactive, saved.Status)
	require.Equal(t, domain.StatusInactive, mustItem(t, repo, "x").Status)

	require.NoError(t, repo.DeactivateCustomer(ctx, "c2"))
	c := mustCustomer(t, repo, "c2")
	c.Status = ""
	c.Phone = "0111"
	_, err = repo.SaveCustomer(ctx, c)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInactive, mustCustomer(t, repo, "c2").Status)

	// Explicit reactivation still works.
	c.Status = domain.StatusActive
	_, err = repo.SaveCustomer(ctx, c)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, mustCustomer(t, repo, "c2").Status)

	fresh, err := repo.SaveItem(ctx, domain.Item{ItemDisplayName: "Horn", UnitValue: 5})
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, fresh.Status)
}

func TestSaveItemRules(t *testing.T) {
	repo, _ := setupRepo(t, func(d *seed.Data) { d.Settings.AutoSKUEnabled = true })
	ctx := context.Background()

	_, err := repo.SaveItem(ctx, domain.Item{
		ItemDisplayName: "Copy of X", ItemName: "item x", VehicleModel: "m1", SourceBrand: "b1", UnitValue: 1,
	})
	require.ErrorIs(t, err, ErrDuplicate)

	thin, err := repo.SaveItem(ctx, domain.Item{ItemDisplayName: "Brake Pad Thin", ItemName: "Brake Pad Thin", UnitValue: 10})
	require.NoError(t, err)
	require.Equal(t, "BPT01", thin.ItemNumber)

	thick, err := repo.SaveItem(ctx, domain.Item{ItemDisplayName: "Brake Pad Thick", ItemName: "Brake Pad Thick", UnitValue: 12})
	require.NoError(t, err)
	require.Equal(t, "BPT02", thick.ItemNumber)

	manual, err := repo.SaveItem(ctx, domain.Item{ItemDisplayName: "Mirror", ItemNumber: "MIR-9", UnitValue: 12})
	require.NoError(t, err)
	require.Equal(t, "MIR-9", manual.ItemNumber)

	// Existing stock only moves through stock operations.
	x := mustItem(t, repo, "x")
	x.CurrentStockQty = 999
	_, err = repo.SaveItem(ctx, x)
	require.NoError(t, err)
	require.Equal(t, 10, mustItem(t, repo, "x").CurrentStockQty)

	_, err = repo.SaveItem(ctx, domain.Item{ItemDisplayName: "Bad", UnitValue: -1})
	require.ErrorIs(t, err, ErrValidation)
}

func TestStockOperations(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	it, err := repo.UpdateStock(ctx, "x", -4)
	require.NoError(t, err)
	require.Equal(t, 6, it.CurrentStockQty)
	require.Equal(t, domain.SyncPending, it.SyncStatus)
	_, err = repo.UpdateStock(ctx, "missing", 1)
	require.ErrorIs(t, err, ErrNotFound)

	steps := []struct {
		typ  domain.AdjustmentType
		qty  int
		want int
	}{
		{domain.AdjustmentRestock, 5, 11},
		{domain.AdjustmentDamage, 3, 8},
		{domain.AdjustmentCorrection, 2, 6},
		{domain.AdjustmentReturn, 1, 7},
	}
	for _, s := range steps {
		a, err := repo.AddStockAdjustment(ctx, domain.StockAdjustment{ItemID: "x", AdjustmentType: s.typ, Quantity: s.qty, Reason: "count"})
		require.NoError(t, err)
		require.Equal(t, domain.SyncPending, a.SyncStatus)
		require.Equal(t, s.want, mustItem(t, repo, "x").CurrentStockQty)
	}

	_, err = repo.AddStockAdjustment(ctx, domain.StockAdjustment{ItemID: "missing", AdjustmentType: domain.AdjustmentRestock, Quantity: 1})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.AddStockAdjustment(ctx, domain.StockAdjustment{ItemID: "x", AdjustmentType: domain.AdjustmentDamage, Quantity: -2})
	require.ErrorIs(t, err, ErrValidation)

	require.Len(t, repo.StockAdjustments(), 4)
	require.Equal(t, 4, repo.SyncStats().PendingAdjustments)
	require.Equal(t, 7, mustItem(t, repo, "x").CurrentStockQty)
}

func TestSettingsOverwrite(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveSettings(ctx, domain.CompanySettings{CompanyName: "Renamed"}))
	got := repo.Settings()
	require.Equal(t, "Renamed", got.CompanyName)
	require.Empty(t, got.InvoicePrefix)
	require.False(t, got.StockTrackingEnabled)
}

func TestReplaceItems(t *testing.T) {
	st := setupStore(t)
	repo, _ := openRepo(t, st, testSeed())
	ctx := context.Background()

	require.NoError(t, repo.ReplaceItems(ctx, []domain.Item{{ItemID: "z", ItemDisplayName: "Item Z"}}))
	require.Len(t, repo.Items(), 1)

	reopened, _ := openRepo(t, st, testSeed())
	require.Len(t, reopened.Items(), 1)
	require.Equal(t, "z", reopened.Items()[0].ItemID)
}
