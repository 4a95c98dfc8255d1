package localdb

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"partflow/m/domain"
	"partflow/m/internal/store"
	"partflow/m/internal/util"
)

// Snapshot is the outbound half of a sync: the records to push and the
// version of each one at the moment they were selected.
type Snapshot struct {
	Mode      domain.SyncMode
	SheetID   string
	Customers []domain.Customer
	Orders    []domain.Order
	Items     []domain.Item

	adjustments map[string]time.Time
	stamps      map[string]time.Time
}

func stampKey(collection, id string) string {
	return collection + "/" + id
}

// PendingSnapshot selects what a sync pushes. Upsert sends pending records
// only. Overwrite sends every customer and item; orders are always limited
// to pending ones.
func (r *Repository) PendingSnapshot(mode domain.SyncMode) (Snapshot, error) {
	if !mode.Valid() {
		return Snapshot{}, fmt.Errorf("%w: unknown sync mode %q", ErrValidation, mode)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Mode:        mode,
		SheetID:     r.settings.GoogleSheetID,
		Customers:   []domain.Customer{},
		Orders:      []domain.Order{},
		Items:       []domain.Item{},
		adjustments: map[string]time.Time{},
		stamps:      map[string]time.Time{},
	}
	all := mode == domain.SyncOverwrite
	for _, c := range r.customers {
		if all || c.Pending() {
			snap.Customers = append(snap.Customers, c)
			snap.stamps[stampKey(store.Customers, c.CustomerID)] = c.UpdatedAt
		}
	}
	for _, it := range r.items {
		if all || it.Pending() {
			snap.Items = append(snap.Items, it)
			snap.stamps[stampKey(store.Items, it.ItemID)] = it.UpdatedAt
		}
	}
	for _, o := range r.orders {
		if o.Pending() {
			snap.Orders = append(snap.Orders, o.Clone())
			snap.stamps[stampKey(store.Orders, o.OrderID)] = o.UpdatedAt
		}
	}
	for _, a := range r.adjustments {
		if a.Pending() {
			snap.adjustments[a.AdjustmentID] = a.UpdatedAt
		}
	}
	return snap, nil
}

// SyncResult is what ApplySync changed locally.
type SyncResult struct {
	SyncedCustomers int
	SyncedOrders    int
	SyncedItems     int
	PulledItems     int
	GeneratedSKUs   int
	SyncedAt        time.Time
}

// unchanged reports whether a record still carries the version the snapshot
// pushed. Records edited while the remote call was in flight stay pending.
func (s Snapshot) unchanged(collection, id string, env domain.Envelope) bool {
	at, ok := s.stamps[stampKey(collection, id)]
	return ok && env.Pending() && env.UpdatedAt.Equal(at)
}

// ApplySync commits a successful remote sync. Snapshot records that were not
// modified since selection become synced. A non-nil pulled slice replaces the
// whole item collection; nil means the remote sent no inventory, in which
// case pushed items are marked synced instead. Everything is written in one
// transaction together with the last sync time.
func (r *Repository) ApplySync(ctx context.Context, snap Snapshot, pulled []domain.Item) (SyncResult, error) {
	var res SyncResult
	err := r.withLock(func() error {
		now := r.now()
		res.SyncedAt = now

		customers := slices.Clone(r.customers)
		var custRecs []store.Record
		for i := range customers {
			c := &customers[i]
			if snap.unchanged(store.Customers, c.CustomerID, c.Envelope) {
				c.SyncStatus = domain.SyncSynced
				custRecs = append(custRecs, store.Record{ID: c.CustomerID, Doc: *c})
			}
		}
		orders := slices.Clone(r.orders)
		var orderRecs []store.Record
		for i := range orders {
			o := &orders[i]
			if snap.unchanged(store.Orders, o.OrderID, o.Envelope) {
				o.SyncStatus = domain.SyncSynced
				orderRecs = append(orderRecs, store.Record{ID: o.OrderID, Doc: *o})
			}
		}
		adjustments := slices.Clone(r.adjustments)
		var adjRecs []store.Record
		for i := range adjustments {
			a := &adjustments[i]
			at, ok := snap.adjustments[a.AdjustmentID]
			if ok && a.Pending() && a.UpdatedAt.Equal(at) {
				a.SyncStatus = domain.SyncSynced
				adjRecs = append(adjRecs, store.Record{ID: a.AdjustmentID, Doc: *a})
			}
		}

		items := slices.Clone(r.items)
		var itemRecs []store.Record
		if pulled != nil {
			items = r.preparePulledItems(pulled, now, &res)
		} else {
			for i := range items {
				it := &items[i]
				if snap.unchanged(store.Items, it.ItemID, it.Envelope) {
					it.SyncStatus = domain.SyncSynced
					itemRecs = append(itemRecs, store.Record{ID: it.ItemID, Doc: *it})
				}
			}
			res.SyncedItems = len(itemRecs)
		}

		err := r.store.Tx(ctx, "apply_sync", func(tx *store.Tx) error {
			for _, set := range []struct {
				collection string
				recs       []store.Record
			}{
				{store.Customers, custRecs},
				{store.Orders, orderRecs},
				{store.StockAdjustments, adjRecs},
				{store.Items, itemRecs},
			} {
				for _, rec := range set.recs {
					if err := tx.PutRecord(set.collection, rec.ID, rec.Doc); err != nil {
						return err
					}
				}
			}
			if pulled != nil {
				if err := r.replaceItemsTx(tx, items); err != nil {
					return err
				}
			}
			return tx.PutValue(store.KeyLastSync, now)
		})
		if err != nil {
			return err
		}

		r.customers = customers
		r.orders = orders
		r.adjustments = adjustments
		r.items = items
		r.lastSync = &now
		r.refreshPendingGauge()

		res.SyncedCustomers = len(custRecs)
		res.SyncedOrders = len(orderRecs)
		return nil
	})
	return res, err
}

// preparePulledItems fills defaults on remote inventory and, when auto SKU is
// on, numbers items that arrived without one. Numbered items are marked
// pending so the new SKU is pushed back on the next sync.
func (r *Repository) preparePulledItems(pulled []domain.Item, now time.Time, res *SyncResult) []domain.Item {
	items := slices.Clone(pulled)
	res.PulledItems = len(items)

	existing := make([]string, 0, len(items))
	for _, it := range items {
		if n := strings.TrimSpace(it.ItemNumber); n != "" {
			existing = append(existing, n)
		}
	}
	for i := range items {
		it := &items[i]
		if it.ItemID == "" {
			it.ItemID = util.NewID("item")
		}
		if it.Status == "" {
			it.Status = domain.StatusActive
		}
		if it.SyncStatus == "" {
			it.SyncStatus = domain.SyncSynced
		}
		if !r.settings.AutoSKUEnabled || strings.TrimSpace(it.ItemNumber) != "" {
			continue
		}
		sku := util.GenerateSKU(it.ItemDisplayName, existing)
		if sku == "" {
			continue
		}
		it.ItemNumber = sku
		it.Touch(now)
		existing = append(existing, sku)
		res.GeneratedSKUs++
	}
	return items
}
