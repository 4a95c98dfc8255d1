package localdb

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"partflow/m/domain"
	"partflow/m/internal/store"
)

// batch stages the records one operation rewrites. Reads through the batch
// see staged values first. Nothing reaches the cache until commit has
// written every staged record in one transaction.
type batch struct {
	r *Repository

	items     map[string]domain.Item
	itemIDs   []string
	customers map[string]domain.Customer
	custIDs   []string
	orders    map[string]domain.Order
	orderIDs  []string
	deleted   map[string]bool
	adjust    []domain.StockAdjustment
}

func (r *Repository) newBatch() *batch {
	return &batch{
		r:         r,
		items:     map[string]domain.Item{},
		customers: map[string]domain.Customer{},
		orders:    map[string]domain.Order{},
		deleted:   map[string]bool{},
	}
}

func (b *batch) item(id string) (domain.Item, bool) {
	if it, ok := b.items[id]; ok {
		return it, true
	}
	if i := b.r.itemIndex(id); i >= 0 {
		return b.r.items[i], true
	}
	return domain.Item{}, false
}

func (b *batch) putItem(it domain.Item) {
	if _, ok := b.items[it.ItemID]; !ok {
		b.itemIDs = append(b.itemIDs, it.ItemID)
	}
	b.items[it.ItemID] = it
}

func (b *batch) customer(id string) (domain.Customer, bool) {
	if c, ok := b.customers[id]; ok {
		return c, true
	}
	if i := b.r.customerIndex(id); i >= 0 {
		return b.r.customers[i], true
	}
	return domain.Customer{}, false
}

func (b *batch) putCustomer(c domain.Customer) {
	if _, ok := b.customers[c.CustomerID]; !ok {
		b.custIDs = append(b.custIDs, c.CustomerID)
	}
	b.customers[c.CustomerID] = c
}

func (b *batch) putOrder(o domain.Order) {
	if _, ok := b.orders[o.OrderID]; !ok {
		b.orderIDs = append(b.orderIDs, o.OrderID)
	}
	b.orders[o.OrderID] = o
}

func (b *batch) deleteOrder(id string) {
	b.deleted[id] = true
}

func (b *batch) addAdjustment(a domain.StockAdjustment) {
	b.adjust = append(b.adjust, a)
}

// adjustStock is the single place item quantities change. No lower bound is
// enforced here; callers check availability first.
func (b *batch) adjustStock(itemID string, delta int) error {
	it, ok := b.item(itemID)
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	it.CurrentStockQty += delta
	it.Touch(b.r.now())
	b.putItem(it)
	return nil
}

// liveOrders is the order collection as it will look after commit.
func (b *batch) liveOrders() []domain.Order {
	out := make([]domain.Order, 0, len(b.r.orders)+len(b.orders))
	seen := make(map[string]bool, len(b.r.orders))
	for _, o := range b.r.orders {
		seen[o.OrderID] = true
		if b.deleted[o.OrderID] {
			continue
		}
		if staged, ok := b.orders[o.OrderID]; ok {
			out = append(out, staged)
			continue
		}
		out = append(out, o)
	}
	for _, id := range b.orderIDs {
		if !seen[id] && !b.deleted[id] {
			out = append(out, b.orders[id])
		}
	}
	return out
}

// recalcBalance refreshes a customer's outstanding balance from its counted
// orders. The customer is only re-marked pending when the value moves.
func (b *batch) recalcBalance(customerID string) {
	c, ok := b.customer(customerID)
	if !ok {
		return
	}
	due := decimal.Zero
	for _, o := range b.liveOrders() {
		if o.CustomerID == customerID && o.Counted() {
			due = due.Add(decimal.NewFromFloat(o.BalanceDue))
		}
	}
	total := due.InexactFloat64()
	if c.OutstandingBalance == total {
		return
	}
	c.OutstandingBalance = total
	c.Touch(b.r.now())
	b.putCustomer(c)
}

func (b *batch) commit(ctx context.Context, op string) error {
	err := b.r.store.Tx(ctx, op, func(tx *store.Tx) error {
		for _, id := range b.itemIDs {
			if err := tx.PutRecord(store.Items, id, b.items[id]); err != nil {
				return err
			}
		}
		for _, id := range b.custIDs {
			if err := tx.PutRecord(store.Customers, id, b.customers[id]); err != nil {
				return err
			}
		}
		for _, id := range b.orderIDs {
			if b.deleted[id] {
				continue
			}
			if err := tx.PutRecord(store.Orders, id, b.orders[id]); err != nil {
				return err
			}
		}
		for id := range b.deleted {
			if err := tx.DeleteRecord(store.Orders, id); err != nil {
				return err
			}
		}
		for _, a := range b.adjust {
			if err := tx.PutRecord(store.StockAdjustments, a.AdjustmentID, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.apply()
	return nil
}

func (b *batch) apply() {
	r := b.r
	for _, id := range b.itemIDs {
		if i := r.itemIndex(id); i >= 0 {
			r.items[i] = b.items[id]
		} else {
			r.items = append(r.items, b.items[id])
		}
	}
	for _, id := range b.custIDs {
		if i := r.customerIndex(id); i >= 0 {
			r.customers[i] = b.customers[id]
		} else {
			r.customers = append(r.customers, b.customers[id])
		}
	}
	for _, id := range b.orderIDs {
		if b.deleted[id] {
			continue
		}
		if i := r.orderIndex(id); i >= 0 {
			r.orders[i] = b.orders[id]
		} else {
			r.orders = append(r.orders, b.orders[id])
		}
	}
	if len(b.deleted) > 0 {
		r.orders = slices.DeleteFunc(r.orders, func(o domain.Order) bool {
			return b.deleted[o.OrderID]
		})
	}
	r.adjustments = append(r.adjustments, b.adjust...)
	r.refreshPendingGauge()
}
