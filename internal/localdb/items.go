package localdb

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"partflow/m/domain"
	"partflow/m/internal/store"
	"partflow/m/internal/util"
)

// Items returns every item, inactive ones included, in stored order.
func (r *Repository) Items() []domain.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}

func (r *Repository) Item(id string) (domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.itemIndex(id)
	if i < 0 {
		return domain.Item{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return r.items[i], nil
}

// SaveItem inserts or replaces an item and marks it pending. The stock
// quantity is taken from the caller only for new items; existing stock moves
// through UpdateStock and adjustments. An empty status keeps the stored one. Active items may not repeat the same
// name, vehicle model and brand.
func (r *Repository) SaveItem(ctx context.Context, it domain.Item) (domain.Item, error) {
	if err := it.Validate(); err != nil {
		return domain.Item{}, err
	}
	if it.ItemID == "" {
		it.ItemID = util.NewID("item")
	}

	err := r.withLock(func() error {
		now := r.now()
		it.CreatedAt = now
		if i := r.itemIndex(it.ItemID); i >= 0 {
			it.CreatedAt = r.items[i].CreatedAt
			it.CurrentStockQty = r.items[i].CurrentStockQty
			if it.Status == "" {
				it.Status = r.items[i].Status
			}
		}
		if it.Status == "" {
			it.Status = domain.StatusActive
		}
		if err := r.checkDuplicateItem(it); err != nil {
			return err
		}
		if r.settings.AutoSKUEnabled && strings.TrimSpace(it.ItemNumber) == "" {
			it.ItemNumber = util.GenerateSKU(it.ItemDisplayName, r.itemNumbers())
		}
		it.Touch(now)

		b := r.newBatch()
		b.putItem(it)
		return b.commit(ctx, "save_item")
	})
	if err != nil {
		return domain.Item{}, err
	}
	return it, nil
}

func (r *Repository) checkDuplicateItem(it domain.Item) error {
	if it.Status != domain.StatusActive || strings.TrimSpace(it.ItemName) == "" {
		return nil
	}
	for _, other := range r.items {
		if other.ItemID == it.ItemID || other.Status != domain.StatusActive {
			continue
		}
		if other.SameDefinition(it) {
			return fmt.Errorf("%w: item %q for %s / %s already exists as %s",
				ErrDuplicate, it.ItemName, it.VehicleModel, it.SourceBrand, other.ItemID)
		}
	}
	return nil
}

func (r *Repository) itemNumbers() []string {
	out := make([]string, 0, len(r.items))
	for _, it := range r.items {
		if n := strings.TrimSpace(it.ItemNumber); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// DeleteItem is a soft delete: the item stays in the collection as inactive.
func (r *Repository) DeleteItem(ctx context.Context, id string) error {
	return r.withLock(func() error {
		i := r.itemIndex(id)
		if i < 0 {
			return fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		it := r.items[i]
		it.Status = domain.StatusInactive
		it.Touch(r.now())

		b := r.newBatch()
		b.putItem(it)
		return b.commit(ctx, "delete_item")
	})
}

// UpdateStock adds a signed delta to an item's quantity on hand.
func (r *Repository) UpdateStock(ctx context.Context, id string, delta int) (domain.Item, error) {
	var out domain.Item
	err := r.withLock(func() error {
		b := r.newBatch()
		if err := b.adjustStock(id, delta); err != nil {
			return err
		}
		out = b.items[id]
		return b.commit(ctx, "update_stock")
	})
	return out, err
}

// StockAdjustments returns the adjustment log in recorded order.
func (r *Repository) StockAdjustments() []domain.StockAdjustment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.adjustments)
}

// AddStockAdjustment records the adjustment and applies its effect to the
// item in the same transaction.
func (r *Repository) AddStockAdjustment(ctx context.Context, a domain.StockAdjustment) (domain.StockAdjustment, error) {
	effect, err := a.Effect()
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	if a.AdjustmentID == "" {
		a.AdjustmentID = util.NewID("adj")
	}

	err = r.withLock(func() error {
		if slices.ContainsFunc(r.adjustments, func(x domain.StockAdjustment) bool {
			return x.AdjustmentID == a.AdjustmentID
		}) {
			return fmt.Errorf("%w: adjustment %s already recorded", ErrDuplicate, a.AdjustmentID)
		}
		a.Touch(r.now())

		b := r.newBatch()
		if err := b.adjustStock(a.ItemID, effect.Delta()); err != nil {
			return err
		}
		b.addAdjustment(a)
		return b.commit(ctx, "stock_adjustment")
	})
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	return a, nil
}

// ReplaceItems swaps the whole local catalog for a remote inventory snapshot.
func (r *Repository) ReplaceItems(ctx context.Context, items []domain.Item) error {
	return r.withLock(func() error {
		err := r.store.Tx(ctx, "replace_items", func(tx *store.Tx) error {
			return r.replaceItemsTx(tx, items)
		})
		if err != nil {
			return err
		}
		r.items = slices.Clone(items)
		r.refreshPendingGauge()
		return nil
	})
}

// replaceItemsTx writes items as the complete catalog inside tx. The caller
// holds the lock and swaps r.items once tx commits.
func (r *Repository) replaceItemsTx(tx *store.Tx, items []domain.Item) error {
	r.log.Info("replacing local inventory",
		zap.Int("before", len(r.items)),
		zap.Int("after", len(items)))
	return tx.ReplaceCollection(store.Items, itemRecords(items))
}

func itemRecords(items []domain.Item) []store.Record {
	recs := make([]store.Record, len(items))
	for i, it := range items {
		recs[i] = store.Record{ID: it.ItemID, Doc: it}
	}
	return recs
}
