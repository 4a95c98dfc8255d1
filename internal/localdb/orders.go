package localdb

import (
	"context"
	"fmt"
	"strings"

	"partflow/m/domain"
	"partflow/m/internal/events"
	"partflow/m/internal/util"
)

// DraftLine is one requested line of a new or edited order.
type DraftLine struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// OrderDraft is what checkout hands to FinalizeOrder. OrderID is optional
// and doubles as an idempotency key: finalizing the same id twice fails with
// ErrDuplicate instead of deducting stock again.
type OrderDraft struct {
	OrderID       string             `json:"order_id,omitempty"`
	CustomerID    string             `json:"customer_id"`
	RepID         string             `json:"rep_id,omitempty"`
	OrderDate     string             `json:"order_date,omitempty"`
	DiscountRate  *float64           `json:"discount_rate,omitempty"`
	Lines         []DraftLine        `json:"lines"`
	Payment       *domain.Payment    `json:"payment,omitempty"`
	Status        domain.OrderStatus `json:"order_status,omitempty"`
	DeliveryNotes string             `json:"delivery_notes,omitempty"`
}

// Orders returns every order in stored order.
func (r *Repository) Orders() []domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Order, len(r.orders))
	for i, o := range r.orders {
		out[i] = o.Clone()
	}
	return out
}

func (r *Repository) Order(id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.orderIndex(id)
	if i < 0 {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return r.orders[i].Clone(), nil
}

// FinalizeOrder validates the draft against the catalog, snapshots item
// names and prices into lines, derives totals and deducts stock. Stock and
// order are written in one transaction.
func (r *Repository) FinalizeOrder(ctx context.Context, d OrderDraft) (domain.Order, error) {
	var saved domain.Order
	err := r.withLock(func() error {
		if d.OrderID != "" && r.orderIndex(d.OrderID) >= 0 {
			return fmt.Errorf("%w: order %s already exists", ErrDuplicate, d.OrderID)
		}
		ci := r.customerIndex(d.CustomerID)
		if ci < 0 {
			return fmt.Errorf("customer %s: %w", d.CustomerID, ErrNotFound)
		}
		customer := r.customers[ci]

		o := domain.Order{
			OrderID:        d.OrderID,
			CustomerID:     d.CustomerID,
			RepID:          d.RepID,
			OrderDate:      d.OrderDate,
			DiscountRate:   customer.DiscountRate,
			OrderStatus:    d.Status,
			DeliveryStatus: domain.DeliveryPending,
			DeliveryNotes:  d.DeliveryNotes,
			Payments:       []domain.Payment{},
		}
		if o.OrderID == "" {
			o.OrderID = util.NewID("")
		}
		if o.OrderDate == "" {
			o.OrderDate = r.today()
		}
		if o.OrderStatus == "" {
			o.OrderStatus = domain.OrderConfirmed
		}
		if d.DiscountRate != nil {
			o.DiscountRate = *d.DiscountRate
		}

		b := r.newBatch()
		lines, err := r.buildLines(b, o.OrderID, d.Lines, nil)
		if err != nil {
			return err
		}
		o.Lines = lines

		if d.Payment != nil {
			p, err := r.preparePayment(*d.Payment, o.OrderID)
			if err != nil {
				return err
			}
			o.Payments = append(o.Payments, p)
		}

		if err := r.holdStock(b, &o); err != nil {
			return err
		}
		if err := r.stageOrder(b, &o); err != nil {
			return err
		}
		if err := b.commit(ctx, "finalize_order"); err != nil {
			return err
		}
		saved = o.Clone()
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	r.publish(ctx, orderEvent(events.OrderCreated, saved))
	return saved, nil
}

// EditOrder replaces the lines and header of an order that has not been
// synced and has not left for delivery. Held stock for the old lines is
// released before the new lines are checked and deducted.
func (r *Repository) EditOrder(ctx context.Context, id string, d OrderDraft) (domain.Order, error) {
	var saved domain.Order
	err := r.withLock(func() error {
		i := r.orderIndex(id)
		if i < 0 {
			return fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		old := r.orders[i].Clone()
		if old.SyncStatus == domain.SyncSynced || old.DeliveryStatus != domain.DeliveryPending {
			return fmt.Errorf("%w: order %s is %s with delivery %s", ErrOrderLocked, id, old.SyncStatus, old.DeliveryStatus)
		}

		o := old.Clone()
		if d.CustomerID != "" && d.CustomerID != old.CustomerID {
			if r.customerIndex(d.CustomerID) < 0 {
				return fmt.Errorf("customer %s: %w", d.CustomerID, ErrNotFound)
			}
			o.CustomerID = d.CustomerID
		}
		if d.OrderDate != "" {
			o.OrderDate = d.OrderDate
		}
		if d.DiscountRate != nil {
			o.DiscountRate = *d.DiscountRate
		}
		if d.Status != "" {
			o.OrderStatus = d.Status
		}
		if d.DeliveryNotes != "" {
			o.DeliveryNotes = d.DeliveryNotes
		}

		b := r.newBatch()
		if err := r.releaseStock(b, &o); err != nil {
			return err
		}
		lines, err := r.buildLines(b, o.OrderID, d.Lines, old.Lines)
		if err != nil {
			return err
		}
		o.Lines = lines
		if d.Payment != nil {
			p, err := r.preparePayment(*d.Payment, o.OrderID)
			if err != nil {
				return err
			}
			o.Payments = append(o.Payments, p)
		}
		if err := r.holdStock(b, &o); err != nil {
			return err
		}
		if err := r.stageOrder(b, &o); err != nil {
			return err
		}
		if o.CustomerID != old.CustomerID {
			b.recalcBalance(old.CustomerID)
		}
		if err := b.commit(ctx, "edit_order"); err != nil {
			return err
		}
		saved = o.Clone()
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	r.publish(ctx, orderEvent(events.OrderUpdated, saved))
	return saved, nil
}

// buildLines turns requested lines into snapshots. Lines for items already
// on the order keep their original id, name and price. Each previous line is
// reused at most once, in order, so repeated lines for one item stay distinct.
func (r *Repository) buildLines(b *batch, orderID string, req []DraftLine, previous []domain.OrderLine) ([]domain.OrderLine, error) {
	if len(req) == 0 {
		return nil, fmt.Errorf("%w: order needs at least one line", ErrValidation)
	}
	kept := make(map[string][]domain.OrderLine, len(previous))
	for _, l := range previous {
		kept[l.ItemID] = append(kept[l.ItemID], l)
	}

	lines := make([]domain.OrderLine, 0, len(req))
	for _, l := range req {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for item %s must be positive", ErrValidation, l.ItemID)
		}
		if queue := kept[l.ItemID]; len(queue) > 0 {
			prev := queue[0]
			kept[l.ItemID] = queue[1:]
			prev.Quantity = l.Quantity
			lines = append(lines, prev)
			continue
		}
		it, ok := b.item(l.ItemID)
		if !ok {
			return nil, fmt.Errorf("item %s: %w", l.ItemID, ErrNotFound)
		}
		if it.Status == domain.StatusInactive {
			return nil, fmt.Errorf("%w: item %s is inactive", ErrValidation, l.ItemID)
		}
		lines = append(lines, domain.OrderLine{
			LineID:    util.NewID(""),
			OrderID:   orderID,
			ItemID:    it.ItemID,
			ItemName:  lineName(it),
			Quantity:  l.Quantity,
			UnitValue: it.UnitValue,
		})
	}
	return lines, nil
}

func lineName(it domain.Item) string {
	parts := []string{}
	for _, p := range []string{it.ItemName, it.VehicleModel, it.SourceBrand} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return it.ItemDisplayName
	}
	return strings.Join(parts, " - ")
}

func (r *Repository) preparePayment(p domain.Payment, orderID string) (domain.Payment, error) {
	if p.PaymentID == "" {
		p.PaymentID = util.NewID("pay")
	}
	if p.PaymentDate == "" {
		p.PaymentDate = r.today()
	}
	if p.PaymentType == "" {
		p.PaymentType = domain.PaymentCash
	}
	p.OrderID = orderID
	if err := p.Validate(); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

// holdStock deducts the order's quantities when its state calls for it and
// stock tracking is on. Availability is checked first: against the quantity
// on hand with tracking, against the out of stock flag without.
func (r *Repository) holdStock(b *batch, o *domain.Order) error {
	if o.StockDeducted || !o.ShouldHoldStock() {
		return nil
	}
	tracking := r.settings.StockTrackingEnabled
	qty := o.Quantities()
	checked := make(map[string]bool, len(qty))
	for _, l := range o.Lines {
		if checked[l.ItemID] {
			continue
		}
		checked[l.ItemID] = true
		it, ok := b.item(l.ItemID)
		if !ok {
			return fmt.Errorf("item %s: %w", l.ItemID, ErrNotFound)
		}
		if !it.Available(qty[l.ItemID], tracking) {
			return fmt.Errorf("%w: %s has %d on hand, %d requested",
				ErrInsufficientStock, it.ItemDisplayName, it.CurrentStockQty, qty[l.ItemID])
		}
	}
	if !tracking {
		return nil
	}
	for _, l := range o.Lines {
		if err := b.adjustStock(l.ItemID, -l.Quantity); err != nil {
			return err
		}
	}
	o.StockDeducted = true
	return nil
}

// releaseStock puts back whatever the order holds.
func (r *Repository) releaseStock(b *batch, o *domain.Order) error {
	if !o.StockDeducted {
		return nil
	}
	for _, l := range o.Lines {
		if err := b.adjustStock(l.ItemID, l.Quantity); err != nil {
			return err
		}
	}
	o.StockDeducted = false
	return nil
}

// stageOrder applies the invariants every saved order must satisfy and
// stages it together with its customer's new balance.
func (r *Repository) stageOrder(b *batch, o *domain.Order) error {
	if o.DeliveryStatus == "" {
		o.DeliveryStatus = domain.DeliveryPending
	}
	if o.OrderStatus == "" {
		o.OrderStatus = domain.OrderConfirmed
	}
	if o.Payments == nil {
		o.Payments = []domain.Payment{}
	}
	for i := range o.Lines {
		o.Lines[i].OrderID = o.OrderID
		if o.Lines[i].LineID == "" {
			o.Lines[i].LineID = util.NewID("")
		}
	}
	o.RecomputeTotals()
	if err := o.Validate(); err != nil {
		return err
	}
	if _, ok := b.customer(o.CustomerID); !ok {
		return fmt.Errorf("customer %s: %w", o.CustomerID, ErrNotFound)
	}
	if i := r.orderIndex(o.OrderID); i >= 0 {
		o.CreatedAt = r.orders[i].CreatedAt
	}
	o.Touch(r.now())
	b.putOrder(*o)
	b.recalcBalance(o.CustomerID)
	return nil
}

// SaveOrder upserts an order as given. Totals and payment status are always
// recomputed. An order that never held stock is saved without touching it.
// When the stored order holds stock, its old lines are released and the new
// lines are checked and held again, so the order always holds exactly what
// its lines say.
func (r *Repository) SaveOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	o = o.Clone()
	if o.OrderID == "" {
		o.OrderID = util.NewID("")
	}
	if o.OrderStatus == "" {
		o.OrderStatus = domain.OrderConfirmed
	}
	if o.DeliveryStatus == "" {
		o.DeliveryStatus = domain.DeliveryPending
	}
	var saved domain.Order
	err := r.withLock(func() error {
		o.StockDeducted = false
		prevCustomer := ""
		b := r.newBatch()
		if i := r.orderIndex(o.OrderID); i >= 0 {
			prev := r.orders[i].Clone()
			prevCustomer = prev.CustomerID
			if prev.StockDeducted {
				if err := r.releaseStock(b, &prev); err != nil {
					return err
				}
				if err := r.holdStock(b, &o); err != nil {
					return err
				}
			}
		}

		if err := r.stageOrder(b, &o); err != nil {
			return err
		}
		if prevCustomer != "" && prevCustomer != o.CustomerID {
			b.recalcBalance(prevCustomer)
		}
		if err := b.commit(ctx, "save_order"); err != nil {
			return err
		}
		saved = o.Clone()
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	r.publish(ctx, orderEvent(events.OrderUpdated, saved))
	return saved, nil
}

// AddPayment appends a payment to the order's log and re-derives the paid
// amount, balance and payment status.
func (r *Repository) AddPayment(ctx context.Context, p domain.Payment) (domain.Order, error) {
	var saved domain.Order
	err := r.withLock(func() error {
		i := r.orderIndex(p.OrderID)
		if i < 0 {
			return fmt.Errorf("order %s: %w", p.OrderID, ErrNotFound)
		}
		o := r.orders[i].Clone()
		for _, existing := range o.Payments {
			if p.PaymentID != "" && existing.PaymentID == p.PaymentID {
				return fmt.Errorf("%w: payment %s already recorded", ErrDuplicate, p.PaymentID)
			}
		}
		p, err := r.preparePayment(p, o.OrderID)
		if err != nil {
			return err
		}
		o.Payments = append(o.Payments, p)

		b := r.newBatch()
		if err := r.stageOrder(b, &o); err != nil {
			return err
		}
		if err := b.commit(ctx, "add_payment"); err != nil {
			return err
		}
		saved = o.Clone()
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	ev := orderEvent(events.PaymentAdded, saved)
	ev.Amount = fmt.Sprintf("%.2f", p.Amount)
	r.publish(ctx, ev)
	return saved, nil
}

// UpdateDeliveryStatus moves the delivery lifecycle. Entering failed or
// cancelled releases held stock; leaving it takes the stock again. Notes are
// only replaced when given.
func (r *Repository) UpdateDeliveryStatus(ctx context.Context, id string, status domain.DeliveryStatus, notes *string) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown delivery status %q", ErrValidation, status)
	}
	var saved domain.Order
	err := r.withLock(func() error {
		i := r.orderIndex(id)
		if i < 0 {
			return fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		o := r.orders[i].Clone()
		previous := o.DeliveryStatus
		o.DeliveryStatus = status
		if notes != nil {
			o.DeliveryNotes = *notes
		}

		b := r.newBatch()
		switch {
		case status.Void():
			if err := r.releaseStock(b, &o); err != nil {
				return err
			}
		case previous.Void():
			if err := r.holdStock(b, &o); err != nil {
				return err
			}
		}
		if err := r.stageOrder(b, &o); err != nil {
			return err
		}
		if err := b.commit(ctx, "delivery_status"); err != nil {
			return err
		}
		saved = o.Clone()
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	ev := orderEvent(events.DeliveryChanged, saved)
	ev.Status = string(status)
	r.publish(ctx, ev)
	return saved, nil
}

// DeleteOrder removes an order that the remote has not acknowledged yet and
// returns any stock it holds.
func (r *Repository) DeleteOrder(ctx context.Context, id string) error {
	var removed domain.Order
	err := r.withLock(func() error {
		i := r.orderIndex(id)
		if i < 0 {
			return fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		o := r.orders[i].Clone()
		if o.SyncStatus == domain.SyncSynced {
			return fmt.Errorf("order %s: %w", id, ErrAlreadySynced)
		}

		b := r.newBatch()
		if err := r.releaseStock(b, &o); err != nil {
			return err
		}
		b.deleteOrder(id)
		b.recalcBalance(o.CustomerID)
		if err := b.commit(ctx, "delete_order"); err != nil {
			return err
		}
		removed = o
		return nil
	})
	if err != nil {
		return err
	}
	r.publish(ctx, orderEvent(events.OrderDeleted, removed))
	return nil
}

func orderEvent(eventType string, o domain.Order) events.Event {
	return events.Event{
		EventType: eventType,
		EntityID:  o.OrderID,
		Amount:    fmt.Sprintf("%.2f", o.NetTotal),
		Status:    string(o.PaymentStatus),
		Data:      o,
	}
}
