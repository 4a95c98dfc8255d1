package domain

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// PaidTolerance is the balance below which an order counts as paid in full.
// Invoices use the same threshold for the PAID stamp.
const PaidTolerance = 0.5

type OrderStatus string

const (
	OrderDraft     OrderStatus = "draft"
	OrderConfirmed OrderStatus = "confirmed"
	OrderInvoiced  OrderStatus = "invoiced"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderDraft, OrderConfirmed, OrderInvoiced:
		return true
	}
	return false
}

// DeductsStock reports whether an order in this status holds stock.
func (s OrderStatus) DeductsStock() bool {
	return s == OrderConfirmed || s == OrderInvoiced
}

type DeliveryStatus string

const (
	DeliveryPending        DeliveryStatus = "pending"
	DeliveryShipped        DeliveryStatus = "shipped"
	DeliveryOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryDelivered      DeliveryStatus = "delivered"
	DeliveryFailed         DeliveryStatus = "failed"
	DeliveryCancelled      DeliveryStatus = "cancelled"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliveryShipped, DeliveryOutForDelivery, DeliveryDelivered, DeliveryFailed, DeliveryCancelled:
		return true
	}
	return false
}

// Void reports whether the delivery never reached the customer. Void orders
// hold no stock and are left out of balances and sales figures.
func (s DeliveryStatus) Void() bool {
	return s == DeliveryFailed || s == DeliveryCancelled
}

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPartial PaymentStatus = "partial"
	PaymentUnpaid  PaymentStatus = "unpaid"
)

type PaymentType string

const (
	PaymentCash         PaymentType = "cash"
	PaymentCheque       PaymentType = "cheque"
	PaymentBankTransfer PaymentType = "bank_transfer"
	PaymentCredit       PaymentType = "credit"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentCash, PaymentCheque, PaymentBankTransfer, PaymentCredit:
		return true
	}
	return false
}

type Payment struct {
	PaymentID       string      `json:"payment_id"`
	OrderID         string      `json:"order_id"`
	Amount          float64     `json:"amount"`
	PaymentDate     string      `json:"payment_date"`
	PaymentType     PaymentType `json:"payment_type"`
	ReferenceNumber string      `json:"reference_number,omitempty"`
	Notes           string      `json:"notes,omitempty"`
}

func (p Payment) Validate() error {
	if p.Amount <= 0 {
		return fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	}
	if !p.PaymentType.Valid() {
		return fmt.Errorf("%w: unknown payment type %q", ErrValidation, p.PaymentType)
	}
	return nil
}

// OrderLine is a snapshot of the catalog entry at the time of sale.
type OrderLine struct {
	LineID    string  `json:"line_id"`
	OrderID   string  `json:"order_id"`
	ItemID    string  `json:"item_id"`
	ItemName  string  `json:"item_name"`
	Quantity  int     `json:"quantity"`
	UnitValue float64 `json:"unit_value"`
	LineTotal float64 `json:"line_total"`
}

type Order struct {
	OrderID        string         `json:"order_id"`
	CustomerID     string         `json:"customer_id"`
	RepID          string         `json:"rep_id,omitempty"`
	OrderDate      string         `json:"order_date"`
	GrossTotal     float64        `json:"gross_total"`
	DiscountRate   float64        `json:"discount_rate"`
	DiscountValue  float64        `json:"discount_value"`
	NetTotal       float64        `json:"net_total"`
	PaidAmount     float64        `json:"paid_amount"`
	BalanceDue     float64        `json:"balance_due"`
	PaymentStatus  PaymentStatus  `json:"payment_status"`
	Payments       []Payment      `json:"payments"`
	OrderStatus    OrderStatus    `json:"order_status"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	DeliveryNotes  string         `json:"delivery_notes,omitempty"`
	Lines          []OrderLine    `json:"lines"`

	// StockDeducted is set while the line quantities are subtracted from
	// item stock, so restoring never depends on settings that may have
	// changed since.
	StockDeducted bool `json:"stock_deducted"`
	Envelope
}

func (o Order) Validate() error {
	if strings.TrimSpace(o.CustomerID) == "" {
		return fmt.Errorf("%w: customer_id is required", ErrValidation)
	}
	if len(o.Lines) == 0 {
		return fmt.Errorf("%w: order needs at least one line", ErrValidation)
	}
	for _, l := range o.Lines {
		if strings.TrimSpace(l.ItemID) == "" {
			return fmt.Errorf("%w: line %s has no item_id", ErrValidation, l.LineID)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for item %s must be positive", ErrValidation, l.ItemID)
		}
		if l.UnitValue < 0 {
			return fmt.Errorf("%w: unit_value for item %s must not be negative", ErrValidation, l.ItemID)
		}
	}
	if o.DiscountRate < 0 || o.DiscountRate > 1 {
		return fmt.Errorf("%w: discount_rate %v must be between 0 and 1", ErrValidation, o.DiscountRate)
	}
	if !o.OrderStatus.Valid() {
		return fmt.Errorf("%w: unknown order status %q", ErrValidation, o.OrderStatus)
	}
	if !o.DeliveryStatus.Valid() {
		return fmt.Errorf("%w: unknown delivery status %q", ErrValidation, o.DeliveryStatus)
	}
	for _, p := range o.Payments {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeTotals derives every computed money field from the lines, the
// discount rate and the payment log. Caller supplied values are overwritten.
func (o *Order) RecomputeTotals() {
	gross := decimal.Zero
	for i := range o.Lines {
		l := &o.Lines[i]
		total := decimal.NewFromFloat(l.UnitValue).Mul(decimal.NewFromInt(int64(l.Quantity)))
		l.LineTotal = total.InexactFloat64()
		gross = gross.Add(total)
	}
	discount := gross.Mul(decimal.NewFromFloat(o.DiscountRate))
	net := gross.Sub(discount)

	paid := decimal.Zero
	for _, p := range o.Payments {
		paid = paid.Add(decimal.NewFromFloat(p.Amount))
	}
	balance := net.Sub(paid)

	o.GrossTotal = gross.InexactFloat64()
	o.DiscountValue = discount.InexactFloat64()
	o.NetTotal = net.InexactFloat64()
	o.PaidAmount = paid.InexactFloat64()
	o.BalanceDue = balance.InexactFloat64()
	o.PaymentStatus = DerivePaymentStatus(o.BalanceDue, o.PaidAmount)
}

func DerivePaymentStatus(balanceDue, paidAmount float64) PaymentStatus {
	switch {
	case balanceDue <= PaidTolerance:
		return PaymentPaid
	case paidAmount > 0:
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}

// DisplayBalance is the balance floored at zero. BalanceDue keeps the raw
// value so overpayments still show up in reports.
func (o Order) DisplayBalance() float64 {
	if o.BalanceDue < 0 {
		return 0
	}
	return o.BalanceDue
}

// ShouldHoldStock reports whether the lifecycle state calls for the line
// quantities to be deducted.
func (o Order) ShouldHoldStock() bool {
	return o.OrderStatus.DeductsStock() && !o.DeliveryStatus.Void()
}

// Counted reports whether the order contributes to balances and sales.
func (o Order) Counted() bool {
	return o.OrderStatus != OrderDraft && !o.DeliveryStatus.Void()
}

// Quantities sums line quantities per item.
func (o Order) Quantities() map[string]int {
	q := make(map[string]int, len(o.Lines))
	for _, l := range o.Lines {
		q[l.ItemID] += l.Quantity
	}
	return q
}

func (o Order) Clone() Order {
	c := o
	c.Lines = slices.Clone(o.Lines)
	c.Payments = slices.Clone(o.Payments)
	return c
}
