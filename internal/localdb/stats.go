package localdb

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"partflow/m/domain"
)

// DashboardStats aggregates today's and this month's sales from counted
// orders, the number of items at or below their threshold and the order count.
func (r *Repository) DashboardStats() domain.DashboardStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	today := r.today()
	month := today[:7]
	daily, monthly := decimal.Zero, decimal.Zero
	for _, o := range r.orders {
		if o.DeliveryStatus.Void() {
			continue
		}
		net := decimal.NewFromFloat(o.NetTotal)
		if o.OrderDate == today {
			daily = daily.Add(net)
		}
		if len(o.OrderDate) >= 7 && o.OrderDate[:7] == month {
			monthly = monthly.Add(net)
		}
	}

	critical := 0
	for _, it := range r.items {
		if it.CurrentStockQty <= it.LowStockThreshold {
			critical++
		}
	}

	return domain.DashboardStats{
		DailySales:    daily.InexactFloat64(),
		MonthlySales:  monthly.InexactFloat64(),
		CriticalItems: critical,
		TotalOrders:   len(r.orders),
	}
}

func (r *Repository) SyncStats() domain.SyncStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncStatsLocked()
}

func (r *Repository) syncStatsLocked() domain.SyncStats {
	var s domain.SyncStats
	for _, c := range r.customers {
		if c.Pending() {
			s.PendingCustomers++
		}
	}
	for _, it := range r.items {
		if it.Pending() {
			s.PendingItems++
		}
	}
	for _, o := range r.orders {
		if o.Pending() {
			s.PendingOrders++
		}
	}
	for _, a := range r.adjustments {
		if a.Pending() {
			s.PendingAdjustments++
		}
	}
	if r.lastSync != nil {
		last := *r.lastSync
		s.LastSync = &last
	}
	return s
}

const topItemsLimit = 10

// SalesReport summarizes counted orders dated within [start, end], both
// given as YYYY-MM-DD.
func (r *Repository) SalesReport(start, end string) (domain.SalesReport, error) {
	from, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return domain.SalesReport{}, fmt.Errorf("%w: invalid start_date %q", ErrValidation, start)
	}
	to, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return domain.SalesReport{}, fmt.Errorf("%w: invalid end_date %q", ErrValidation, end)
	}
	if to.Before(from) {
		return domain.SalesReport{}, fmt.Errorf("%w: end_date is before start_date", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	type custAgg struct {
		row                                 domain.CustomerSales
		gross, discount, net, paid, balance decimal.Decimal
	}
	type itemAgg struct {
		row     domain.ItemSales
		revenue decimal.Decimal
	}
	custs := map[string]*custAgg{}
	items := map[string]*itemAgg{}
	revenue, outstanding := decimal.Zero, decimal.Zero
	count := 0

	for _, o := range r.orders {
		if !o.Counted() || o.OrderDate < start || o.OrderDate > end {
			continue
		}
		count++
		revenue = revenue.Add(decimal.NewFromFloat(o.NetTotal))
		outstanding = outstanding.Add(decimal.NewFromFloat(o.DisplayBalance()))

		c, ok := custs[o.CustomerID]
		if !ok {
			c = &custAgg{row: domain.CustomerSales{CustomerID: o.CustomerID}}
			if i := r.customerIndex(o.CustomerID); i >= 0 {
				c.row.ShopName = r.customers[i].ShopName
			}
			custs[o.CustomerID] = c
		}
		c.row.Orders++
		c.gross = c.gross.Add(decimal.NewFromFloat(o.GrossTotal))
		c.discount = c.discount.Add(decimal.NewFromFloat(o.DiscountValue))
		c.net = c.net.Add(decimal.NewFromFloat(o.NetTotal))
		c.paid = c.paid.Add(decimal.NewFromFloat(o.PaidAmount))
		c.balance = c.balance.Add(decimal.NewFromFloat(o.DisplayBalance()))

		for _, l := range o.Lines {
			it, ok := items[l.ItemID]
			if !ok {
				it = &itemAgg{row: domain.ItemSales{ItemID: l.ItemID, ItemName: l.ItemName}}
				items[l.ItemID] = it
			}
			it.row.Quantity += l.Quantity
			it.revenue = it.revenue.Add(decimal.NewFromFloat(l.LineTotal))
		}
	}

	report := domain.SalesReport{
		StartDate:      start,
		EndDate:        end,
		OrderCount:     count,
		TotalRevenue:   revenue.InexactFloat64(),
		OutstandingDue: outstanding.InexactFloat64(),
		Customers:      make([]domain.CustomerSales, 0, len(custs)),
		TopItems:       make([]domain.ItemSales, 0, len(items)),
	}
	if count > 0 {
		report.AvgOrderValue = revenue.Div(decimal.NewFromInt(int64(count))).Round(2).InexactFloat64()
	}
	for _, c := range custs {
		c.row.GrossTotal = c.gross.InexactFloat64()
		c.row.DiscountTotal = c.discount.InexactFloat64()
		c.row.NetTotal = c.net.InexactFloat64()
		c.row.PaidTotal = c.paid.InexactFloat64()
		c.row.BalanceTotal = c.balance.InexactFloat64()
		report.Customers = append(report.Customers, c.row)
	}
	slices.SortFunc(report.Customers, func(a, b domain.CustomerSales) int {
		if n := cmp.Compare(b.NetTotal, a.NetTotal); n != 0 {
			return n
		}
		return cmp.Compare(a.CustomerID, b.CustomerID)
	})
	for _, it := range items {
		it.row.Revenue = it.revenue.InexactFloat64()
		report.TopItems = append(report.TopItems, it.row)
	}
	slices.SortFunc(report.TopItems, func(a, b domain.ItemSales) int {
		if n := cmp.Compare(b.Quantity, a.Quantity); n != 0 {
			return n
		}
		return cmp.Compare(a.ItemID, b.ItemID)
	})
	if len(report.TopItems) > topItemsLimit {
		report.TopItems = report.TopItems[:topItemsLimit]
	}
	return report, nil
}
