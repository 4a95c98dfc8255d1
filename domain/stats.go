package domain

import "time"

type SyncMode string

const (
	SyncUpsert    SyncMode = "upsert"
	SyncOverwrite SyncMode = "overwrite"
)

func (m SyncMode) Valid() bool {
	return m == SyncUpsert || m == SyncOverwrite
}

type SyncStats struct {
	PendingCustomers   int        `json:"pending_customers"`
	PendingItems       int        `json:"pending_items"`
	PendingOrders      int        `json:"pending_orders"`
	PendingAdjustments int        `json:"pending_adjustments"`
	LastSync           *time.Time `json:"last_sync,omitempty"`
}

type DashboardStats struct {
	DailySales    float64 `json:"daily_sales"`
	MonthlySales  float64 `json:"monthly_sales"`
	CriticalItems int     `json:"critical_items"`
	TotalOrders   int     `json:"total_orders"`
}

type CustomerSales struct {
	CustomerID    string  `json:"customer_id"`
	ShopName      string  `json:"shop_name"`
	Orders        int     `json:"orders"`
	GrossTotal    float64 `json:"gross_total"`
	DiscountTotal float64 `json:"discount_total"`
	NetTotal      float64 `json:"net_total"`
	PaidTotal     float64 `json:"paid_total"`
	BalanceTotal  float64 `json:"balance_total"`
}

type ItemSales struct {
	ItemID   string  `json:"item_id"`
	ItemName string  `json:"item_name"`
	Quantity int     `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}

type SalesReport struct {
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	OrderCount     int             `json:"order_count"`
	TotalRevenue   float64         `json:"total_revenue"`
	AvgOrderValue  float64         `json:"avg_order_value"`
	OutstandingDue float64         `json:"outstanding_due"`
	Customers      []CustomerSales `json:"customers"`
	TopItems       []ItemSales     `json:"top_items"`
}
