package domain

type CompanySettings struct {
	CompanyName          string `json:"company_name"`
	Address              string `json:"address"`
	Phone                string `json:"phone"`
	RepName              string `json:"rep_name"`
	InvoicePrefix        string `json:"invoice_prefix"`
	FooterNote           string `json:"footer_note"`
	CurrencySymbol       string `json:"currency_symbol"`
	AutoSKUEnabled       bool   `json:"auto_sku_enabled"`
	StockTrackingEnabled bool   `json:"stock_tracking_enabled"`
	CategoryEnabled      bool   `json:"category_enabled"`
	GoogleSheetID        string `json:"google_sheet_id,omitempty"`
}
