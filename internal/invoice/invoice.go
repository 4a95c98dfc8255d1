package invoice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"partflow/m/domain"
	"partflow/m/internal/util"
)

// LinesPerPage is fixed by the printed invoice layout.
const LinesPerPage = 20

var ErrUnresolved = errors.New("invoice inputs are not fully resolved")

type Line struct {
	No          int     `json:"no"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitValue   float64 `json:"unit_value"`
	LineTotal   float64 `json:"line_total"`
}

// Page holds up to LinesPerPage lines. CarriedForward is the running sum of
// line totals up to and including this page.
type Page struct {
	Number         int     `json:"number"`
	Lines          []Line  `json:"lines"`
	PageTotal      float64 `json:"page_total"`
	CarriedForward float64 `json:"carried_forward"`
}

// Document is everything a renderer needs. It never reads the repository.
type Document struct {
	InvoiceNumber string                 `json:"invoice_number"`
	OrderDate     string                 `json:"order_date"`
	Company       domain.CompanySettings `json:"company"`
	Customer      domain.Customer        `json:"customer"`
	Pages         []Page                 `json:"pages"`
	GrossTotal    float64                `json:"gross_total"`
	DiscountRate  float64                `json:"discount_rate"`
	DiscountValue float64                `json:"discount_value"`
	NetTotal      float64                `json:"net_total"`
	PaidAmount    float64                `json:"paid_amount"`
	BalanceDue    float64                `json:"balance_due"`
	PaidInFull    bool                   `json:"paid_in_full"`
	Footer        string                 `json:"footer"`
}

// Build resolves an order into a paginated invoice. The customer must be the
// order's own customer.
func Build(order domain.Order, customer domain.Customer, settings domain.CompanySettings) (Document, error) {
	if order.OrderID == "" {
		return Document{}, fmt.Errorf("%w: order has no id", ErrUnresolved)
	}
	if customer.CustomerID == "" || customer.CustomerID != order.CustomerID {
		return Document{}, fmt.Errorf("%w: customer %q does not match order customer %q",
			ErrUnresolved, customer.CustomerID, order.CustomerID)
	}

	doc := Document{
		InvoiceNumber: settings.InvoicePrefix + strings.ToUpper(order.OrderID),
		OrderDate:     order.OrderDate,
		Company:       settings,
		Customer:      customer,
		GrossTotal:    order.GrossTotal,
		DiscountRate:  order.DiscountRate,
		DiscountValue: order.DiscountValue,
		NetTotal:      order.NetTotal,
		PaidAmount:    order.PaidAmount,
		BalanceDue:    order.DisplayBalance(),
		PaidInFull:    order.BalanceDue <= domain.PaidTolerance,
		Footer:        settings.FooterNote,
	}

	running := decimal.Zero
	for start := 0; start < len(order.Lines); start += LinesPerPage {
		end := min(start+LinesPerPage, len(order.Lines))
		page := Page{Number: len(doc.Pages) + 1}
		pageTotal := decimal.Zero
		for i, l := range order.Lines[start:end] {
			page.Lines = append(page.Lines, Line{
				No:          start + i + 1,
				Description: util.CleanText(l.ItemName),
				Quantity:    l.Quantity,
				UnitValue:   l.UnitValue,
				LineTotal:   l.LineTotal,
			})
			pageTotal = pageTotal.Add(decimal.NewFromFloat(l.LineTotal))
		}
		running = running.Add(pageTotal)
		page.PageTotal = pageTotal.InexactFloat64()
		page.CarriedForward = running.InexactFloat64()
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

// FileName is the name used when the invoice is saved or shared.
func (d Document) FileName() string {
	num := strings.TrimPrefix(d.InvoiceNumber, d.Company.InvoicePrefix)
	if len(num) > 6 {
		num = num[:6]
	}
	return d.Company.InvoicePrefix + num + ".pdf"
}

// Text renders a plain text invoice, one block per page.
func (d Document) Text() string {
	symbol := d.Company.CurrencySymbol
	var b strings.Builder
	for _, p := range d.Pages {
		if p.Number == 1 {
			fmt.Fprintf(&b, "%s\n", strings.ToUpper(d.Company.CompanyName))
			if d.Company.Address != "" {
				fmt.Fprintf(&b, "%s\n", d.Company.Address)
			}
			if d.Company.Phone != "" {
				fmt.Fprintf(&b, "Tel: %s\n", d.Company.Phone)
			}
			fmt.Fprintf(&b, "INVOICE %s\nDate: %s\nBill to: %s\n", d.InvoiceNumber, d.OrderDate, d.Customer.ShopName)
			if d.Customer.Address != "" {
				fmt.Fprintf(&b, "%s\n", d.Customer.Address)
			}
		} else {
			fmt.Fprintf(&b, "%s - Page %d    Inv: %s\n", strings.ToUpper(d.Company.CompanyName), p.Number, d.InvoiceNumber)
		}
		b.WriteString("\n")
		for _, l := range p.Lines {
			fmt.Fprintf(&b, "%3d  %-40s %5d x %14s = %14s\n", l.No, l.Description, l.Quantity,
				util.FormatCurrency(l.UnitValue, symbol), util.FormatCurrency(l.LineTotal, symbol))
		}
		if p.Number < len(d.Pages) {
			fmt.Fprintf(&b, "Sub Total (C/F): %s\n\n", util.FormatCurrency(p.CarriedForward, symbol))
			continue
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "Gross Total: %s\n", util.FormatCurrency(d.GrossTotal, symbol))
		if d.DiscountValue > 0 {
			fmt.Fprintf(&b, "Discount - %.0f%%: %s\n", d.DiscountRate*100, util.FormatCurrency(d.DiscountValue, symbol))
		}
		fmt.Fprintf(&b, "Net Total: %s\n", util.FormatCurrency(d.NetTotal, symbol))
		fmt.Fprintf(&b, "Paid: %s\n", util.FormatCurrency(d.PaidAmount, symbol))
		if d.PaidInFull {
			b.WriteString("PAID\n")
		} else {
			fmt.Fprintf(&b, "Balance Due: %s\n", util.FormatCurrency(d.BalanceDue, symbol))
		}
		if d.Footer != "" {
			fmt.Fprintf(&b, "\n%s\n", d.Footer)
		}
	}
	return b.String()
}
