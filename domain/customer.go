package domain

import (
	"fmt"
	"strings"
)

type Customer struct {
	CustomerID         string       `json:"customer_id"`
	ShopName           string       `json:"shop_name"`
	Address            string       `json:"address"`
	Phone              string       `json:"phone"`
	CityRef            string       `json:"city_ref"`
	DiscountRate       float64      `json:"discount_rate"`
	OutstandingBalance float64      `json:"outstanding_balance"`
	Status             EntityStatus `json:"status"`
	Envelope
}

// Validate checks the fields a customer form is required to provide.
// DiscountRate is a fraction, never a percentage.
func (c Customer) Validate() error {
	if strings.TrimSpace(c.ShopName) == "" {
		return fmt.Errorf("%w: shop_name is required", ErrValidation)
	}
	if c.DiscountRate < 0 || c.DiscountRate > 1 {
		return fmt.Errorf("%w: discount_rate %v must be between 0 and 1", ErrValidation, c.DiscountRate)
	}
	if c.Status != "" && !c.Status.Valid() {
		return fmt.Errorf("%w: unknown customer status %q", ErrValidation, c.Status)
	}
	return nil
}
