package domain

import (
	"fmt"
	"strings"
)

type Item struct {
	ItemID            string       `json:"item_id"`
	ItemDisplayName   string       `json:"item_display_name"`
	ItemName          string       `json:"item_name"`
	ItemNumber        string       `json:"item_number"`
	VehicleModel      string       `json:"vehicle_model"`
	SourceBrand       string       `json:"source_brand"`
	Category          string       `json:"category"`
	UnitValue         float64      `json:"unit_value"`
	CurrentStockQty   int          `json:"current_stock_qty"`
	LowStockThreshold int          `json:"low_stock_threshold"`
	IsOutOfStock      bool         `json:"is_out_of_stock"`
	Status            EntityStatus `json:"status"`
	Envelope
}

func (i Item) Validate() error {
	if strings.TrimSpace(i.ItemDisplayName) == "" {
		return fmt.Errorf("%w: item_display_name is required", ErrValidation)
	}
	if i.UnitValue < 0 {
		return fmt.Errorf("%w: unit_value must not be negative", ErrValidation)
	}
	if i.CurrentStockQty < 0 {
		return fmt.Errorf("%w: current_stock_qty must not be negative", ErrValidation)
	}
	if i.LowStockThreshold < 0 {
		return fmt.Errorf("%w: low_stock_threshold must not be negative", ErrValidation)
	}
	if i.Status != "" && !i.Status.Valid() {
		return fmt.Errorf("%w: unknown item status %q", ErrValidation, i.Status)
	}
	return nil
}

// Available reports whether qty units can be sold. With stock tracking the
// quantity on hand decides; without it only the manual flag does.
func (i Item) Available(qty int, stockTracking bool) bool {
	if stockTracking {
		return i.CurrentStockQty >= qty
	}
	return !i.IsOutOfStock
}

// SameDefinition reports whether two items describe the same physical part.
func (i Item) SameDefinition(o Item) bool {
	return strings.EqualFold(strings.TrimSpace(i.ItemName), strings.TrimSpace(o.ItemName)) &&
		strings.EqualFold(strings.TrimSpace(i.VehicleModel), strings.TrimSpace(o.VehicleModel)) &&
		strings.EqualFold(strings.TrimSpace(i.SourceBrand), strings.TrimSpace(o.SourceBrand))
}

type AdjustmentType string

const (
	AdjustmentRestock    AdjustmentType = "restock"
	AdjustmentDamage     AdjustmentType = "damage"
	AdjustmentCorrection AdjustmentType = "correction"
	AdjustmentReturn     AdjustmentType = "return"
)

type StockAdjustment struct {
	AdjustmentID   string         `json:"adjustment_id"`
	ItemID         string         `json:"item_id"`
	AdjustmentType AdjustmentType `json:"adjustment_type"`
	Quantity       int            `json:"quantity"`
	Reason         string         `json:"reason"`
	Envelope
}

type Direction int

const (
	Increase Direction = 1
	Decrease Direction = -1
)

// StockEffect is the signed meaning of an adjustment. Quantity stays positive.
type StockEffect struct {
	Direction Direction
	Quantity  int
}

func (e StockEffect) Delta() int {
	return int(e.Direction) * e.Quantity
}

// Effect maps the recorded type and quantity to a stock movement.
func (a StockAdjustment) Effect() (StockEffect, error) {
	if a.Quantity <= 0 {
		return StockEffect{}, fmt.Errorf("%w: adjustment quantity must be positive", ErrValidation)
	}
	switch a.AdjustmentType {
	case AdjustmentRestock, AdjustmentReturn:
		return StockEffect{Direction: Increase, Quantity: a.Quantity}, nil
	case AdjustmentDamage, AdjustmentCorrection:
		return StockEffect{Direction: Decrease, Quantity: a.Quantity}, nil
	default:
		return StockEffect{}, fmt.Errorf("%w: unknown adjustment type %q", ErrValidation, a.AdjustmentType)
	}
}
