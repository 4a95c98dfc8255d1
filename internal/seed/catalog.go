package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"partflow/m/domain"
)

// LoadItemsCSV reads an item catalog in the inventory backup layout. Columns
// are matched by header name, so older exports with fewer columns still load.
// Rows without a display name or with unparseable numbers are skipped.
func LoadItemsCSV(path string, log *zap.Logger) ([]domain.Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load item catalog %s: %w", path, err)
	}
	defer file.Close()
	return ReadItemsCSV(file, log)
}

func ReadItemsCSV(r io.Reader, log *zap.Logger) ([]domain.Item, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	head, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read item catalog header: %w", err)
	}
	cols := make(map[string]int, len(head))
	for i, name := range head {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	if _, ok := cols["item_display_name"]; !ok {
		return nil, errors.New("item catalog header has no item_display_name column")
	}

	var items []domain.Item
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			log.Warn("unable to read catalog row", zap.Int("line", line), zap.Error(err))
			continue
		}
		get := func(name string) string {
			if i, ok := cols[name]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		it := domain.Item{
			ItemID:          get("item_id"),
			ItemDisplayName: get("item_display_name"),
			ItemName:        get("item_name"),
			ItemNumber:      get("item_number"),
			VehicleModel:    get("vehicle_model"),
			SourceBrand:     get("source_brand"),
			Category:        get("category"),
			Status:          domain.EntityStatus(get("status")),
		}
		if it.ItemDisplayName == "" {
			continue
		}
		if it.ItemName == "" {
			it.ItemName = it.ItemDisplayName
		}
		if it.Status == "" {
			it.Status = domain.StatusActive
		}
		it.SyncStatus = domain.SyncSynced

		if it.UnitValue, err = parseFloat(get("unit_value")); err == nil {
			if it.CurrentStockQty, err = parseInt(get("current_stock_qty")); err == nil {
				it.LowStockThreshold, err = parseInt(get("low_stock_threshold"))
			}
		}
		if err != nil {
			log.Warn("skipping catalog row", zap.Int("line", line), zap.String("item", it.ItemDisplayName), zap.Error(err))
			continue
		}
		if flag := get("is_out_of_stock"); flag != "" {
			it.IsOutOfStock, _ = strconv.ParseBool(flag)
		} else {
			it.IsOutOfStock = it.CurrentStockQty <= 0
		}
		if ts, err := time.Parse(time.RFC3339, get("created_at")); err == nil {
			it.CreatedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339, get("updated_at")); err == nil {
			it.UpdatedAt = ts
		}
		if it.ItemID == "" {
			it.ItemID = fmt.Sprintf("csv-%d", line)
		}
		if err := it.Validate(); err != nil {
			log.Warn("skipping catalog row", zap.Int("line", line), zap.String("item", it.ItemDisplayName), zap.Error(err))
			continue
		}
		items = append(items, it)
	}

	log.Info("loaded item catalog", zap.Int("items", len(items)))
	return items, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
