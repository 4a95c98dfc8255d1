package seed

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"partflow/m/domain"
)

//go:embed seed_data.json
var bundled []byte

// Data is the first-run content of a fresh device.
type Data struct {
	Settings  domain.CompanySettings `json:"settings"`
	Customers []domain.Customer      `json:"customers"`
	Items     []domain.Item          `json:"items"`
	Users     []domain.User          `json:"users"`
}

// Load reads the seed file at path, or the bundled seed when path is empty.
func Load(path string) (Data, error) {
	raw := bundled
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Data{}, fmt.Errorf("unable to read seed file %s: %w", path, err)
		}
		raw = b
	}
	return Parse(raw)
}

// Parse decodes seed JSON and fills the defaults seeded records start with:
// active, synced, zero outstanding balance.
func Parse(raw []byte) (Data, error) {
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("unable to parse seed data: %w", err)
	}

	for i := range data.Customers {
		c := &data.Customers[i]
		c.OutstandingBalance = 0
		if c.Status == "" {
			c.Status = domain.StatusActive
		}
		if c.SyncStatus == "" {
			c.SyncStatus = domain.SyncSynced
		}
		if err := c.Validate(); err != nil {
			return Data{}, fmt.Errorf("seed customer %s: %w", c.CustomerID, err)
		}
	}
	for i := range data.Items {
		it := &data.Items[i]
		if it.Status == "" {
			it.Status = domain.StatusActive
		}
		if it.SyncStatus == "" {
			it.SyncStatus = domain.SyncSynced
		}
		if err := it.Validate(); err != nil {
			return Data{}, fmt.Errorf("seed item %s: %w", it.ItemID, err)
		}
	}
	if data.Settings.CurrencySymbol == "" {
		data.Settings.CurrencySymbol = "Rs."
	}
	return data, nil
}
