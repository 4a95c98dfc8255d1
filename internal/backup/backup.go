package backup

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"partflow/m/domain"
)

var header = []string{
	"item_id", "item_display_name", "item_name", "item_number", "vehicle_model", "source_brand",
	"category", "unit_value", "current_stock_qty", "low_stock_threshold", "is_out_of_stock",
	"status", "sync_status", "created_at", "updated_at",
}

// Writer exports the item catalog as a dated CSV snapshot before a sync.
// The files are never read back by the application.
type Writer struct {
	dir string
	log *zap.Logger
	now func() time.Time
}

func NewWriter(dir string, log *zap.Logger) *Writer {
	return &Writer{dir: dir, log: log, now: time.Now}
}

// FileName is the snapshot name for the given day. A second backup on the
// same day overwrites the first.
func FileName(day time.Time) string {
	return fmt.Sprintf("inventory_backup_%s.csv", day.Format(time.DateOnly))
}

// WriteItems writes items to BACKUP_DIR and returns the file path.
func (w *Writer) WriteItems(items []domain.Item) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(w.dir, FileName(w.now()))
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		f.Close()
		return "", err
	}
	for _, it := range items {
		if err := cw.Write(row(it)); err != nil {
			f.Close()
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return "", fmt.Errorf("write backup: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("finalize backup: %w", err)
	}

	w.log.Info("inventory backup written", zap.String("path", path), zap.Int("items", len(items)))
	return path, nil
}

func row(it domain.Item) []string {
	return []string{
		it.ItemID,
		it.ItemDisplayName,
		it.ItemName,
		it.ItemNumber,
		it.VehicleModel,
		it.SourceBrand,
		it.Category,
		strconv.FormatFloat(it.UnitValue, 'f', -1, 64),
		strconv.Itoa(it.CurrentStockQty),
		strconv.Itoa(it.LowStockThreshold),
		strconv.FormatBool(it.IsOutOfStock),
		string(it.Status),
		string(it.SyncStatus),
		formatTime(it.CreatedAt),
		formatTime(it.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
