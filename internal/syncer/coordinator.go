package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"partflow/m/domain"
	"partflow/m/internal/events"
	"partflow/m/internal/localdb"
	"partflow/m/internal/metrics"
	"partflow/m/internal/remote"
)

var (
	ErrNotConfigured  = errors.New("sync is not configured: google_sheet_id is empty")
	ErrSyncInProgress = errors.New("a sync is already running")
)

// SyncError is every remote side failure: transport errors, non-2xx answers
// and explicit success=false. Logs holds the trail collected up to the
// failure.
type SyncError struct {
	Message string
	Logs    []string
	Err     error
}

func (e *SyncError) Error() string {
	return "sync failed: " + e.Message
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Remote is the sync endpoint contract.
type Remote interface {
	SyncData(ctx context.Context, req remote.Request) (*remote.Result, error)
}

// Backup stores a point in time copy of the catalog.
type Backup interface {
	WriteItems(items []domain.Item) (string, error)
}

type Report struct {
	Mode            domain.SyncMode `json:"mode"`
	PushedCustomers int             `json:"pushed_customers"`
	PushedOrders    int             `json:"pushed_orders"`
	PushedItems     int             `json:"pushed_items"`
	SyncedCustomers int             `json:"synced_customers"`
	SyncedOrders    int             `json:"synced_orders"`
	PulledItems     int             `json:"pulled_items"`
	GeneratedSKUs   int             `json:"generated_skus"`
	BackupPath      string          `json:"backup_path,omitempty"`
	SyncedAt        time.Time       `json:"synced_at"`
	Logs            []string        `json:"logs"`
}

// Coordinator runs sync cycles against the repository. One cycle at a time.
type Coordinator struct {
	repo    *localdb.Repository
	remote  Remote
	backup  Backup
	pub     events.Publisher
	log     *zap.Logger
	running atomic.Bool
}

func New(repo *localdb.Repository, rc Remote, backup Backup, pub events.Publisher, log *zap.Logger) *Coordinator {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Coordinator{repo: repo, remote: rc, backup: backup, pub: pub, log: log}
}

// PerformSync pushes local changes and applies the answer. Nothing local is
// modified unless the remote reports success and ctx is still live. onLog,
// when set, receives each progress line as it happens.
func (c *Coordinator) PerformSync(ctx context.Context, mode domain.SyncMode, onLog func(string)) (Report, error) {
	if !mode.Valid() {
		return Report{}, fmt.Errorf("%w: unknown sync mode %q", localdb.ErrValidation, mode)
	}
	if !c.running.CompareAndSwap(false, true) {
		return Report{}, ErrSyncInProgress
	}
	defer c.running.Store(false)

	start := time.Now()
	report := Report{Mode: mode}
	emit := func(line string) {
		report.Logs = append(report.Logs, line)
		c.log.Debug("sync progress", zap.String("line", line))
		if onLog != nil {
			onLog(line)
		}
	}
	fail := func(result string, err error) (Report, error) {
		metrics.RecordSync(string(mode), result, start)
		c.log.Warn("sync failed", zap.String("mode", string(mode)), zap.Error(err))
		return report, err
	}

	settings := c.repo.Settings()
	if strings.TrimSpace(settings.GoogleSheetID) == "" {
		return fail("not_configured", ErrNotConfigured)
	}

	emit("Creating local backup (CSV)...")
	if path, err := c.backup.WriteItems(c.repo.Items()); err != nil {
		c.log.Warn("inventory backup failed", zap.Error(err))
		emit("Backup failed: " + err.Error())
	} else {
		report.BackupPath = path
	}

	snap, err := c.repo.PendingSnapshot(mode)
	if err != nil {
		return fail("error", err)
	}
	report.PushedCustomers = len(snap.Customers)
	report.PushedOrders = len(snap.Orders)
	report.PushedItems = len(snap.Items)
	emit(fmt.Sprintf("Pushing %d customers, %d orders and %d items (%s)...",
		report.PushedCustomers, report.PushedOrders, report.PushedItems, mode))

	res, err := c.remote.SyncData(ctx, remote.Request{
		SpreadsheetID: snap.SheetID,
		Customers:     snap.Customers,
		Orders:        snap.Orders,
		Items:         snap.Items,
		Mode:          mode,
	})
	if err != nil {
		emit("Backend error: " + err.Error())
		return fail("failed", &SyncError{Message: err.Error(), Logs: report.Logs, Err: err})
	}
	for _, line := range res.Logs {
		emit(line)
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "sync failed"
		}
		return fail("failed", &SyncError{Message: msg, Logs: report.Logs})
	}
	if err := ctx.Err(); err != nil {
		emit("Sync cancelled before local changes were applied.")
		return fail("cancelled", &SyncError{Message: err.Error(), Logs: report.Logs, Err: err})
	}
	if n := len(res.PulledCustomers) + len(res.PulledOrders); n > 0 {
		emit(fmt.Sprintf("Ignoring %d pulled customers and orders.", n))
	}

	applied, err := c.repo.ApplySync(ctx, snap, res.PulledItems)
	if err != nil {
		return fail("error", fmt.Errorf("apply sync result: %w", err))
	}
	report.SyncedCustomers = applied.SyncedCustomers
	report.SyncedOrders = applied.SyncedOrders
	report.PulledItems = applied.PulledItems
	report.GeneratedSKUs = applied.GeneratedSKUs
	report.SyncedAt = applied.SyncedAt
	if applied.GeneratedSKUs > 0 {
		emit(fmt.Sprintf("Generated %d SKUs for pulled items.", applied.GeneratedSKUs))
	}
	emit(fmt.Sprintf("Sync complete: %d customers and %d orders marked synced.",
		applied.SyncedCustomers, applied.SyncedOrders))

	metrics.RecordSync(string(mode), "success", start)
	c.log.Info("sync completed",
		zap.String("mode", string(mode)),
		zap.Int("synced_customers", applied.SyncedCustomers),
		zap.Int("synced_orders", applied.SyncedOrders),
		zap.Int("pulled_items", applied.PulledItems),
		zap.Duration("took", time.Since(start)))

	ev := events.Event{
		EventType: events.SyncCompleted,
		Status:    string(mode),
		Timestamp: applied.SyncedAt,
		Data:      report,
	}
	if err := c.pub.Publish(ctx, ev); err != nil {
		c.log.Warn("event publish failed", zap.String("event", ev.EventType), zap.Error(err))
	}
	return report, nil
}
