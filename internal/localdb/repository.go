package localdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"partflow/m/domain"
	"partflow/m/internal/events"
	"partflow/m/internal/metrics"
	"partflow/m/internal/seed"
	"partflow/m/internal/store"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = domain.ErrValidation
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrAlreadySynced      = errors.New("cannot delete, already synced")
	ErrOrderLocked        = errors.New("order can no longer be edited")
	ErrDuplicate          = errors.New("duplicate record")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository is the only writer of the on-device collections. Every mutation
// is persisted in a single store transaction before the in-memory copy is
// updated, so readers never observe a state the store does not hold.
type Repository struct {
	mu    sync.Mutex
	store *store.Store
	log   *zap.Logger
	pub   events.Publisher
	clock func() time.Time
	last  time.Time

	customers   []domain.Customer
	items       []domain.Item
	orders      []domain.Order
	adjustments []domain.StockAdjustment
	settings    domain.CompanySettings
	lastSync    *time.Time
}

type Option func(*Repository)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.clock = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(r *Repository) { r.pub = p }
}

// Open seeds an uninitialized store from data and loads every collection.
// A store that was initialized before is never reseeded.
func Open(ctx context.Context, st *store.Store, data seed.Data, log *zap.Logger, opts ...Option) (*Repository, error) {
	r := &Repository{
		store: st,
		log:   log,
		pub:   events.Nop{},
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	var initialized bool
	if _, err := st.GetValue(ctx, store.KeyInitialized, &initialized); err != nil {
		return nil, err
	}
	if !initialized {
		if err := r.seed(ctx, data); err != nil {
			return nil, fmt.Errorf("seed store: %w", err)
		}
	}
	for _, u := range data.Users {
		if err := r.EnsureUser(ctx, u); err != nil {
			return nil, err
		}
	}
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	r.refreshPendingGauge()
	return r, nil
}

func (r *Repository) seed(ctx context.Context, data seed.Data) error {
	customers := make([]store.Record, 0, len(data.Customers))
	for _, c := range data.Customers {
		customers = append(customers, store.Record{ID: c.CustomerID, Doc: c})
	}
	items := make([]store.Record, 0, len(data.Items))
	for _, it := range data.Items {
		items = append(items, store.Record{ID: it.ItemID, Doc: it})
	}

	err := r.store.Tx(ctx, "seed", func(tx *store.Tx) error {
		if err := tx.ReplaceCollection(store.Customers, customers); err != nil {
			return err
		}
		if err := tx.ReplaceCollection(store.Items, items); err != nil {
			return err
		}
		if err := tx.ReplaceCollection(store.Orders, nil); err != nil {
			return err
		}
		if err := tx.PutValue(store.KeySettings, data.Settings); err != nil {
			return err
		}
		return tx.PutValue(store.KeyInitialized, true)
	})
	if err != nil {
		return err
	}
	r.log.Info("seeded local store",
		zap.Int("customers", len(customers)),
		zap.Int("items", len(items)))
	return nil
}

func (r *Repository) load(ctx context.Context) error {
	var err error
	if r.customers, err = store.Load[domain.Customer](ctx, r.store, store.Customers); err != nil {
		return err
	}
	if r.items, err = store.Load[domain.Item](ctx, r.store, store.Items); err != nil {
		return err
	}
	if r.orders, err = store.Load[domain.Order](ctx, r.store, store.Orders); err != nil {
		return err
	}
	if r.adjustments, err = store.Load[domain.StockAdjustment](ctx, r.store, store.StockAdjustments); err != nil {
		return err
	}
	if _, err = r.store.GetValue(ctx, store.KeySettings, &r.settings); err != nil {
		return err
	}
	var last time.Time
	ok, err := r.store.GetValue(ctx, store.KeyLastSync, &last)
	if err != nil {
		return err
	}
	if ok {
		r.lastSync = &last
	}
	return nil
}

// withLock runs fn while holding the repository lock. Events are published
// by callers after it returns so a slow broker never blocks other writers.
func (r *Repository) withLock(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

func (r *Repository) publish(ctx context.Context, event events.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = r.clock()
	}
	if err := r.pub.Publish(ctx, event); err != nil {
		r.log.Warn("event publish failed", zap.String("event", event.EventType), zap.Error(err))
	}
}

// now returns a strictly increasing timestamp. Sync relies on updated_at to
// tell whether a record changed after it was pushed, so two writes must
// never share one. Callers hold the lock.
func (r *Repository) now() time.Time {
	t := r.clock()
	if !t.After(r.last) {
		t = r.last.Add(time.Microsecond)
	}
	r.last = t
	return t
}

func (r *Repository) today() string {
	return r.clock().Format(time.DateOnly)
}

func (r *Repository) customerIndex(id string) int {
	for i := range r.customers {
		if r.customers[i].CustomerID == id {
			return i
		}
	}
	return -1
}

func (r *Repository) itemIndex(id string) int {
	for i := range r.items {
		if r.items[i].ItemID == id {
			return i
		}
	}
	return -1
}

func (r *Repository) orderIndex(id string) int {
	for i := range r.orders {
		if r.orders[i].OrderID == id {
			return i
		}
	}
	return -1
}

func (r *Repository) refreshPendingGauge() {
	s := r.syncStatsLocked()
	metrics.PendingRecords.WithLabelValues(store.Customers).Set(float64(s.PendingCustomers))
	metrics.PendingRecords.WithLabelValues(store.Items).Set(float64(s.PendingItems))
	metrics.PendingRecords.WithLabelValues(store.Orders).Set(float64(s.PendingOrders))
	metrics.PendingRecords.WithLabelValues(store.StockAdjustments).Set(float64(s.PendingAdjustments))
}

// Settings returns the company configuration singleton.
func (r *Repository) Settings() domain.CompanySettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// SaveSettings replaces the configuration wholesale.
func (r *Repository) SaveSettings(ctx context.Context, s domain.CompanySettings) error {
	return r.withLock(func() error {
		err := r.store.Tx(ctx, "save_settings", func(tx *store.Tx) error {
			return tx.PutValue(store.KeySettings, s)
		})
		if err != nil {
			return err
		}
		r.settings = s
		return nil
	})
}
