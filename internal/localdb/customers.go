package localdb

import (
	"context"
	"fmt"
	"slices"

	"partflow/m/domain"
	"partflow/m/internal/util"
)

// Customers returns every customer in stored order.
func (r *Repository) Customers() []domain.Customer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.customers)
}

func (r *Repository) Customer(id string) (domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.customerIndex(id)
	if i < 0 {
		return domain.Customer{}, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	return r.customers[i], nil
}

// SaveCustomer inserts or replaces a customer and marks it pending whatever
// sync status the caller passed. The outstanding balance is derived from
// orders and cannot be set here. An empty status keeps the stored one.
func (r *Repository) SaveCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	if err := c.Validate(); err != nil {
		return domain.Customer{}, err
	}
	if c.CustomerID == "" {
		c.CustomerID = util.NewID("cust")
	}

	err := r.withLock(func() error {
		now := r.now()
		c.OutstandingBalance = 0
		c.CreatedAt = now
		if i := r.customerIndex(c.CustomerID); i >= 0 {
			c.OutstandingBalance = r.customers[i].OutstandingBalance
			c.CreatedAt = r.customers[i].CreatedAt
			if c.Status == "" {
				c.Status = r.customers[i].Status
			}
		}
		if c.Status == "" {
			c.Status = domain.StatusActive
		}
		c.Touch(now)

		b := r.newBatch()
		b.putCustomer(c)
		return b.commit(ctx, "save_customer")
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return c, nil
}

// DeactivateCustomer is the soft delete for customers.
func (r *Repository) DeactivateCustomer(ctx context.Context, id string) error {
	return r.withLock(func() error {
		i := r.customerIndex(id)
		if i < 0 {
			return fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		c := r.customers[i]
		c.Status = domain.StatusInactive
		c.Touch(r.now())

		b := r.newBatch()
		b.putCustomer(c)
		return b.commit(ctx, "deactivate_customer")
	})
}
