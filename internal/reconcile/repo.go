package reconcile

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository answers the cross-table consistency questions the health monitor
// asks. It is read-only; healing writes go through the payments service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CountInconsistentOrders(ctx context.Context) (int64, error)
	CountReconciliationsSince(ctx context.Context, since time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reconcile repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CountInconsistentOrders counts orders whose ledger shows a successful
// transaction while the order itself is not marked paid.
func (r *repository) CountInconsistentOrders(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("orders").
		Joins("JOIN payment_transactions ON payment_transactions.order_id = orders.id").
		Where("payment_transactions.status = ?", "success").
		Where("orders.payment_status <> ?", "paid").
		Distinct("orders.id").
		Count(&count).Error
	return count, err
}

func (r *repository) CountReconciliationsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("audit_entries").
		Where("action = ? AND created_at >= ?", "payment.reconciled", since).
		Count(&count).Error
	return count, err
}
