package models

import (
	"time"

	"github.com/google/uuid"
)

// PointBalance caches the current loyalty balance for one customer. The
// transaction log is the source of truth; this row is a projection updated in
// the same transaction as every log append. Rows are created lazily and never
// hard-deleted.
type PointBalance struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID string    `gorm:"column:customer_id;not null;uniqueIndex:ux_point_balances_customer"`
	Balance    int64     `gorm:"column:balance;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
