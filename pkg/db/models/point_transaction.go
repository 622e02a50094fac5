package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/coralcart/loyalty-backend/pkg/enums"
)

// PointTransaction is one append-only entry in the loyalty ledger. Points are
// always positive; the type carries the direction. Reference fields point at
// the cart, order or admin action that caused the entry.
type PointTransaction struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID    string                     `gorm:"column:customer_id;not null;index:ix_point_transactions_customer"`
	Type          enums.PointTransactionType `gorm:"column:type;type:point_transaction_type_enum;not null"`
	Points        int64                      `gorm:"column:points;not null"`
	Reason        *string                    `gorm:"column:reason"`
	ReferenceID   *string                    `gorm:"column:reference_id;index:ix_point_transactions_reference"`
	ReferenceType *string                    `gorm:"column:reference_type;index:ix_point_transactions_reference"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
}
