package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/coralcart/loyalty-backend/pkg/enums"
)

// VariantPointConfig holds the payment-method eligibility for one product
// variant. A missing row means currency-only; PointPrice must be set and
// positive for any non-currency type.
type VariantPointConfig struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VariantID   string            `gorm:"column:variant_id;not null;uniqueIndex:ux_variant_point_configs_variant"`
	PaymentType enums.PaymentType `gorm:"column:payment_type;type:payment_type_enum;not null;default:'currency'"`
	PointPrice  *int64            `gorm:"column:point_price"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
