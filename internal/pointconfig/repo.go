package pointconfig

import (
	"context"

	"gorm.io/gorm"

	"github.com/coralcart/loyalty-backend/pkg/db/models"
)

// Repository manages persistence for per-variant point pricing.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByVariantID(ctx context.Context, variantID string) (*models.VariantPointConfig, error)
	FindByVariantIDs(ctx context.Context, variantIDs []string) ([]models.VariantPointConfig, error)
	Create(ctx context.Context, config *models.VariantPointConfig) error
	Save(ctx context.Context, config *models.VariantPointConfig) error
	DeleteByVariantID(ctx context.Context, variantID string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByVariantID(ctx context.Context, variantID string) (*models.VariantPointConfig, error) {
	var config models.VariantPointConfig
	err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		First(&config).Error
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (r *repository) FindByVariantIDs(ctx context.Context, variantIDs []string) ([]models.VariantPointConfig, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	var configs []models.VariantPointConfig
	err := r.db.WithContext(ctx).
		Where("variant_id IN ?", variantIDs).
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *repository) Create(ctx context.Context, config *models.VariantPointConfig) error {
	return r.db.WithContext(ctx).Create(config).Error
}

func (r *repository) Save(ctx context.Context, config *models.VariantPointConfig) error {
	return r.db.WithContext(ctx).
		Model(&models.VariantPointConfig{}).
		Where("id = ?", config.ID).
		Updates(map[string]any{
			"payment_type": config.PaymentType,
			"point_price":  config.PointPrice,
		}).Error
}

func (r *repository) DeleteByVariantID(ctx context.Context, variantID string) error {
	return r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Delete(&models.VariantPointConfig{}).Error
}
