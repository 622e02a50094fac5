package pointconfig

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coralcart/loyalty-backend/pkg/db/models"
	"github.com/coralcart/loyalty-backend/pkg/enums"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages per-variant point pricing. Reads default to currency-only
// when no row exists, so merchants opt variants into point payment explicitly.
type Service struct {
	repo   Repository
	runner txRunner
	logg   *logger.Logger
}

// UpsertInput sets the payment eligibility for one variant.
type UpsertInput struct {
	VariantID   string
	PaymentType enums.PaymentType
	PointPrice  *int64
}

// Revert captures the state a config had before an upsert so a failed
// workflow can put it back.
type Revert struct {
	VariantID           string
	WasNew              bool
	PreviousPaymentType enums.PaymentType
	PreviousPointPrice  *int64
}

func NewService(repo Repository, runner txRunner, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("point config repository is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{repo: repo, runner: runner, logg: logg}, nil
}

// GetConfig returns the variant's config, or a synthetic currency-only config
// when none is stored.
func (s *Service) GetConfig(ctx context.Context, variantID string) (*models.VariantPointConfig, error) {
	if variantID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	config, err := s.repo.FindByVariantID(ctx, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.VariantPointConfig{
				VariantID:   variantID,
				PaymentType: enums.PaymentTypeCurrency,
			}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load variant point config")
	}
	return config, nil
}

// GetConfigs returns stored configs keyed by variant id. Variants without a
// row are absent from the map; callers treat absence as currency-only.
func (s *Service) GetConfigs(ctx context.Context, variantIDs []string) (map[string]models.VariantPointConfig, error) {
	configs, err := s.repo.FindByVariantIDs(ctx, variantIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load variant point configs")
	}
	byVariant := make(map[string]models.VariantPointConfig, len(configs))
	for _, config := range configs {
		byVariant[config.VariantID] = config
	}
	return byVariant, nil
}

// UpsertConfig creates or updates the variant's config and returns a Revert
// describing the prior state.
func (s *Service) UpsertConfig(ctx context.Context, input UpsertInput) (*models.VariantPointConfig, *Revert, error) {
	if err := validateUpsert(input); err != nil {
		return nil, nil, err
	}
	// A currency-only variant has no point price to keep around.
	if !input.PaymentType.RequiresPointPrice() {
		input.PointPrice = nil
	}

	var (
		result *models.VariantPointConfig
		revert *Revert
	)
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindByVariantID(ctx, input.VariantID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load variant point config")
		}

		if existing == nil {
			created := &models.VariantPointConfig{
				ID:          uuid.New(),
				VariantID:   input.VariantID,
				PaymentType: input.PaymentType,
				PointPrice:  input.PointPrice,
			}
			if err := repo.Create(ctx, created); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create variant point config")
			}
			result = created
			revert = &Revert{VariantID: input.VariantID, WasNew: true}
			return nil
		}

		revert = &Revert{
			VariantID:           input.VariantID,
			PreviousPaymentType: existing.PaymentType,
			PreviousPointPrice:  existing.PointPrice,
		}
		existing.PaymentType = input.PaymentType
		existing.PointPrice = input.PointPrice
		if err := repo.Save(ctx, existing); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update variant point config")
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"variant_id":   input.VariantID,
		"payment_type": input.PaymentType.String(),
	})
	s.logg.Info(logCtx, "variant point config upserted")
	return result, revert, nil
}

// ApplyRevert undoes a previous upsert: deletes a config that was newly
// created, or restores the prior values.
func (s *Service) ApplyRevert(ctx context.Context, revert *Revert) error {
	if revert == nil {
		return nil
	}
	if revert.WasNew {
		if err := s.repo.DeleteByVariantID(ctx, revert.VariantID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to delete variant point config")
		}
		return nil
	}
	_, _, err := s.UpsertConfig(ctx, UpsertInput{
		VariantID:   revert.VariantID,
		PaymentType: revert.PreviousPaymentType,
		PointPrice:  revert.PreviousPointPrice,
	})
	return err
}

// DeleteConfig removes the variant's config, returning it to currency-only.
func (s *Service) DeleteConfig(ctx context.Context, variantID string) error {
	if variantID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if err := s.repo.DeleteByVariantID(ctx, variantID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to delete variant point config")
	}
	return nil
}

func validateUpsert(input UpsertInput) error {
	if input.VariantID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if !input.PaymentType.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment type %q", input.PaymentType)
	}
	if input.PaymentType.RequiresPointPrice() {
		if input.PointPrice == nil || *input.PointPrice <= 0 {
			return pkgerrors.Newf(pkgerrors.CodeInvalidConfig,
				"payment type %q requires a positive point price", input.PaymentType)
		}
	}
	return nil
}
