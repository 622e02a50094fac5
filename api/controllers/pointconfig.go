package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coralcart/loyalty-backend/api/responses"
	"github.com/coralcart/loyalty-backend/api/validators"
	"github.com/coralcart/loyalty-backend/internal/pointconfig"
	"github.com/coralcart/loyalty-backend/pkg/db/models"
	"github.com/coralcart/loyalty-backend/pkg/enums"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

type configService interface {
	GetConfig(ctx context.Context, variantID string) (*models.VariantPointConfig, error)
	UpsertConfig(ctx context.Context, input pointconfig.UpsertInput) (*models.VariantPointConfig, *pointconfig.Revert, error)
}

type pointConfigResponse struct {
	VariantID   string `json:"variant_id"`
	PaymentType string `json:"payment_type"`
	PointPrice  *int64 `json:"point_price,omitempty"`
}

type upsertPointConfigPayload struct {
	PaymentType string `json:"payment_type" validate:"required,oneof=currency points both"`
	PointPrice  *int64 `json:"point_price,omitempty" validate:"omitempty,gt=0"`
}

// GetVariantPointConfig returns the variant's payment eligibility, defaulting
// to currency-only when nothing is configured.
func GetVariantPointConfig(svc configService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		variantID := chi.URLParam(r, "id")

		config, err := svc.GetConfig(ctx, variantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, pointConfigResponse{
			VariantID:   config.VariantID,
			PaymentType: config.PaymentType.String(),
			PointPrice:  config.PointPrice,
		})
	}
}

// UpsertVariantPointConfig creates or replaces the variant's point pricing.
func UpsertVariantPointConfig(svc configService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		variantID := chi.URLParam(r, "id")

		var payload upsertPointConfigPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		paymentType, err := enums.ParsePaymentType(payload.PaymentType)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment type"))
			return
		}

		config, _, err := svc.UpsertConfig(ctx, pointconfig.UpsertInput{
			VariantID:   variantID,
			PaymentType: paymentType,
			PointPrice:  payload.PointPrice,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, pointConfigResponse{
			VariantID:   config.VariantID,
			PaymentType: config.PaymentType.String(),
			PointPrice:  config.PointPrice,
		})
	}
}
