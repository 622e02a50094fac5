package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coralcart/loyalty-backend/api/responses"
	"github.com/coralcart/loyalty-backend/api/validators"
	"github.com/coralcart/loyalty-backend/pkg/commerce"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

type cartValidator interface {
	Validate(ctx context.Context, cartID string) error
	ValidatePromotionUpdate(ctx context.Context, cartID string, action commerce.PromotionAction, codes []string) error
}

type promotionUpdatePayload struct {
	Action string   `json:"action" validate:"required,oneof=add remove"`
	Codes  []string `json:"codes" validate:"omitempty,max=50,dive,required"`
}

// ValidateCheckout runs the checkout guard for the platform's pre-completion
// hook. A 200 means the cart may complete.
func ValidateCheckout(guard cartValidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cartID := chi.URLParam(r, "id")

		if err := guard.Validate(ctx, cartID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"valid": true})
	}
}

// ValidatePromotionUpdate runs the promotion-update guard for the platform's
// cart promotion hook.
func ValidatePromotionUpdate(guard cartValidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cartID := chi.URLParam(r, "id")

		var payload promotionUpdatePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		action := commerce.PromotionAction(payload.Action)
		if action != commerce.PromotionActionAdd && action != commerce.PromotionActionRemove {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid promotion action"))
			return
		}

		if err := guard.ValidatePromotionUpdate(ctx, cartID, action, payload.Codes); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"valid": true})
	}
}
