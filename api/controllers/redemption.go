package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coralcart/loyalty-backend/api/middleware"
	"github.com/coralcart/loyalty-backend/api/responses"
	"github.com/coralcart/loyalty-backend/api/validators"
	"github.com/coralcart/loyalty-backend/internal/redemption"
	pkgauth "github.com/coralcart/loyalty-backend/pkg/auth"
	"github.com/coralcart/loyalty-backend/pkg/commerce"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

type redeemer interface {
	Redeem(ctx context.Context, cartID, actorID string, selectedVariantIDs []string) (*redemption.Result, error)
	Remove(ctx context.Context, cartID, actorID string) (*commerce.Cart, error)
}

type redeemPayload struct {
	VariantIDs []string `json:"variant_ids,omitempty" validate:"omitempty,max=100,dive,required"`
}

// RedeemCartPoints applies a point redemption to the cart and returns the
// updated cart.
func RedeemCartPoints(svc redeemer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cartID := chi.URLParam(r, "id")

		var payload redeemPayload
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		result, err := svc.Redeem(ctx, cartID, actorCustomerID(ctx), payload.VariantIDs)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"cart":        result.Cart,
			"points_cost": result.PointsCost,
			"promo_code":  result.PromoCode,
		})
	}
}

// RemoveCartPoints clears an active redemption from the cart.
func RemoveCartPoints(svc redeemer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cartID := chi.URLParam(r, "id")

		cart, err := svc.Remove(ctx, cartID, actorCustomerID(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"cart": cart})
	}
}

// actorCustomerID identifies the customer acting on the cart. Admins act on
// any cart, so their subject is not bound to the cart's owner.
func actorCustomerID(ctx context.Context) string {
	if middleware.RoleFromContext(ctx) == string(pkgauth.RoleAdmin) {
		return ""
	}
	return middleware.SubjectIDFromContext(ctx)
}
