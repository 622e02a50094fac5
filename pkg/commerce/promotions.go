package commerce

import (
	"context"
	"net/http"
	"net/url"

	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
)

// CreatePromotion issues a fixed-amount, single-use, customer-scoped discount.
func (c *Client) CreatePromotion(ctx context.Context, input CreatePromotionInput) (*Promotion, error) {
	if input.Code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promotion code is required")
	}
	if input.CustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promotion amount must be positive")
	}
	if input.UsageLimit <= 0 {
		input.UsageLimit = 1
	}
	var resp struct {
		Promotion Promotion `json:"promotion"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/promotions", input, &resp); err != nil {
		return nil, err
	}
	return &resp.Promotion, nil
}

// GetPromotion resolves a promotion by id.
func (c *Client) GetPromotion(ctx context.Context, promoID string) (*Promotion, error) {
	if promoID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promotion id is required")
	}
	var resp struct {
		Promotion Promotion `json:"promotion"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/promotions/"+url.PathEscape(promoID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Promotion, nil
}

// DeactivatePromotion marks the promotion inactive in the discount engine.
func (c *Client) DeactivatePromotion(ctx context.Context, promoID string) error {
	if promoID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "promotion id is required")
	}
	body := map[string]any{"status": PromotionStatusInactive}
	return c.doJSON(ctx, http.MethodPost, "/promotions/"+url.PathEscape(promoID)+"/status", body, nil)
}
