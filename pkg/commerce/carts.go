package commerce

import (
	"context"
	"net/http"
	"net/url"

	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
)

// GetCart loads a cart with its items, promotions and metadata.
func (c *Client) GetCart(ctx context.Context, cartID string) (*Cart, error) {
	if cartID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	var resp struct {
		Cart Cart `json:"cart"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/carts/"+url.PathEscape(cartID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Cart, nil
}

// UpdateCartPromotions adds or removes promotion codes on the cart through the
// discount engine's own update path.
func (c *Client) UpdateCartPromotions(ctx context.Context, cartID string, action PromotionAction, codes []string) error {
	if cartID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	if len(codes) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one promotion code is required")
	}
	body := map[string]any{
		"action":      action,
		"promo_codes": codes,
	}
	return c.doJSON(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/promotions", body, nil)
}

// MergeCartMetadata merge-writes the provided keys into the cart metadata.
// Keys absent from the patch keep their current values; explicit nulls clear.
func (c *Client) MergeCartMetadata(ctx context.Context, cartID string, patch map[string]any) error {
	if cartID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	if len(patch) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "metadata patch is required")
	}
	body := map[string]any{"metadata": patch}
	return c.doJSON(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/metadata", body, nil)
}
