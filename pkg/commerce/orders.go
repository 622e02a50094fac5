package commerce

import (
	"context"
	"net/http"
	"net/url"

	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
)

// GetOrder loads an order together with its originating cart (items, metadata).
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	var resp struct {
		Order Order `json:"order"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}
