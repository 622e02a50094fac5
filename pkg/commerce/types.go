package commerce

import (
	"github.com/shopspring/decimal"
)

// Cart is the platform's cart aggregate as the loyalty service sees it.
type Cart struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customer_id"`
	CurrencyCode string          `json:"currency_code"`
	Total        decimal.Decimal `json:"total"`
	Items        []CartItem      `json:"items"`
	Promotions   []Promotion     `json:"promotions"`
	Metadata     map[string]any  `json:"metadata"`
}

// CartItem is one purchasable line on a cart.
type CartItem struct {
	ID        string          `json:"id"`
	VariantID string          `json:"variant_id"`
	Title     string          `json:"title"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is the platform's order aggregate, carrying the cart it was placed from.
type Order struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	Cart       *Cart  `json:"cart"`
}

// PromotionStatus mirrors the discount engine's lifecycle states.
type PromotionStatus string

const (
	PromotionStatusActive   PromotionStatus = "active"
	PromotionStatusInactive PromotionStatus = "inactive"
)

// Promotion is a discount-engine code attached to a cart.
type Promotion struct {
	ID     string          `json:"id"`
	Code   string          `json:"code"`
	Status PromotionStatus `json:"status"`
}

// PromotionAction selects how a cart's promotion set is updated.
type PromotionAction string

const (
	PromotionActionAdd    PromotionAction = "add"
	PromotionActionRemove PromotionAction = "remove"
)

// CreatePromotionInput describes the fixed-amount, single-use, customer-scoped
// code issued for a point redemption.
type CreatePromotionInput struct {
	Code         string          `json:"code"`
	CustomerID   string          `json:"customer_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
	UsageLimit   int             `json:"usage_limit"`
	Description  string          `json:"description"`
}
