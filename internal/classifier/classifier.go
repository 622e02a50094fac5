package classifier

import (
	"github.com/shopspring/decimal"

	"github.com/coralcart/loyalty-backend/pkg/commerce"
	"github.com/coralcart/loyalty-backend/pkg/db/models"
	"github.com/coralcart/loyalty-backend/pkg/enums"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
)

// Result describes which cart lines are paid with points and what that
// redemption costs.
type Result struct {
	// PointVariantIDs lists the variants paid with points, in cart order.
	PointVariantIDs []string
	// TotalPointCost is the points the customer must spend for those lines.
	TotalPointCost int64
	// CurrencyTotal is the money value the redemption covers, used to size
	// the discount promotion.
	CurrencyTotal decimal.Decimal
}

// Redeemed reports whether any line is paid with points.
func (r Result) Redeemed() bool {
	return len(r.PointVariantIDs) > 0
}

// Classify walks the cart and decides, per line, whether it is paid with
// points. Variants without a config (or configured currency) always pay with
// money. Points-only variants always pay with points. Dual variants pay with
// points only when the caller selected them. The same inputs always produce
// the same result.
func Classify(items []commerce.CartItem, configs map[string]models.VariantPointConfig, selectedVariantIDs []string) (Result, error) {
	selected := make(map[string]bool, len(selectedVariantIDs))
	for _, id := range selectedVariantIDs {
		selected[id] = true
	}

	result := Result{CurrencyTotal: decimal.Zero}
	for _, item := range items {
		config, ok := configs[item.VariantID]
		if !ok || config.PaymentType == enums.PaymentTypeCurrency {
			continue
		}

		usePoints := config.PaymentType == enums.PaymentTypePoints ||
			(config.PaymentType == enums.PaymentTypeBoth && selected[item.VariantID])
		if !usePoints {
			continue
		}

		if config.PointPrice == nil || *config.PointPrice <= 0 {
			return Result{}, pkgerrors.Newf(pkgerrors.CodeInvalidConfig,
				"variant %s is point-eligible but has no point price", item.VariantID).
				WithDetails(map[string]any{"variant_id": item.VariantID})
		}

		result.PointVariantIDs = append(result.PointVariantIDs, item.VariantID)
		result.TotalPointCost += *config.PointPrice * item.Quantity
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))
		result.CurrencyTotal = result.CurrencyTotal.Add(lineTotal)
	}
	return result, nil
}
