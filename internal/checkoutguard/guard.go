package checkoutguard

import (
	"context"
	"fmt"
	"strings"

	"github.com/coralcart/loyalty-backend/internal/redemption"
	"github.com/coralcart/loyalty-backend/pkg/commerce"
	"github.com/coralcart/loyalty-backend/pkg/db/models"
	"github.com/coralcart/loyalty-backend/pkg/enums"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

type cartReader interface {
	GetCart(ctx context.Context, cartID string) (*commerce.Cart, error)
}

type balanceReader interface {
	GetBalance(ctx context.Context, customerID string) (*models.PointBalance, error)
}

type configReader interface {
	GetConfigs(ctx context.Context, variantIDs []string) (map[string]models.VariantPointConfig, error)
}

// Guard re-validates carts against live state right before checkout and
// whenever the promotion set changes. It never mutates anything.
type Guard struct {
	carts    cartReader
	balances balanceReader
	configs  configReader
	logg     *logger.Logger
}

func NewGuard(carts cartReader, balances balanceReader, configs configReader, logg *logger.Logger) (*Guard, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart reader is required")
	}
	if balances == nil {
		return nil, fmt.Errorf("balance reader is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("config reader is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Guard{carts: carts, balances: balances, configs: configs, logg: logg}, nil
}

// Validate checks the cart is in a checkoutable state: no mixing of coin and
// regular promotions, no points-only items without an active redemption, and
// a balance that still covers the reserved cost. It returns nil when the cart
// may complete.
func (g *Guard) Validate(ctx context.Context, cartID string) error {
	if cartID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	cart, err := g.carts.GetCart(ctx, cartID)
	if err != nil {
		return err
	}
	state := commerce.RedemptionStateFrom(cart.Metadata)

	if state.PointsCost > 0 {
		if codes := regularPromoCodes(cart); len(codes) > 0 {
			return pkgerrors.Newf(pkgerrors.CodeConflict,
				"cannot checkout with both regular promotions (%s) and coins; remove promotions or coins first",
				strings.Join(codes, ", "))
		}
	}

	if err := g.checkPointsOnlyItems(ctx, cart, state); err != nil {
		return err
	}

	if state.PointsCost <= 0 {
		return nil
	}
	if cart.CustomerID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer required for coin redemption")
	}

	balance, err := g.balances.GetBalance(ctx, cart.CustomerID)
	if err != nil {
		return err
	}
	if balance.Balance < state.PointsCost {
		return pkgerrors.Newf(pkgerrors.CodeInsufficientBalance,
			"insufficient coins: required %d, available %d", state.PointsCost, balance.Balance).
			WithDetails(map[string]any{
				"required":  state.PointsCost,
				"available": balance.Balance,
			})
	}
	return nil
}

// ValidatePromotionUpdate guards manual promotion changes on a cart. Adds
// consisting only of COINS- codes come from the redemption saga itself and
// pass through. Regular codes cannot join a cart with an active redemption,
// and COINS- codes cannot ride along on a manual add.
func (g *Guard) ValidatePromotionUpdate(ctx context.Context, cartID string, action commerce.PromotionAction, codes []string) error {
	if cartID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}
	if action != commerce.PromotionActionAdd || len(codes) == 0 {
		return nil
	}

	var coinCodes, regularCodes []string
	for _, code := range codes {
		if strings.HasPrefix(code, redemption.PromoCodePrefix) {
			coinCodes = append(coinCodes, code)
		} else {
			regularCodes = append(regularCodes, code)
		}
	}
	if len(regularCodes) == 0 {
		return nil
	}

	cart, err := g.carts.GetCart(ctx, cartID)
	if err != nil {
		return err
	}
	if commerce.RedemptionStateFrom(cart.Metadata).PointsCost > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict,
			"cannot apply promotion codes when coins are already redeemed; remove coins first")
	}
	if len(coinCodes) > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict,
			"coin promotions are managed automatically and cannot be manually added")
	}
	return nil
}

// checkPointsOnlyItems rejects checkout when a points-only line exists but no
// redemption is recorded on the cart.
func (g *Guard) checkPointsOnlyItems(ctx context.Context, cart *commerce.Cart, state commerce.RedemptionState) error {
	if state.PointsCost > 0 || len(cart.Items) == 0 {
		return nil
	}
	variantIDs := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		variantIDs = append(variantIDs, item.VariantID)
	}
	configs, err := g.configs.GetConfigs(ctx, variantIDs)
	if err != nil {
		return err
	}
	for _, item := range cart.Items {
		if config, ok := configs[item.VariantID]; ok && config.PaymentType == enums.PaymentTypePoints {
			return pkgerrors.New(pkgerrors.CodeConflict,
				"cart contains coins-only items; redeem coins before checkout")
		}
	}
	return nil
}

func regularPromoCodes(cart *commerce.Cart) []string {
	var codes []string
	for _, promo := range cart.Promotions {
		if !strings.HasPrefix(promo.Code, redemption.PromoCodePrefix) {
			codes = append(codes, promo.Code)
		}
	}
	return codes
}
