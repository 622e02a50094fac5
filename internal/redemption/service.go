package redemption

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/coralcart/loyalty-backend/internal/classifier"
	"github.com/coralcart/loyalty-backend/pkg/commerce"
	"github.com/coralcart/loyalty-backend/pkg/config"
	"github.com/coralcart/loyalty-backend/pkg/db/models"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
	"github.com/coralcart/loyalty-backend/pkg/lock"
	"github.com/coralcart/loyalty-backend/pkg/logger"
	"github.com/coralcart/loyalty-backend/pkg/metrics"
)

// PromoCodePrefix marks promotion codes minted by the loyalty service. The
// checkout guard recognizes them by this prefix.
const PromoCodePrefix = "COINS-"

const promoCodeSuffixLength = 6

type commerceAPI interface {
	GetCart(ctx context.Context, cartID string) (*commerce.Cart, error)
	CreatePromotion(ctx context.Context, input commerce.CreatePromotionInput) (*commerce.Promotion, error)
	UpdateCartPromotions(ctx context.Context, cartID string, action commerce.PromotionAction, codes []string) error
	MergeCartMetadata(ctx context.Context, cartID string, patch map[string]any) error
	DeactivatePromotion(ctx context.Context, promoID string) error
}

type ledgerAPI interface {
	GetBalance(ctx context.Context, customerID string) (*models.PointBalance, error)
}

type configAPI interface {
	GetConfigs(ctx context.Context, variantIDs []string) (map[string]models.VariantPointConfig, error)
}

type locker interface {
	Acquire(ctx context.Context, name string, timeout, ttl time.Duration) (*lock.Lease, error)
}

// Service runs the redemption saga: it reserves a discount against the
// customer's point balance without moving any points. Points only move when
// the order lifecycle reconciler sees the order placed or canceled.
type Service struct {
	commerce commerceAPI
	ledger   ledgerAPI
	configs  configAPI
	locks    locker
	lockCfg  config.LockConfig
	metrics  *metrics.SagaMetrics
	logg     *logger.Logger
}

// Result reports a redemption applied to a cart.
type Result struct {
	Cart       *commerce.Cart
	State      commerce.RedemptionState
	PromoCode  string
	PointsCost int64
}

type Options struct {
	Commerce commerceAPI
	Ledger   ledgerAPI
	Configs  configAPI
	Locks    locker
	LockCfg  config.LockConfig
	Metrics  *metrics.SagaMetrics
	Logger   *logger.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Commerce == nil {
		return nil, fmt.Errorf("commerce client is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	if opts.Configs == nil {
		return nil, fmt.Errorf("point config service is required")
	}
	if opts.Locks == nil {
		return nil, fmt.Errorf("lock manager is required")
	}
	if opts.Metrics == nil {
		return nil, fmt.Errorf("saga metrics are required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		commerce: opts.Commerce,
		ledger:   opts.Ledger,
		configs:  opts.Configs,
		locks:    opts.Locks,
		lockCfg:  opts.LockCfg,
		metrics:  opts.Metrics,
		logg:     opts.Logger,
	}, nil
}

// Redeem applies a point redemption to the cart: it classifies the lines,
// checks the balance covers the cost, then under a per-cart lock mints a
// COINS- promotion, attaches it, and records the reservation in cart
// metadata. Side effects already committed are compensated in reverse order
// when a later step fails. A non-empty actorID must match the cart's
// customer; admins pass an empty actorID.
func (s *Service) Redeem(ctx context.Context, cartID, actorID string, selectedVariantIDs []string) (*Result, error) {
	started := time.Now()
	result, err := s.redeem(ctx, cartID, actorID, selectedVariantIDs)
	s.metrics.ObserveDuration("redeem", time.Since(started))
	if err != nil {
		s.metrics.IncFailure("redeem")
		return nil, err
	}
	s.metrics.IncSuccess("redeem")
	return result, nil
}

func (s *Service) redeem(ctx context.Context, cartID, actorID string, selectedVariantIDs []string) (*Result, error) {
	if cartID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}

	cart, err := s.commerce.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.CustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart has no customer attached")
	}
	if err := checkCartOwner(cart, actorID); err != nil {
		return nil, err
	}
	if commerce.RedemptionStateFrom(cart.Metadata).Redeemed() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart already has a point redemption")
	}

	classification, err := s.classifyCart(ctx, cart, selectedVariantIDs)
	if err != nil {
		return nil, err
	}
	if !classification.Redeemed() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no coin-eligible items in cart")
	}

	balance, err := s.ledger.GetBalance(ctx, cart.CustomerID)
	if err != nil {
		return nil, err
	}
	if balance.Balance < classification.TotalPointCost {
		return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientBalance,
			"insufficient point balance: have %d, need %d", balance.Balance, classification.TotalPointCost).
			WithDetails(map[string]any{
				"balance":  balance.Balance,
				"required": classification.TotalPointCost,
			})
	}

	lease, err := s.acquireCartLock(ctx, cartID)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, lease, cartID)

	return s.applyRedemption(ctx, cart, classification)
}

// applyRedemption runs the effectful half of the saga. Every committed side
// effect pushes its inverse onto the compensation stack before the next step
// runs.
func (s *Service) applyRedemption(ctx context.Context, cart *commerce.Cart, classification classifier.Result) (*Result, error) {
	var compensations []compensation

	code, err := newPromoCode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to generate promotion code")
	}

	promo, err := s.commerce.CreatePromotion(ctx, commerce.CreatePromotionInput{
		Code:         code,
		CustomerID:   cart.CustomerID,
		Amount:       classification.CurrencyTotal,
		CurrencyCode: cart.CurrencyCode,
		UsageLimit:   1,
		Description:  fmt.Sprintf("Point redemption for cart %s", cart.ID),
	})
	if err != nil {
		return nil, err
	}
	compensations = append(compensations, compensation{
		name: "deactivate promotion",
		run: func(ctx context.Context) error {
			return s.commerce.DeactivatePromotion(ctx, promo.ID)
		},
	})

	if err := s.commerce.UpdateCartPromotions(ctx, cart.ID, commerce.PromotionActionAdd, []string{code}); err != nil {
		s.compensate(ctx, cart.ID, compensations)
		return nil, err
	}
	compensations = append(compensations, compensation{
		name: "detach promotion code",
		run: func(ctx context.Context) error {
			return s.commerce.UpdateCartPromotions(ctx, cart.ID, commerce.PromotionActionRemove, []string{code})
		},
	})

	state := commerce.RedemptionState{
		PointsCost:         classification.TotalPointCost,
		PromoID:            promo.ID,
		RedeemedVariantIDs: classification.PointVariantIDs,
	}
	if err := s.commerce.MergeCartMetadata(ctx, cart.ID, state.MetadataPatch()); err != nil {
		s.compensate(ctx, cart.ID, compensations)
		return nil, err
	}

	updated, err := s.commerce.GetCart(ctx, cart.ID)
	if err != nil {
		// The redemption is committed; surface the cart we already have.
		updated = cart
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"cart_id":     cart.ID,
		"customer_id": cart.CustomerID,
		"points_cost": classification.TotalPointCost,
		"promo_code":  code,
	})
	s.logg.Info(logCtx, "point redemption applied")

	return &Result{
		Cart:       updated,
		State:      state,
		PromoCode:  code,
		PointsCost: classification.TotalPointCost,
	}, nil
}

// Remove undoes an active redemption: detaches the COINS- code, clears the
// loyalty metadata, and deactivates the promotion. Removing a cart with no
// active redemption fails with NOT_FOUND. A non-empty actorID must match
// the cart's customer.
func (s *Service) Remove(ctx context.Context, cartID, actorID string) (*commerce.Cart, error) {
	started := time.Now()
	cart, err := s.remove(ctx, cartID, actorID)
	s.metrics.ObserveDuration("remove", time.Since(started))
	if err != nil {
		s.metrics.IncFailure("remove")
		return nil, err
	}
	s.metrics.IncSuccess("remove")
	return cart, nil
}

func (s *Service) remove(ctx context.Context, cartID, actorID string) (*commerce.Cart, error) {
	if cartID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}

	lease, err := s.acquireCartLock(ctx, cartID)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, lease, cartID)

	cart, err := s.commerce.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := checkCartOwner(cart, actorID); err != nil {
		return nil, err
	}
	state := commerce.RedemptionStateFrom(cart.Metadata)
	if !state.Redeemed() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart has no active point redemption")
	}

	code := activePromoCode(cart, state.PromoID)
	if code != "" {
		if err := s.commerce.UpdateCartPromotions(ctx, cartID, commerce.PromotionActionRemove, []string{code}); err != nil {
			return nil, err
		}
	}

	if err := s.commerce.MergeCartMetadata(ctx, cartID, commerce.RedemptionState{}.MetadataPatch()); err != nil {
		return nil, err
	}

	if err := s.commerce.DeactivatePromotion(ctx, state.PromoID); err != nil {
		// The cart is already clean; the stale promotion cannot be applied
		// again because it is customer-scoped and single-use.
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"cart_id":  cartID,
			"promo_id": state.PromoID,
		}), "failed to deactivate redemption promotion")
	}

	updated, err := s.commerce.GetCart(ctx, cartID)
	if err != nil {
		updated = cart
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"cart_id":     cartID,
		"customer_id": cart.CustomerID,
	})
	s.logg.Info(logCtx, "point redemption removed")
	return updated, nil
}

func (s *Service) classifyCart(ctx context.Context, cart *commerce.Cart, selectedVariantIDs []string) (classifier.Result, error) {
	variantIDs := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		variantIDs = append(variantIDs, item.VariantID)
	}
	configs, err := s.configs.GetConfigs(ctx, variantIDs)
	if err != nil {
		return classifier.Result{}, err
	}
	return classifier.Classify(cart.Items, configs, selectedVariantIDs)
}

func (s *Service) acquireCartLock(ctx context.Context, cartID string) (*lock.Lease, error) {
	lease, err := s.locks.Acquire(ctx, "cart:"+cartID, s.lockCfg.AcquireTimeout, s.lockCfg.TTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, pkgerrors.New(pkgerrors.CodeLockConflict, "another redemption is in progress for this cart")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to acquire cart lock")
	}
	return lease, nil
}

func (s *Service) releaseLock(ctx context.Context, lease *lock.Lease, cartID string) {
	if err := lease.Release(ctx); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"cart_id": cartID}), "failed to release cart lock")
	}
}

type compensation struct {
	name string
	run  func(ctx context.Context) error
}

// compensate unwinds committed side effects in reverse order. Failures are
// logged and counted but never replace the primary error.
func (s *Service) compensate(ctx context.Context, cartID string, compensations []compensation) {
	for i := len(compensations) - 1; i >= 0; i-- {
		step := compensations[i]
		s.metrics.IncCompensation("redeem")
		if err := step.run(ctx); err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"cart_id": cartID,
				"step":    step.name,
			})
			s.logg.Error(logCtx, "redemption compensation failed", err)
		}
	}
}

func checkCartOwner(cart *commerce.Cart, actorID string) error {
	if actorID == "" || cart.CustomerID == actorID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "cart belongs to another customer")
}

func activePromoCode(cart *commerce.Cart, promoID string) string {
	for _, promo := range cart.Promotions {
		if promo.ID == promoID {
			return promo.Code
		}
	}
	return ""
}

const promoCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func newPromoCode() (string, error) {
	buf := make([]byte, promoCodeSuffixLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = promoCodeAlphabet[int(b)%len(promoCodeAlphabet)]
	}
	return PromoCodePrefix + string(buf), nil
}
