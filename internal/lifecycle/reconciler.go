package lifecycle

import (
	"context"
	"fmt"

	"github.com/coralcart/loyalty-backend/internal/ledger"
	"github.com/coralcart/loyalty-backend/pkg/commerce"
	"github.com/coralcart/loyalty-backend/pkg/enums"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

const (
	referenceTypeCart  = "cart"
	referenceTypeOrder = "order"
)

type orderReader interface {
	GetOrder(ctx context.Context, orderID string) (*commerce.Order, error)
}

type ledgerAPI interface {
	ApplyDelta(ctx context.Context, input ledger.DeltaInput) (*ledger.BalanceChange, error)
	HasTransaction(ctx context.Context, customerID string, txnType enums.PointTransactionType, referenceID, referenceType string) (bool, error)
}

// Reconciler moves points when orders settle. The redemption saga only
// reserves a discount; the actual spend happens here when the order is
// placed, and the refund when it is canceled. Both paths probe the
// transaction log first, so a redelivered event never moves points twice.
type Reconciler struct {
	orders orderReader
	ledger ledgerAPI
	logg   *logger.Logger
}

func NewReconciler(orders orderReader, ledgerSvc ledgerAPI, logg *logger.Logger) (*Reconciler, error) {
	if orders == nil {
		return nil, fmt.Errorf("order reader is required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Reconciler{orders: orders, ledger: ledgerSvc, logg: logg}, nil
}

// HandleOrderPlaced deducts the reserved points for an order whose cart
// carries a redemption. Orders without a redemption or a customer are
// ignored.
func (r *Reconciler) HandleOrderPlaced(ctx context.Context, orderID string) error {
	order, state, err := r.loadRedemption(ctx, orderID)
	if err != nil || state == nil {
		return err
	}

	spent, err := r.ledger.HasTransaction(ctx, order.CustomerID,
		enums.PointTransactionTypeSpend, order.Cart.ID, referenceTypeCart)
	if err != nil {
		return err
	}
	if spent {
		r.logg.Info(r.logCtx(ctx, order), "points already deducted for cart")
		return nil
	}

	_, err = r.ledger.ApplyDelta(ctx, ledger.DeltaInput{
		CustomerID:    order.CustomerID,
		Points:        -state.PointsCost,
		Type:          enums.PointTransactionTypeSpend,
		Reason:        fmt.Sprintf("order %s placed", order.ID),
		ReferenceID:   order.Cart.ID,
		ReferenceType: referenceTypeCart,
	})
	if err != nil {
		return err
	}

	r.logg.Info(r.logCtx(ctx, order), "redemption points deducted")
	return nil
}

// HandleOrderCanceled refunds the points deducted for the order. The refund
// only runs when a spend was recorded for the originating cart and no refund
// exists yet for the order.
func (r *Reconciler) HandleOrderCanceled(ctx context.Context, orderID string) error {
	order, state, err := r.loadRedemption(ctx, orderID)
	if err != nil || state == nil {
		return err
	}

	spent, err := r.ledger.HasTransaction(ctx, order.CustomerID,
		enums.PointTransactionTypeSpend, order.Cart.ID, referenceTypeCart)
	if err != nil {
		return err
	}
	if !spent {
		r.logg.Info(r.logCtx(ctx, order), "no deduction recorded for cart, skipping refund")
		return nil
	}

	refunded, err := r.ledger.HasTransaction(ctx, order.CustomerID,
		enums.PointTransactionTypeEarn, order.ID, referenceTypeOrder)
	if err != nil {
		return err
	}
	if refunded {
		r.logg.Info(r.logCtx(ctx, order), "points already refunded for order")
		return nil
	}

	_, err = r.ledger.ApplyDelta(ctx, ledger.DeltaInput{
		CustomerID:    order.CustomerID,
		Points:        state.PointsCost,
		Type:          enums.PointTransactionTypeEarn,
		Reason:        fmt.Sprintf("order %s canceled", order.ID),
		ReferenceID:   order.ID,
		ReferenceType: referenceTypeOrder,
	})
	if err != nil {
		return err
	}

	r.logg.Info(r.logCtx(ctx, order), "redemption points refunded")
	return nil
}

// loadRedemption loads the order and returns its redemption state, or nil
// when the order carries none worth reconciling.
func (r *Reconciler) loadRedemption(ctx context.Context, orderID string) (*commerce.Order, *commerce.RedemptionState, error) {
	if orderID == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.Cart == nil || order.CustomerID == "" {
		return order, nil, nil
	}
	state := commerce.RedemptionStateFrom(order.Cart.Metadata)
	if state.PointsCost <= 0 {
		return order, nil, nil
	}
	return order, &state, nil
}

func (r *Reconciler) logCtx(ctx context.Context, order *commerce.Order) context.Context {
	fields := map[string]any{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
	}
	if order.Cart != nil {
		fields["cart_id"] = order.Cart.ID
	}
	return r.logg.WithFields(ctx, fields)
}
