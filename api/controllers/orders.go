package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coralcart/loyalty-backend/api/responses"
	"github.com/coralcart/loyalty-backend/pkg/commerce"
	"github.com/coralcart/loyalty-backend/pkg/db/models"
	"github.com/coralcart/loyalty-backend/pkg/enums"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

type orderReader interface {
	GetOrder(ctx context.Context, orderID string) (*commerce.Order, error)
}

type referenceLister interface {
	ListTransactionsByReference(ctx context.Context, referenceID, referenceType string) ([]models.PointTransaction, error)
}

type configsReader interface {
	GetConfigs(ctx context.Context, variantIDs []string) (map[string]models.VariantPointConfig, error)
}

type coinItem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	VariantID  string `json:"variant_id"`
	Quantity   int64  `json:"quantity"`
	CoinPrice  int64  `json:"coin_price"`
	TotalCoins int64  `json:"total_coins"`
}

type orderCoinsResponse struct {
	CoinsUsed    int64                     `json:"coins_used"`
	CartMetadata map[string]any            `json:"cart_metadata"`
	Transactions []models.PointTransaction `json:"transactions"`
	Items        []coinItem                `json:"items"`
}

// GetOrderCoins aggregates the coin-paid lines and ledger activity behind one
// order, for the admin order view.
func GetOrderCoins(orders orderReader, ledgerSvc referenceLister, configSvc configsReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID := chi.URLParam(r, "id")

		order, err := orders.GetOrder(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := orderCoinsResponse{
			Transactions: []models.PointTransaction{},
			Items:        []coinItem{},
		}
		if order.Cart == nil {
			responses.WriteSuccess(w, resp)
			return
		}
		cart := order.Cart
		resp.CartMetadata = cart.Metadata

		variantIDs := make([]string, 0, len(cart.Items))
		for _, item := range cart.Items {
			variantIDs = append(variantIDs, item.VariantID)
		}
		configs, err := configSvc.GetConfigs(ctx, variantIDs)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		state := commerce.RedemptionStateFrom(cart.Metadata)
		redeemed := make(map[string]bool, len(state.RedeemedVariantIDs))
		for _, id := range state.RedeemedVariantIDs {
			redeemed[id] = true
		}

		for _, item := range cart.Items {
			config, ok := configs[item.VariantID]
			if !ok {
				continue
			}
			paidWithCoins := config.PaymentType == enums.PaymentTypePoints ||
				(config.PaymentType == enums.PaymentTypeBoth && redeemed[item.VariantID])
			if !paidWithCoins {
				continue
			}
			var coinPrice int64
			if config.PointPrice != nil {
				coinPrice = *config.PointPrice
			}
			resp.Items = append(resp.Items, coinItem{
				ID:         item.ID,
				Title:      item.Title,
				VariantID:  item.VariantID,
				Quantity:   item.Quantity,
				CoinPrice:  coinPrice,
				TotalCoins: coinPrice * item.Quantity,
			})
		}

		transactions, err := ledgerSvc.ListTransactionsByReference(ctx, cart.ID, "cart")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if transactions != nil {
			resp.Transactions = transactions
		}
		for _, txn := range resp.Transactions {
			if txn.Type == enums.PointTransactionTypeSpend {
				resp.CoinsUsed += txn.Points
			}
		}

		responses.WriteSuccess(w, resp)
	}
}
