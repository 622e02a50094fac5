package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/coralcart/loyalty-backend/pkg/commerce"
	"github.com/coralcart/loyalty-backend/pkg/db/models"
	"github.com/coralcart/loyalty-backend/pkg/enums"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
)

type stubOrderReader struct {
	order *commerce.Order
	err   error
}

func (s stubOrderReader) GetOrder(ctx context.Context, orderID string) (*commerce.Order, error) {
	return s.order, s.err
}

type stubReferenceLister struct {
	transactions []models.PointTransaction
}

func (s stubReferenceLister) ListTransactionsByReference(ctx context.Context, referenceID, referenceType string) ([]models.PointTransaction, error) {
	return s.transactions, nil
}

type stubConfigsReader struct {
	configs map[string]models.VariantPointConfig
}

func (s stubConfigsReader) GetConfigs(ctx context.Context, variantIDs []string) (map[string]models.VariantPointConfig, error) {
	return s.configs, nil
}

func orderRequest(orderID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID+"/coins", strings.NewReader(""))
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func int64Ptr(v int64) *int64 { return &v }

func TestGetOrderCoinsAggregatesCoinLines(t *testing.T) {
	order := &commerce.Order{
		ID: "order_1",
		Cart: &commerce.Cart{
			ID:         "cart_1",
			CustomerID: "cust_1",
			Items: []commerce.CartItem{
				{ID: "item_1", Title: "Sticker pack", VariantID: "variant_points", Quantity: 2},
				{ID: "item_2", Title: "Tote bag", VariantID: "variant_both", Quantity: 1},
				{ID: "item_3", Title: "Mug", VariantID: "variant_currency", Quantity: 1},
			},
			Metadata: map[string]any{
				"points_cost":          float64(280),
				"points_promo_id":      "promo_1",
				"redeemed_variant_ids": []any{"variant_both"},
			},
		},
	}
	configs := map[string]models.VariantPointConfig{
		"variant_points":   {VariantID: "variant_points", PaymentType: enums.PaymentTypePoints, PointPrice: int64Ptr(90)},
		"variant_both":     {VariantID: "variant_both", PaymentType: enums.PaymentTypeBoth, PointPrice: int64Ptr(100)},
		"variant_currency": {VariantID: "variant_currency", PaymentType: enums.PaymentTypeCurrency},
	}
	ledgerStub := stubReferenceLister{transactions: []models.PointTransaction{
		{CustomerID: "cust_1", Type: enums.PointTransactionTypeSpend, Points: 280},
	}}

	handler := GetOrderCoins(stubOrderReader{order: order}, ledgerStub, stubConfigsReader{configs: configs}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, orderRequest("order_1"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data orderCoinsResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if envelope.Data.CoinsUsed != 280 {
		t.Fatalf("expected 280 coins used got %d", envelope.Data.CoinsUsed)
	}
	if len(envelope.Data.Items) != 2 {
		t.Fatalf("expected 2 coin items got %d", len(envelope.Data.Items))
	}
	byVariant := map[string]coinItem{}
	for _, item := range envelope.Data.Items {
		byVariant[item.VariantID] = item
	}
	if item := byVariant["variant_points"]; item.TotalCoins != 180 {
		t.Fatalf("expected 180 total coins for points variant got %d", item.TotalCoins)
	}
	if item := byVariant["variant_both"]; item.TotalCoins != 100 {
		t.Fatalf("expected 100 total coins for both variant got %d", item.TotalCoins)
	}
	if _, ok := byVariant["variant_currency"]; ok {
		t.Fatal("currency variant must not appear as a coin item")
	}
}

func TestGetOrderCoinsBothVariantNotRedeemed(t *testing.T) {
	order := &commerce.Order{
		ID: "order_1",
		Cart: &commerce.Cart{
			ID: "cart_1",
			Items: []commerce.CartItem{
				{ID: "item_1", Title: "Tote bag", VariantID: "variant_both", Quantity: 1},
			},
		},
	}
	configs := map[string]models.VariantPointConfig{
		"variant_both": {VariantID: "variant_both", PaymentType: enums.PaymentTypeBoth, PointPrice: int64Ptr(100)},
	}
	handler := GetOrderCoins(stubOrderReader{order: order}, stubReferenceLister{}, stubConfigsReader{configs: configs}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, orderRequest("order_1"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data orderCoinsResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 0 {
		t.Fatalf("both variant without redemption must not count, got %v", envelope.Data.Items)
	}
}

func TestGetOrderCoinsNoCart(t *testing.T) {
	handler := GetOrderCoins(stubOrderReader{order: &commerce.Order{ID: "order_1"}}, stubReferenceLister{}, stubConfigsReader{}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, orderRequest("order_1"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data orderCoinsResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.CoinsUsed != 0 || len(envelope.Data.Items) != 0 {
		t.Fatalf("expected empty response got %+v", envelope.Data)
	}
}

func TestGetOrderCoinsOrderNotFound(t *testing.T) {
	handler := GetOrderCoins(stubOrderReader{err: pkgerrors.New(pkgerrors.CodeNotFound, "commerce resource not found")}, stubReferenceLister{}, stubConfigsReader{}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, orderRequest("order_missing"))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
