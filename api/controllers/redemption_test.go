package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/coralcart/loyalty-backend/internal/redemption"
	"github.com/coralcart/loyalty-backend/pkg/commerce"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
)

type stubRedeemer struct {
	result      *redemption.Result
	redeemErr   error
	removeErr   error
	redeemWith  []string
	redeemActor string
	removeActor string
}

func (s *stubRedeemer) Redeem(ctx context.Context, cartID, actorID string, selectedVariantIDs []string) (*redemption.Result, error) {
	s.redeemActor = actorID
	s.redeemWith = selectedVariantIDs
	return s.result, s.redeemErr
}

func (s *stubRedeemer) Remove(ctx context.Context, cartID, actorID string) (*commerce.Cart, error) {
	s.removeActor = actorID
	if s.removeErr != nil {
		return nil, s.removeErr
	}
	return &commerce.Cart{ID: cartID}, nil
}

func cartRequest(method, cartID, path, body string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/carts/"+cartID+path, strings.NewReader(body))
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("id", cartID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestRedeemCartPointsSuccess(t *testing.T) {
	svc := &stubRedeemer{result: &redemption.Result{
		Cart:       &commerce.Cart{ID: "cart_1"},
		PromoCode:  "COINS-A1B2C3",
		PointsCost: 280,
	}}
	handler := RedeemCartPoints(svc, nil)

	req := cartRequest(http.MethodPost, "cart_1", "/points/redeem", `{"variant_ids":["variant_2"]}`)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.redeemWith) != 1 || svc.redeemWith[0] != "variant_2" {
		t.Fatalf("unexpected selection: %v", svc.redeemWith)
	}

	var envelope struct {
		Data struct {
			PointsCost int64  `json:"points_cost"`
			PromoCode  string `json:"promo_code"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.PointsCost != 280 {
		t.Fatalf("unexpected points cost: %d", envelope.Data.PointsCost)
	}
	if envelope.Data.PromoCode != "COINS-A1B2C3" {
		t.Fatalf("unexpected promo code: %s", envelope.Data.PromoCode)
	}
}

func TestRedeemCartPointsBindsActor(t *testing.T) {
	svc := &stubRedeemer{result: &redemption.Result{Cart: &commerce.Cart{ID: "cart_1"}}}
	handler := RedeemCartPoints(svc, nil)

	req := asCustomer(cartRequest(http.MethodPost, "cart_1", "/points/redeem", ""), "cust_1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.redeemActor != "cust_1" {
		t.Fatalf("expected actor cust_1 got %q", svc.redeemActor)
	}
}

func TestRedeemCartPointsAdminActsUnbound(t *testing.T) {
	svc := &stubRedeemer{result: &redemption.Result{Cart: &commerce.Cart{ID: "cart_1"}}}
	handler := RedeemCartPoints(svc, nil)

	req := asAdmin(cartRequest(http.MethodPost, "cart_1", "/points/redeem", ""), "admin_1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.redeemActor != "" {
		t.Fatalf("expected empty actor for admin got %q", svc.redeemActor)
	}
}

func TestRedeemCartPointsForeignCart(t *testing.T) {
	svc := &stubRedeemer{redeemErr: pkgerrors.New(pkgerrors.CodeForbidden, "cart belongs to another customer")}
	handler := RedeemCartPoints(svc, nil)

	req := asCustomer(cartRequest(http.MethodPost, "cart_1", "/points/redeem", ""), "cust_2")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestRemoveCartPointsBindsActor(t *testing.T) {
	svc := &stubRedeemer{}
	handler := RemoveCartPoints(svc, nil)

	req := asCustomer(cartRequest(http.MethodDelete, "cart_1", "/points/redeem", ""), "cust_1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.removeActor != "cust_1" {
		t.Fatalf("expected actor cust_1 got %q", svc.removeActor)
	}
}

func TestRedeemCartPointsNoBody(t *testing.T) {
	svc := &stubRedeemer{result: &redemption.Result{Cart: &commerce.Cart{ID: "cart_1"}}}
	handler := RedeemCartPoints(svc, nil)

	req := cartRequest(http.MethodPost, "cart_1", "/points/redeem", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.redeemWith != nil {
		t.Fatalf("expected nil selection got %v", svc.redeemWith)
	}
}

func TestRedeemCartPointsInsufficientBalance(t *testing.T) {
	svc := &stubRedeemer{redeemErr: pkgerrors.New(pkgerrors.CodeInsufficientBalance, "balance 50 does not cover cost 280")}
	handler := RedeemCartPoints(svc, nil)

	req := cartRequest(http.MethodPost, "cart_1", "/points/redeem", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestRedeemCartPointsLockConflict(t *testing.T) {
	svc := &stubRedeemer{redeemErr: pkgerrors.New(pkgerrors.CodeLockConflict, "cart is busy")}
	handler := RedeemCartPoints(svc, nil)

	req := cartRequest(http.MethodPost, "cart_1", "/points/redeem", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestRemoveCartPointsSuccess(t *testing.T) {
	svc := &stubRedeemer{}
	handler := RemoveCartPoints(svc, nil)

	req := cartRequest(http.MethodDelete, "cart_1", "/points/redeem", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestRemoveCartPointsNotFound(t *testing.T) {
	svc := &stubRedeemer{removeErr: pkgerrors.New(pkgerrors.CodeNotFound, "no active redemption on cart")}
	handler := RemoveCartPoints(svc, nil)

	req := cartRequest(http.MethodDelete, "cart_1", "/points/redeem", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
