package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coralcart/loyalty-backend/pkg/commerce"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
)

type stubValidator struct {
	validateErr  error
	promotionErr error
	action       commerce.PromotionAction
	codes        []string
}

func (s *stubValidator) Validate(ctx context.Context, cartID string) error {
	return s.validateErr
}

func (s *stubValidator) ValidatePromotionUpdate(ctx context.Context, cartID string, action commerce.PromotionAction, codes []string) error {
	s.action = action
	s.codes = codes
	return s.promotionErr
}

func TestValidateCheckoutPasses(t *testing.T) {
	handler := ValidateCheckout(&stubValidator{}, nil)

	req := cartRequest(http.MethodPost, "cart_1", "/checkout/validate", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestValidateCheckoutInsufficientBalance(t *testing.T) {
	guard := &stubValidator{validateErr: pkgerrors.New(pkgerrors.CodeInsufficientBalance, "balance no longer covers reserved cost")}
	handler := ValidateCheckout(guard, nil)

	req := cartRequest(http.MethodPost, "cart_1", "/checkout/validate", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestValidatePromotionUpdateForwardsPayload(t *testing.T) {
	guard := &stubValidator{}
	handler := ValidatePromotionUpdate(guard, nil)

	req := cartRequest(http.MethodPost, "cart_1", "/promotions/validate", `{"action":"add","codes":["SUMMER10"]}`)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if guard.action != commerce.PromotionActionAdd {
		t.Fatalf("unexpected action: %s", guard.action)
	}
	if len(guard.codes) != 1 || guard.codes[0] != "SUMMER10" {
		t.Fatalf("unexpected codes: %v", guard.codes)
	}
}

func TestValidatePromotionUpdateConflict(t *testing.T) {
	guard := &stubValidator{promotionErr: pkgerrors.New(pkgerrors.CodeConflict, "remove coins first")}
	handler := ValidatePromotionUpdate(guard, nil)

	req := cartRequest(http.MethodPost, "cart_1", "/promotions/validate", `{"action":"add","codes":["SUMMER10"]}`)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestValidatePromotionUpdateRejectsBadAction(t *testing.T) {
	guard := &stubValidator{}
	handler := ValidatePromotionUpdate(guard, nil)

	req := cartRequest(http.MethodPost, "cart_1", "/promotions/validate", `{"action":"replace","codes":[]}`)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
