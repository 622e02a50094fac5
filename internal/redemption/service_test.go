package redemption

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/coralcart/loyalty-backend/pkg/commerce"
	"github.com/coralcart/loyalty-backend/pkg/config"
	"github.com/coralcart/loyalty-backend/pkg/db/models"
	"github.com/coralcart/loyalty-backend/pkg/enums"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
	"github.com/coralcart/loyalty-backend/pkg/lock"
	"github.com/coralcart/loyalty-backend/pkg/logger"
	"github.com/coralcart/loyalty-backend/pkg/metrics"
)

type fakeCommerce struct {
	carts      map[string]*commerce.Cart
	promoSeq   int
	promotions map[string]*commerce.Promotion

	createPromotionErr error
	updatePromosErr    error
	mergeMetadataErr   error

	calls []string
}

func newFakeCommerce() *fakeCommerce {
	return &fakeCommerce{
		carts:      map[string]*commerce.Cart{},
		promotions: map[string]*commerce.Promotion{},
	}
}

func (f *fakeCommerce) GetCart(ctx context.Context, cartID string) (*commerce.Cart, error) {
	cart, ok := f.carts[cartID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	copied := *cart
	return &copied, nil
}

func (f *fakeCommerce) CreatePromotion(ctx context.Context, input commerce.CreatePromotionInput) (*commerce.Promotion, error) {
	f.calls = append(f.calls, "create_promotion")
	if f.createPromotionErr != nil {
		return nil, f.createPromotionErr
	}
	f.promoSeq++
	promo := &commerce.Promotion{
		ID:     "promo_" + input.Code,
		Code:   input.Code,
		Status: commerce.PromotionStatusActive,
	}
	f.promotions[promo.ID] = promo
	return promo, nil
}

func (f *fakeCommerce) UpdateCartPromotions(ctx context.Context, cartID string, action commerce.PromotionAction, codes []string) error {
	f.calls = append(f.calls, "update_promotions_"+string(action))
	if f.updatePromosErr != nil && action == commerce.PromotionActionAdd {
		return f.updatePromosErr
	}
	cart := f.carts[cartID]
	switch action {
	case commerce.PromotionActionAdd:
		for _, code := range codes {
			for id, promo := range f.promotions {
				if promo.Code == code {
					cart.Promotions = append(cart.Promotions, commerce.Promotion{ID: id, Code: code, Status: commerce.PromotionStatusActive})
				}
			}
		}
	case commerce.PromotionActionRemove:
		var kept []commerce.Promotion
		for _, promo := range cart.Promotions {
			removed := false
			for _, code := range codes {
				if promo.Code == code {
					removed = true
				}
			}
			if !removed {
				kept = append(kept, promo)
			}
		}
		cart.Promotions = kept
	}
	return nil
}

func (f *fakeCommerce) MergeCartMetadata(ctx context.Context, cartID string, patch map[string]any) error {
	f.calls = append(f.calls, "merge_metadata")
	if f.mergeMetadataErr != nil {
		return f.mergeMetadataErr
	}
	cart := f.carts[cartID]
	if cart.Metadata == nil {
		cart.Metadata = map[string]any{}
	}
	for key, value := range patch {
		if value == nil {
			delete(cart.Metadata, key)
			continue
		}
		cart.Metadata[key] = value
	}
	return nil
}

func (f *fakeCommerce) DeactivatePromotion(ctx context.Context, promoID string) error {
	f.calls = append(f.calls, "deactivate_promotion")
	if promo, ok := f.promotions[promoID]; ok {
		promo.Status = commerce.PromotionStatusInactive
	}
	return nil
}

type fakeLedger struct {
	balance int64
}

func (f *fakeLedger) GetBalance(ctx context.Context, customerID string) (*models.PointBalance, error) {
	return &models.PointBalance{CustomerID: customerID, Balance: f.balance}, nil
}

type fakeConfigs struct {
	configs map[string]models.VariantPointConfig
}

func (f *fakeConfigs) GetConfigs(ctx context.Context, variantIDs []string) (map[string]models.VariantPointConfig, error) {
	return f.configs, nil
}

type memoryLockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{data: map[string]string{}}
}

func (s *memoryLockStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.data[key]; held {
		return false, nil
	}
	s.data[key] = value.(string)
	return true, nil
}

func (s *memoryLockStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	if !ok {
		return "", errors.New("redis: nil")
	}
	return value, nil
}

func (s *memoryLockStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *memoryLockStore) LockKey(name string) string {
	return "loyalty:lock:" + name
}

func int64Ptr(v int64) *int64 { return &v }

type testHarness struct {
	svc      *Service
	commerce *fakeCommerce
	ledger   *fakeLedger
	store    *memoryLockStore
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	fc := newFakeCommerce()
	fl := &fakeLedger{balance: 1000}
	store := newMemoryLockStore()
	manager, err := lock.NewManager(store)
	if err != nil {
		t.Fatalf("lock manager error: %v", err)
	}

	svc, err := NewService(Options{
		Commerce: fc,
		Ledger:   fl,
		Configs: &fakeConfigs{configs: map[string]models.VariantPointConfig{
			"v_points": {VariantID: "v_points", PaymentType: enums.PaymentTypePoints, PointPrice: int64Ptr(100)},
			"v_both":   {VariantID: "v_both", PaymentType: enums.PaymentTypeBoth, PointPrice: int64Ptr(50)},
		}},
		Locks:   manager,
		LockCfg: config.LockConfig{AcquireTimeout: 0, TTL: 10 * time.Second},
		Metrics: metrics.NewSagaMetrics(prometheus.NewRegistry()),
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("service error: %v", err)
	}
	return &testHarness{svc: svc, commerce: fc, ledger: fl, store: store}
}

func (h *testHarness) seedCart(cartID string) *commerce.Cart {
	cart := &commerce.Cart{
		ID:           cartID,
		CustomerID:   "cus_1",
		CurrencyCode: "usd",
		Items: []commerce.CartItem{
			{ID: "item_1", VariantID: "v_points", Quantity: 2, UnitPrice: decimal.RequireFromString("5.00")},
			{ID: "item_2", VariantID: "v_cash", Quantity: 1, UnitPrice: decimal.RequireFromString("9.99")},
		},
	}
	h.commerce.carts[cartID] = cart
	return cart
}

func TestService_Redeem(t *testing.T) {
	h := newHarness(t)
	h.seedCart("cart_1")

	result, err := h.svc.Redeem(context.Background(), "cart_1", "", nil)
	if err != nil {
		t.Fatalf("Redeem error: %v", err)
	}
	if result.PointsCost != 200 {
		t.Fatalf("points cost = %d, want 200", result.PointsCost)
	}
	if !strings.HasPrefix(result.PromoCode, PromoCodePrefix) {
		t.Fatalf("promo code = %q, want %s prefix", result.PromoCode, PromoCodePrefix)
	}

	cart := h.commerce.carts["cart_1"]
	state := commerce.RedemptionStateFrom(cart.Metadata)
	if !state.Redeemed() {
		t.Fatalf("cart metadata = %v, want redemption recorded", cart.Metadata)
	}
	if state.PointsCost != 200 {
		t.Fatalf("metadata points cost = %d, want 200", state.PointsCost)
	}
	if len(cart.Promotions) != 1 || cart.Promotions[0].Code != result.PromoCode {
		t.Fatalf("cart promotions = %v, want the minted code attached", cart.Promotions)
	}

	if balance := h.ledger.balance; balance != 1000 {
		t.Fatalf("balance = %d, redemption must not move points", balance)
	}

	if len(h.store.data) != 0 {
		t.Fatalf("lock store = %v, want lock released", h.store.data)
	}
}

func TestService_Redeem_InsufficientBalance(t *testing.T) {
	h := newHarness(t)
	h.seedCart("cart_1")
	h.ledger.balance = 150

	_, err := h.svc.Redeem(context.Background(), "cart_1", "", nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance) {
		t.Fatalf("error = %v, want INSUFFICIENT_BALANCE", err)
	}
	if len(h.commerce.calls) != 0 {
		t.Fatalf("commerce calls = %v, want none before a rejected redemption", h.commerce.calls)
	}
}

func TestService_Redeem_NoEligibleItems(t *testing.T) {
	h := newHarness(t)
	h.commerce.carts["cart_1"] = &commerce.Cart{
		ID:         "cart_1",
		CustomerID: "cus_1",
		Items: []commerce.CartItem{
			{ID: "item_1", VariantID: "v_cash", Quantity: 1, UnitPrice: decimal.RequireFromString("9.99")},
		},
	}

	_, err := h.svc.Redeem(context.Background(), "cart_1", "", nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestService_Redeem_AlreadyRedeemed(t *testing.T) {
	h := newHarness(t)
	cart := h.seedCart("cart_1")
	cart.Metadata = map[string]any{
		commerce.MetadataKeyPointsCost:    int64(200),
		commerce.MetadataKeyPointsPromoID: "promo_old",
	}

	_, err := h.svc.Redeem(context.Background(), "cart_1", "", nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("error = %v, want CONFLICT", err)
	}
}

func TestService_Redeem_OwnCart(t *testing.T) {
	h := newHarness(t)
	h.seedCart("cart_1")

	if _, err := h.svc.Redeem(context.Background(), "cart_1", "cus_1", nil); err != nil {
		t.Fatalf("Redeem error: %v", err)
	}
}

func TestService_Redeem_ForeignCart(t *testing.T) {
	h := newHarness(t)
	h.seedCart("cart_1")

	_, err := h.svc.Redeem(context.Background(), "cart_1", "cus_2", nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("error = %v, want FORBIDDEN", err)
	}
	if len(h.commerce.calls) != 0 {
		t.Fatalf("commerce calls = %v, want none for a foreign cart", h.commerce.calls)
	}
}

func TestService_Remove_ForeignCart(t *testing.T) {
	h := newHarness(t)
	h.seedCart("cart_1")

	if _, err := h.svc.Redeem(context.Background(), "cart_1", "cus_1", nil); err != nil {
		t.Fatalf("Redeem error: %v", err)
	}

	_, err := h.svc.Remove(context.Background(), "cart_1", "cus_2")
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("error = %v, want FORBIDDEN", err)
	}
	if state := commerce.RedemptionStateFrom(h.commerce.carts["cart_1"].Metadata); !state.Redeemed() {
		t.Fatal("foreign remove must leave the redemption in place")
	}
	if len(h.store.data) != 0 {
		t.Fatalf("lock store = %v, want lock released", h.store.data)
	}
}

func TestService_Redeem_LockConflict(t *testing.T) {
	h := newHarness(t)
	h.seedCart("cart_1")

	key := h.store.LockKey("cart:cart_1")
	h.store.data[key] = "someone-else"

	_, err := h.svc.Redeem(context.Background(), "cart_1", "", nil)
	if !pkgerrors.HasCode(err, pkgerrors.CodeLockConflict) {
		t.Fatalf("error = %v, want LOCK_CONFLICT", err)
	}
	typed := pkgerrors.As(err)
	if meta := pkgerrors.MetadataFor(typed.Code()); !meta.Retryable {
		t.Fatal("lock conflict must be marked retryable")
	}
}

func TestService_Redeem_CompensatesOnMetadataFailure(t *testing.T) {
	h := newHarness(t)
	h.seedCart("cart_1")
	h.commerce.mergeMetadataErr = errors.New("metadata write refused")

	_, err := h.svc.Redeem(context.Background(), "cart_1", "", nil)
	if err == nil {
		t.Fatal("expected the saga to fail")
	}

	want := []string{
		"create_promotion",
		"update_promotions_add",
		"merge_metadata",
		"update_promotions_remove",
		"deactivate_promotion",
	}
	if len(h.commerce.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", h.commerce.calls, want)
	}
	for i, call := range want {
		if h.commerce.calls[i] != call {
			t.Fatalf("calls = %v, want %v", h.commerce.calls, want)
		}
	}

	cart := h.commerce.carts["cart_1"]
	if len(cart.Promotions) != 0 {
		t.Fatalf("cart promotions = %v, want code detached", cart.Promotions)
	}
	for _, promo := range h.commerce.promotions {
		if promo.Status != commerce.PromotionStatusInactive {
			t.Fatalf("promotion %s = %s, want inactive", promo.ID, promo.Status)
		}
	}
	if len(h.store.data) != 0 {
		t.Fatalf("lock store = %v, want lock released after failure", h.store.data)
	}
}

func TestService_Remove(t *testing.T) {
	h := newHarness(t)
	h.seedCart("cart_1")

	result, err := h.svc.Redeem(context.Background(), "cart_1", "", nil)
	if err != nil {
		t.Fatalf("Redeem error: %v", err)
	}

	cart, err := h.svc.Remove(context.Background(), "cart_1", "")
	if err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if commerce.RedemptionStateFrom(cart.Metadata).Redeemed() {
		t.Fatalf("metadata = %v, want redemption cleared", cart.Metadata)
	}
	if len(cart.Promotions) != 0 {
		t.Fatalf("promotions = %v, want code detached", cart.Promotions)
	}
	if promo := h.commerce.promotions["promo_"+result.PromoCode]; promo.Status != commerce.PromotionStatusInactive {
		t.Fatalf("promotion status = %s, want inactive", promo.Status)
	}

	_, err = h.svc.Remove(context.Background(), "cart_1", "")
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("second remove error = %v, want NOT_FOUND", err)
	}
}
