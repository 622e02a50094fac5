package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coralcart/loyalty-backend/api/middleware"
	"github.com/coralcart/loyalty-backend/api/responses"
	"github.com/coralcart/loyalty-backend/api/validators"
	"github.com/coralcart/loyalty-backend/internal/ledger"
	pkgauth "github.com/coralcart/loyalty-backend/pkg/auth"
	"github.com/coralcart/loyalty-backend/pkg/db/models"
	"github.com/coralcart/loyalty-backend/pkg/enums"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

const transactionHistoryLimit = 50

type pointsLedger interface {
	GetBalance(ctx context.Context, customerID string) (*models.PointBalance, error)
	ListTransactions(ctx context.Context, customerID string, limit int) ([]models.PointTransaction, error)
	ApplyDelta(ctx context.Context, input ledger.DeltaInput) (*ledger.BalanceChange, error)
}

type pointsResponse struct {
	CustomerID   string                    `json:"customer_id"`
	Balance      int64                     `json:"balance"`
	Transactions []models.PointTransaction `json:"transactions"`
}

type adjustPointsPayload struct {
	Action string `json:"action" validate:"required,oneof=add deduct"`
	Points int64  `json:"points" validate:"required,gt=0"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// GetCustomerPoints returns the balance and recent transactions for a
// customer. Customers may only read their own points; admins may read anyone's.
func GetCustomerPoints(svc pointsLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		customerID := chi.URLParam(r, "id")

		if !canReadCustomer(ctx, customerID) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cannot read another customer's points"))
			return
		}

		balance, err := svc.GetBalance(ctx, customerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		transactions, err := svc.ListTransactions(ctx, customerID, transactionHistoryLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if transactions == nil {
			transactions = []models.PointTransaction{}
		}

		responses.WriteSuccess(w, pointsResponse{
			CustomerID:   customerID,
			Balance:      balance.Balance,
			Transactions: transactions,
		})
	}
}

// AdjustCustomerPoints grants or deducts points by admin action.
func AdjustCustomerPoints(svc pointsLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		customerID := chi.URLParam(r, "id")

		var payload adjustPointsPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		points := payload.Points
		txnType := enums.PointTransactionTypeEarn
		if payload.Action == "deduct" {
			points = -points
			txnType = enums.PointTransactionTypeSpend
		}

		reason := payload.Reason
		if reason == "" {
			reason = "manual adjustment"
		}

		change, err := svc.ApplyDelta(ctx, ledger.DeltaInput{
			CustomerID:    customerID,
			Points:        points,
			Type:          txnType,
			Reason:        reason,
			ReferenceID:   middleware.SubjectIDFromContext(ctx),
			ReferenceType: "admin",
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"customer_id": customerID,
			"balance":     change.Balance.Balance,
		})
	}
}

func canReadCustomer(ctx context.Context, customerID string) bool {
	if middleware.RoleFromContext(ctx) == string(pkgauth.RoleAdmin) {
		return true
	}
	return middleware.SubjectIDFromContext(ctx) == customerID
}
