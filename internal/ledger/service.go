package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coralcart/loyalty-backend/pkg/db"
	"github.com/coralcart/loyalty-backend/pkg/db/models"
	"github.com/coralcart/loyalty-backend/pkg/enums"
	pkgerrors "github.com/coralcart/loyalty-backend/pkg/errors"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns all balance mutations. Every delta runs in a single
// transaction that locks the customer's balance row, so concurrent
// spends against the same customer serialize instead of double-spending.
type Service struct {
	repo   Repository
	runner txRunner
	logg   *logger.Logger
}

// DeltaInput describes a single signed balance mutation.
type DeltaInput struct {
	CustomerID    string
	Points        int64
	Type          enums.PointTransactionType
	Reason        string
	ReferenceID   string
	ReferenceType string
}

// RestoreInput rewinds a customer's balance to a previously observed value.
type RestoreInput struct {
	CustomerID    string
	Balance       int64
	Reason        string
	ReferenceID   string
	ReferenceType string
}

// BalanceChange reports the outcome of a delta, including the balance
// observed before the mutation so callers can undo it later.
type BalanceChange struct {
	Balance         *models.PointBalance
	Transaction     *models.PointTransaction
	PreviousBalance int64
}

func NewService(repo Repository, runner txRunner, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{repo: repo, runner: runner, logg: logg}, nil
}

// GetBalance returns the customer's balance, treating a missing row as zero.
func (s *Service) GetBalance(ctx context.Context, customerID string) (*models.PointBalance, error) {
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	balance, err := s.repo.FindBalance(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.PointBalance{CustomerID: customerID, Balance: 0}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load point balance")
	}
	return balance, nil
}

// GetOrCreateBalance returns the customer's balance row, creating a zero
// balance when none exists yet. Safe to call repeatedly.
func (s *Service) GetOrCreateBalance(ctx context.Context, customerID string) (*models.PointBalance, error) {
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}

	var balance *models.PointBalance
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		balance, err = s.lockOrCreateBalance(ctx, s.repo.WithTx(tx), customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// ApplyDelta applies a signed point mutation. Earns must be positive,
// spends negative. A spend that would push the balance below zero is
// rejected with no writes.
func (s *Service) ApplyDelta(ctx context.Context, input DeltaInput) (*BalanceChange, error) {
	if err := validateDelta(input); err != nil {
		return nil, err
	}

	var change *BalanceChange
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		balance, err := s.lockOrCreateBalance(ctx, repo, input.CustomerID)
		if err != nil {
			return err
		}

		previous := balance.Balance
		next := previous + input.Points
		if next < 0 {
			return pkgerrors.Newf(pkgerrors.CodeInsufficientBalance,
				"insufficient point balance: have %d, need %d", previous, -input.Points).
				WithDetails(map[string]any{
					"customer_id": input.CustomerID,
					"balance":     previous,
					"requested":   -input.Points,
				})
		}

		balance.Balance = next
		if err := repo.SaveBalance(ctx, balance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update point balance")
		}

		txn := newTransaction(input)
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record point transaction")
		}

		change = &BalanceChange{Balance: balance, Transaction: txn, PreviousBalance: previous}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"customer_id": input.CustomerID,
		"type":        input.Type.String(),
		"points":      input.Points,
		"balance":     change.Balance.Balance,
	})
	s.logg.Info(logCtx, "point balance updated")
	return change, nil
}

// Restore sets the customer's balance back to a prior value verbatim and
// records the correction as an adjust transaction. A restore to the
// current value writes nothing.
func (s *Service) Restore(ctx context.Context, input RestoreInput) error {
	if input.CustomerID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if input.Balance < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "restored balance cannot be negative")
	}

	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		balance, err := s.lockOrCreateBalance(ctx, repo, input.CustomerID)
		if err != nil {
			return err
		}

		diff := input.Balance - balance.Balance
		if diff == 0 {
			return nil
		}

		balance.Balance = input.Balance
		if err := repo.SaveBalance(ctx, balance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to restore point balance")
		}

		txn := newTransaction(DeltaInput{
			CustomerID:    input.CustomerID,
			Points:        diff,
			Type:          enums.PointTransactionTypeAdjust,
			Reason:        input.Reason,
			ReferenceID:   input.ReferenceID,
			ReferenceType: input.ReferenceType,
		})
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to record balance restore")
		}
		return nil
	})
	if err != nil {
		return err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"customer_id": input.CustomerID,
		"balance":     input.Balance,
	})
	s.logg.Info(logCtx, "point balance restored")
	return nil
}

// HasTransaction reports whether a transaction of the given type already
// exists for the reference. Reconcilers use it as a replay guard.
func (s *Service) HasTransaction(ctx context.Context, customerID string, txnType enums.PointTransactionType, referenceID, referenceType string) (bool, error) {
	found, err := s.repo.HasTransaction(ctx, customerID, txnType, referenceID, referenceType)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to look up point transaction")
	}
	return found, nil
}

// ListTransactions returns the customer's most recent transactions.
func (s *Service) ListTransactions(ctx context.Context, customerID string, limit int) ([]models.PointTransaction, error) {
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	txns, err := s.repo.ListTransactionsByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list point transactions")
	}
	return txns, nil
}

// ListTransactionsByReference returns every transaction tied to a reference,
// for example all ledger activity behind one order.
func (s *Service) ListTransactionsByReference(ctx context.Context, referenceID, referenceType string) ([]models.PointTransaction, error) {
	if referenceID == "" || referenceType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id and type are required")
	}
	txns, err := s.repo.ListTransactionsByReference(ctx, referenceID, referenceType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list point transactions")
	}
	return txns, nil
}

func (s *Service) lockOrCreateBalance(ctx context.Context, repo Repository, customerID string) (*models.PointBalance, error) {
	balance, err := repo.FindBalanceForUpdate(ctx, customerID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to lock point balance")
	}

	created := &models.PointBalance{
		ID:         uuid.New(),
		CustomerID: customerID,
		Balance:    0,
	}
	if err := repo.CreateBalance(ctx, created); err != nil {
		if db.IsUniqueViolation(err, "ux_point_balances_customer") {
			balance, err = repo.FindBalanceForUpdate(ctx, customerID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to lock point balance")
			}
			return balance, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create point balance")
	}
	return created, nil
}

func validateDelta(input DeltaInput) error {
	if input.CustomerID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid transaction type %q", input.Type)
	}
	if input.Points == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "points delta cannot be zero")
	}
	switch input.Type {
	case enums.PointTransactionTypeEarn:
		if input.Points < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "earn delta must be positive")
		}
	case enums.PointTransactionTypeSpend:
		if input.Points > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "spend delta must be negative")
		}
	}
	return nil
}

func newTransaction(input DeltaInput) *models.PointTransaction {
	txn := &models.PointTransaction{
		ID:         uuid.New(),
		CustomerID: input.CustomerID,
		Type:       input.Type,
		Points:     abs(input.Points),
	}
	if input.Reason != "" {
		txn.Reason = &input.Reason
	}
	if input.ReferenceID != "" {
		txn.ReferenceID = &input.ReferenceID
	}
	if input.ReferenceType != "" {
		txn.ReferenceType = &input.ReferenceType
	}
	return txn
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
