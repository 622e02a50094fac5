package ledger

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coralcart/loyalty-backend/pkg/db/models"
	"github.com/coralcart/loyalty-backend/pkg/enums"
)

// Repository manages persistence for point balances and the transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBalance(ctx context.Context, customerID string) (*models.PointBalance, error)
	// FindBalanceForUpdate locks the balance row for the rest of the enclosing
	// transaction, serializing concurrent writers for the same customer.
	FindBalanceForUpdate(ctx context.Context, customerID string) (*models.PointBalance, error)
	CreateBalance(ctx context.Context, balance *models.PointBalance) error
	SaveBalance(ctx context.Context, balance *models.PointBalance) error
	CreateTransaction(ctx context.Context, txn *models.PointTransaction) error
	ListTransactionsByCustomer(ctx context.Context, customerID string, limit int) ([]models.PointTransaction, error)
	ListTransactionsByReference(ctx context.Context, referenceID, referenceType string) ([]models.PointTransaction, error)
	HasTransaction(ctx context.Context, customerID string, txnType enums.PointTransactionType, referenceID, referenceType string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindBalance(ctx context.Context, customerID string) (*models.PointBalance, error) {
	var balance models.PointBalance
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *repository) FindBalanceForUpdate(ctx context.Context, customerID string) (*models.PointBalance, error) {
	var balance models.PointBalance
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ?", customerID).
		First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *repository) CreateBalance(ctx context.Context, balance *models.PointBalance) error {
	return r.db.WithContext(ctx).Create(balance).Error
}

func (r *repository) SaveBalance(ctx context.Context, balance *models.PointBalance) error {
	return r.db.WithContext(ctx).
		Model(&models.PointBalance{}).
		Where("id = ?", balance.ID).
		Update("balance", balance.Balance).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.PointTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactionsByCustomer(ctx context.Context, customerID string, limit int) ([]models.PointTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var txns []models.PointTransaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListTransactionsByReference(ctx context.Context, referenceID, referenceType string) ([]models.PointTransaction, error) {
	var txns []models.PointTransaction
	err := r.db.WithContext(ctx).
		Where("reference_id = ? AND reference_type = ?", referenceID, referenceType).
		Order("created_at DESC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) HasTransaction(ctx context.Context, customerID string, txnType enums.PointTransactionType, referenceID, referenceType string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("customer_id = ? AND type = ? AND reference_id = ? AND reference_type = ?",
			customerID, txnType, referenceID, referenceType).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
