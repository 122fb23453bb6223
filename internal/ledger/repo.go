package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mahara-hq/mahara-backend/pkg/db/models"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
	"github.com/mahara-hq/mahara-backend/pkg/pagination"
)

// ListFilter narrows a transaction history query. Limit is expected to carry the
// pagination buffer already.
type ListFilter struct {
	Types    []enums.WalletTransactionType
	Statuses []enums.WalletTransactionStatus
	Currency *enums.Currency
	From     *time.Time
	To       *time.Time
	Cursor   *pagination.Cursor
	Limit    int
}

// Repository manages persistence for ledger entries and balance projections.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertTransaction(ctx context.Context, entry *models.WalletTransaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error)
	FindTransactionByIdempotencyKey(ctx context.Context, key string) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, filter ListFilter) ([]models.WalletTransaction, error)
	ListByRelatedEntity(ctx context.Context, entityType enums.RelatedEntityType, entityID uuid.UUID) ([]models.WalletTransaction, error)
	FindWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetBalance(ctx context.Context, walletID uuid.UUID) (*models.WalletBalance, error)
	GetBalanceForUpdate(ctx context.Context, walletID uuid.UUID) (*models.WalletBalance, error)
	LockBalances(ctx context.Context, walletIDs ...uuid.UUID) error
	CreateBalance(ctx context.Context, balance *models.WalletBalance) error
	UpdateBalance(ctx context.Context, walletID uuid.UUID, balanceCents int64, at time.Time) error
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

func (r *repository) InsertTransaction(ctx context.Context, entry *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	err := r.db.WithContext(ctx).First(&entry, "idempotency_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListTransactions(ctx context.Context, walletID uuid.UUID, filter ListFilter) ([]models.WalletTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Order("id DESC")

	if len(filter.Types) > 0 {
		query = query.Where("type IN ?", filter.Types)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Currency != nil {
		query = query.Where("currency = ?", *filter.Currency)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	if filter.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", filter.Cursor.CreatedAt, filter.Cursor.ID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.WalletTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByRelatedEntity(ctx context.Context, entityType enums.RelatedEntityType, entityID uuid.UUID) ([]models.WalletTransaction, error) {
	var rows []models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("related_entity_type = ? AND related_entity_id = ?", entityType, entityID).
		Order("amount_cents ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) GetBalance(ctx context.Context, walletID uuid.UUID) (*models.WalletBalance, error) {
	var balance models.WalletBalance
	err := r.db.WithContext(ctx).First(&balance, "wallet_id = ?", walletID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// GetBalanceForUpdate reads the projection row under a row lock so concurrent
// writers serialize on it. SQLite serializes writers globally, so the lock clause
// is only added on Postgres.
func (r *repository) GetBalanceForUpdate(ctx context.Context, walletID uuid.UUID) (*models.WalletBalance, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var balance models.WalletBalance
	err := query.First(&balance, "wallet_id = ?", walletID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// LockBalances acquires row locks on the given projection rows in ascending
// wallet-id order so concurrent transfers touching the same pair cannot deadlock.
func (r *repository) LockBalances(ctx context.Context, walletIDs ...uuid.UUID) error {
	if len(walletIDs) == 0 {
		return nil
	}
	ordered := make([]uuid.UUID, len(walletIDs))
	copy(ordered, walletIDs)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})
	for _, id := range ordered {
		if _, err := r.GetBalanceForUpdate(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) CreateBalance(ctx context.Context, balance *models.WalletBalance) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wallet_id"}},
			DoNothing: true,
		}).
		Create(balance).Error
}

func (r *repository) UpdateBalance(ctx context.Context, walletID uuid.UUID, balanceCents int64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.WalletBalance{}).
		Where("wallet_id = ?", walletID).
		Updates(map[string]any{
			"balance_cents":       balanceCents,
			"last_transaction_at": at,
		}).Error
}
