package wallets

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mahara-hq/mahara-backend/pkg/db/models"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
)

// Repository manages persistence for wallets and their balance projections.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureWallet(ctx context.Context, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	FindByOwnerAndCurrency(ctx context.Context, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Wallet, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureWallet inserts the wallet and its zero-balance projection row if the
// (owner, currency) pair has none yet, then returns the surviving row. The second
// return value reports whether this call created the wallet.
func (r *repository) EnsureWallet(ctx context.Context, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, bool, error) {
	candidate := models.Wallet{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Currency: currency,
		IsActive: true,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "currency"}},
			DoNothing: true,
		}).
		Create(&candidate)
	if res.Error != nil {
		return nil, false, res.Error
	}
	created := res.RowsAffected > 0

	wallet, err := r.FindByOwnerAndCurrency(ctx, ownerID, currency)
	if err != nil {
		return nil, false, err
	}

	if created {
		balance := models.WalletBalance{
			WalletID:     wallet.ID,
			Currency:     currency,
			BalanceCents: 0,
		}
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "wallet_id"}},
				DoNothing: true,
			}).
			Create(&balance).Error; err != nil {
			return nil, false, err
		}
	}

	return wallet, created, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByOwnerAndCurrency(ctx context.Context, ownerID uuid.UUID, currency enums.Currency) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		First(&wallet, "owner_id = ? AND currency = ?", ownerID, currency).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Wallet, error) {
	var rows []models.Wallet
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("currency ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}
