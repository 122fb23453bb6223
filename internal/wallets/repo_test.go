package wallets

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mahara-hq/mahara-backend/pkg/db/models"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
)

func setupWalletsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	wallets := `
CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  currency TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (owner_id, currency)
);`
	walletBalances := `
CREATE TABLE IF NOT EXISTS wallet_balances (
  wallet_id TEXT PRIMARY KEY,
  currency TEXT NOT NULL,
  balance_cents INTEGER NOT NULL DEFAULT 0,
  last_transaction_at DATETIME,
  updated_at DATETIME
);`

	for _, stmt := range []string{wallets, walletBalances} {
		require.NoError(t, db.Exec(stmt).Error)
	}

	return db
}

func TestRepository_EnsureWallet(t *testing.T) {
	db := setupWalletsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	ownerID := uuid.New()

	wallet, created, err := repo.EnsureWallet(ctx, ownerID, enums.CurrencyEGP)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ownerID, wallet.OwnerID)
	assert.Equal(t, enums.CurrencyEGP, wallet.Currency)
	assert.True(t, wallet.IsActive)

	var balance models.WalletBalance
	require.NoError(t, db.First(&balance, "wallet_id = ?", wallet.ID).Error)
	assert.Equal(t, int64(0), balance.BalanceCents)
	assert.Equal(t, enums.CurrencyEGP, balance.Currency)

	again, created, err := repo.EnsureWallet(ctx, ownerID, enums.CurrencyEGP)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, wallet.ID, again.ID)

	other, created, err := repo.EnsureWallet(ctx, ownerID, enums.CurrencyUSD)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, wallet.ID, other.ID)
}

func TestRepository_ListByOwner(t *testing.T) {
	db := setupWalletsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	ownerID := uuid.New()
	_, _, err := repo.EnsureWallet(ctx, ownerID, enums.CurrencyUSD)
	require.NoError(t, err)
	_, _, err = repo.EnsureWallet(ctx, ownerID, enums.CurrencyEGP)
	require.NoError(t, err)
	_, _, err = repo.EnsureWallet(ctx, uuid.New(), enums.CurrencyEGP)
	require.NoError(t, err)

	rows, err := repo.ListByOwner(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.CurrencyEGP, rows[0].Currency)
	assert.Equal(t, enums.CurrencyUSD, rows[1].Currency)
}

func TestRepository_Deactivate(t *testing.T) {
	db := setupWalletsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	wallet, _, err := repo.EnsureWallet(ctx, uuid.New(), enums.CurrencyEUR)
	require.NoError(t, err)

	require.NoError(t, repo.Deactivate(ctx, wallet.ID))

	reloaded, err := repo.FindByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)
}

func TestRepository_FindByIDNotFound(t *testing.T) {
	db := setupWalletsTestDB(t)
	repo := NewRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
