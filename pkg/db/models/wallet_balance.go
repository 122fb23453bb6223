package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mahara-hq/mahara-backend/pkg/enums"
)

// WalletBalance is the materialized projection of a wallet's ledger: one row per
// wallet whose balance equals the sum of all COMPLETED transaction amounts. It is
// written in the same database transaction as the ledger insert that changes it.
type WalletBalance struct {
	WalletID          uuid.UUID      `gorm:"column:wallet_id;type:uuid;primaryKey"`
	Currency          enums.Currency `gorm:"column:currency;type:wallet_currency_enum;not null"`
	BalanceCents      int64          `gorm:"column:balance_cents;not null;default:0"`
	LastTransactionAt *time.Time     `gorm:"column:last_transaction_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
