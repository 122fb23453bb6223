package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mahara-hq/mahara-backend/pkg/enums"
)

// WalletTransaction is one immutable ledger entry. Amount is signed and expressed in
// the currency's smallest unit: positive credits the wallet, negative debits it.
// Rows are insert-only; nothing in the codebase updates or deletes them.
type WalletTransaction struct {
	ID                uuid.UUID                     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID          uuid.UUID                     `gorm:"column:wallet_id;type:uuid;not null;index"`
	AmountCents       int64                         `gorm:"column:amount_cents;not null"`
	Currency          enums.Currency                `gorm:"column:currency;type:wallet_currency_enum;not null"`
	Type              enums.WalletTransactionType   `gorm:"column:type;type:wallet_transaction_type_enum;not null"`
	Status            enums.WalletTransactionStatus `gorm:"column:status;type:wallet_transaction_status_enum;not null"`
	Description       string                        `gorm:"column:description"`
	IdempotencyKey    *string                       `gorm:"column:idempotency_key;uniqueIndex:uq_wallet_transactions_idempotency_key"`
	RelatedEntityType *enums.RelatedEntityType      `gorm:"column:related_entity_type;type:related_entity_type_enum"`
	RelatedEntityID   *uuid.UUID                    `gorm:"column:related_entity_id;type:uuid;index"`
	CreatedBy         string                        `gorm:"column:created_by;not null"`
	CreatedAt         time.Time                     `gorm:"column:created_at;autoCreateTime"`
}
