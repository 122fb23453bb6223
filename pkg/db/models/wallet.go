package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mahara-hq/mahara-backend/pkg/enums"
)

// Wallet holds money for one (owner, currency) pair. At most one wallet exists per
// pair; wallets are deactivated, never deleted.
type Wallet struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID   uuid.UUID      `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:uq_wallets_owner_currency"`
	Currency  enums.Currency `gorm:"column:currency;type:wallet_currency_enum;not null;uniqueIndex:uq_wallets_owner_currency"`
	IsActive  bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
