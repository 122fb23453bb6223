package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/mahara-hq/mahara-backend/pkg/enums"
)

// WalletOpenedEvent signals that a wallet now exists for an (owner, currency) pair.
type WalletOpenedEvent struct {
	WalletID uuid.UUID      `json:"wallet_id"`
	OwnerID  uuid.UUID      `json:"owner_id"`
	Currency enums.Currency `json:"currency"`
}

// WalletDeactivatedEvent is emitted when a wallet stops accepting transactions.
type WalletDeactivatedEvent struct {
	WalletID      uuid.UUID `json:"wallet_id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	DeactivatedAt time.Time `json:"deactivated_at"`
	Reason        string    `json:"reason,omitempty"`
}

// TransactionRecordedEvent carries one committed ledger entry and the balance it produced.
type TransactionRecordedEvent struct {
	TransactionID uuid.UUID                   `json:"transaction_id"`
	WalletID      uuid.UUID                   `json:"wallet_id"`
	OwnerID       uuid.UUID                   `json:"owner_id"`
	AmountCents   int64                       `json:"amount_cents"`
	Currency      enums.Currency              `json:"currency"`
	Type          enums.WalletTransactionType `json:"type"`
	BalanceCents  int64                       `json:"balance_cents"`
}

// TransferCompletedEvent surfaces both legs of a committed wallet-to-wallet transfer.
type TransferCompletedEvent struct {
	TransferID       uuid.UUID      `json:"transfer_id"`
	DebitTxID        uuid.UUID      `json:"debit_tx_id"`
	CreditTxID       uuid.UUID      `json:"credit_tx_id"`
	FromWalletID     uuid.UUID      `json:"from_wallet_id"`
	ToWalletID       uuid.UUID      `json:"to_wallet_id"`
	AmountCents      int64          `json:"amount_cents"`
	Currency         enums.Currency `json:"currency"`
	FromBalanceCents int64          `json:"from_balance_cents"`
	ToBalanceCents   int64          `json:"to_balance_cents"`
}
