package enums

import "fmt"

// WalletTransactionType maps to the wallet_transaction_type_enum enum in Postgres.
type WalletTransactionType string

const (
	WalletTransactionTypeDeposit       WalletTransactionType = "DEPOSIT"
	WalletTransactionTypeWithdrawal    WalletTransactionType = "WITHDRAWAL"
	WalletTransactionTypeTransfer      WalletTransactionType = "TRANSFER"
	WalletTransactionTypeEscrowHold    WalletTransactionType = "ESCROW_HOLD"
	WalletTransactionTypeEscrowRelease WalletTransactionType = "ESCROW_RELEASE"
	WalletTransactionTypePayout        WalletTransactionType = "PAYOUT"
	WalletTransactionTypeFee           WalletTransactionType = "FEE"
	WalletTransactionTypeRefund        WalletTransactionType = "REFUND"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTransactionTypeDeposit,
	WalletTransactionTypeWithdrawal,
	WalletTransactionTypeTransfer,
	WalletTransactionTypeEscrowHold,
	WalletTransactionTypeEscrowRelease,
	WalletTransactionTypePayout,
	WalletTransactionTypeFee,
	WalletTransactionTypeRefund,
}

// Types whose debits must never take a wallet balance below zero.
var overdraftGuardedTypes = []WalletTransactionType{
	WalletTransactionTypeWithdrawal,
	WalletTransactionTypePayout,
	WalletTransactionTypeFee,
}

// IsValid reports whether the value matches the canonical transaction type enum.
func (t WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// GuardsOverdraft reports whether a transaction of this type is rejected when it
// would drive the projected balance negative.
func (t WalletTransactionType) GuardsOverdraft() bool {
	for _, candidate := range overdraftGuardedTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseWalletTransactionType converts raw input into WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}
