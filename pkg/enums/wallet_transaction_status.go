package enums

import "fmt"

// WalletTransactionStatus maps to the wallet_transaction_status_enum enum in Postgres.
type WalletTransactionStatus string

const (
	WalletTransactionStatusCompleted WalletTransactionStatus = "COMPLETED"
	WalletTransactionStatusPending   WalletTransactionStatus = "PENDING"
	WalletTransactionStatusFailed    WalletTransactionStatus = "FAILED"
	WalletTransactionStatusCancelled WalletTransactionStatus = "CANCELLED"
)

var validWalletTransactionStatuses = []WalletTransactionStatus{
	WalletTransactionStatusCompleted,
	WalletTransactionStatusPending,
	WalletTransactionStatusFailed,
	WalletTransactionStatusCancelled,
}

// IsValid reports whether the value matches the canonical transaction status enum.
func (s WalletTransactionStatus) IsValid() bool {
	for _, candidate := range validWalletTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseWalletTransactionStatus converts raw input into WalletTransactionStatus.
func ParseWalletTransactionStatus(value string) (WalletTransactionStatus, error) {
	for _, candidate := range validWalletTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction status %q", value)
}
