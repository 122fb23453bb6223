package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mahara-hq/mahara-backend/api/responses"
	"github.com/mahara-hq/mahara-backend/api/validators"
	"github.com/mahara-hq/mahara-backend/internal/transfers"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
	pkgerrors "github.com/mahara-hq/mahara-backend/pkg/errors"
	"github.com/mahara-hq/mahara-backend/pkg/logger"
)

type createTransferRequest struct {
	ToOwnerID      string  `json:"to_owner_id" validate:"required,uuid"`
	FromOwnerID    *string `json:"from_owner_id,omitempty" validate:"omitempty,uuid"`
	Currency       string  `json:"currency" validate:"required"`
	AmountCents    int64   `json:"amount_cents" validate:"required,min=1"`
	Description    string  `json:"description,omitempty" validate:"omitempty,max=500"`
	IdempotencyKey *string `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

type createTransferResponse struct {
	Status           string    `json:"status"`
	TransferID       uuid.UUID `json:"transfer_id"`
	DebitTxID        uuid.UUID `json:"debit_tx_id"`
	CreditTxID       uuid.UUID `json:"credit_tx_id"`
	FromWalletID     uuid.UUID `json:"from_wallet_id"`
	ToWalletID       uuid.UUID `json:"to_wallet_id"`
	FromBalanceCents int64     `json:"from_balance_cents"`
	ToBalanceCents   int64     `json:"to_balance_cents"`
}

// CreateTransfer moves money from the caller's wallet to another owner's wallet.
// Admins may move money on behalf of a third party via from_owner_id.
func CreateTransfer(svc transfers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createTransferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		toOwnerID, err := uuid.Parse(payload.ToOwnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid destination owner id"))
			return
		}

		fromOwnerID := actor.userID
		if payload.FromOwnerID != nil {
			parsed, err := uuid.Parse(*payload.FromOwnerID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid source owner id"))
				return
			}
			if parsed != actor.userID && !actor.isAdmin() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cannot move another owner's money"))
				return
			}
			fromOwnerID = parsed
		}

		currency, err := enums.ParseCurrency(strings.TrimSpace(payload.Currency))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}

		key := payload.IdempotencyKey
		if key == nil {
			if header := strings.TrimSpace(r.Header.Get("Idempotency-Key")); header != "" {
				key = &header
			}
		}

		result, err := svc.Transfer(r.Context(), transfers.TransferInput{
			FromOwnerID:    fromOwnerID,
			ToOwnerID:      toOwnerID,
			Currency:       currency,
			AmountCents:    payload.AmountCents,
			Description:    validators.SanitizeString(payload.Description, 500),
			IdempotencyKey: key,
			ActorUserID:    actor.userID,
			ActorRole:      actor.role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := statusOK
		if result.AlreadyProcessed {
			status = statusAlreadyProcessed
		}
		responses.WriteSuccess(w, createTransferResponse{
			Status:           status,
			TransferID:       result.TransferID,
			DebitTxID:        result.DebitTransaction.ID,
			CreditTxID:       result.CreditTransaction.ID,
			FromWalletID:     result.FromWalletID,
			ToWalletID:       result.ToWalletID,
			FromBalanceCents: result.FromBalanceCents,
			ToBalanceCents:   result.ToBalanceCents,
		})
	}
}
