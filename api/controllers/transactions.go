package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mahara-hq/mahara-backend/api/responses"
	"github.com/mahara-hq/mahara-backend/api/validators"
	"github.com/mahara-hq/mahara-backend/internal/ledger"
	"github.com/mahara-hq/mahara-backend/internal/wallets"
	"github.com/mahara-hq/mahara-backend/pkg/db/models"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
	pkgerrors "github.com/mahara-hq/mahara-backend/pkg/errors"
	"github.com/mahara-hq/mahara-backend/pkg/logger"
	"github.com/mahara-hq/mahara-backend/pkg/pagination"
)

const (
	statusOK               = "ok"
	statusAlreadyProcessed = "already_processed"
)

type transactionResponse struct {
	ID                uuid.UUID                     `json:"id"`
	WalletID          uuid.UUID                     `json:"wallet_id"`
	AmountCents       int64                         `json:"amount_cents"`
	Currency          enums.Currency                `json:"currency"`
	Type              enums.WalletTransactionType   `json:"type"`
	Status            enums.WalletTransactionStatus `json:"status"`
	Description       string                        `json:"description,omitempty"`
	RelatedEntityType *enums.RelatedEntityType      `json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID                    `json:"related_entity_id,omitempty"`
	CreatedBy         string                        `json:"created_by"`
	CreatedAt         time.Time                     `json:"created_at"`
}

func toTransactionResponse(entry *models.WalletTransaction) transactionResponse {
	return transactionResponse{
		ID:                entry.ID,
		WalletID:          entry.WalletID,
		AmountCents:       entry.AmountCents,
		Currency:          entry.Currency,
		Type:              entry.Type,
		Status:            entry.Status,
		Description:       entry.Description,
		RelatedEntityType: entry.RelatedEntityType,
		RelatedEntityID:   entry.RelatedEntityID,
		CreatedBy:         entry.CreatedBy,
		CreatedAt:         entry.CreatedAt,
	}
}

type createTransactionRequest struct {
	AmountCents       int64   `json:"amount_cents" validate:"required"`
	Currency          string  `json:"currency" validate:"required"`
	Type              string  `json:"type" validate:"required"`
	Description       string  `json:"description,omitempty" validate:"omitempty,max=500"`
	IdempotencyKey    *string `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
	RelatedEntityType *string `json:"related_entity_type,omitempty"`
	RelatedEntityID   *string `json:"related_entity_id,omitempty" validate:"omitempty,uuid"`
}

type createTransactionResponse struct {
	Status       string              `json:"status"`
	Transaction  transactionResponse `json:"transaction"`
	BalanceCents int64               `json:"balance_cents"`
}

// CreateTransaction appends one ledger entry against the caller's wallet.
func CreateTransaction(ledgerSvc ledger.Service, walletSvc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		wallet, err := loadAuthorizedWallet(r, walletSvc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createTransactionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(wallet.ID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// The HTTP Idempotency-Key header doubles as the ledger key when the
		// body does not carry one explicitly.
		if input.IdempotencyKey == nil {
			if header := strings.TrimSpace(r.Header.Get("Idempotency-Key")); header != "" {
				input.IdempotencyKey = &header
			}
		}

		result, err := ledgerSvc.CreateTransaction(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := statusOK
		if result.AlreadyProcessed {
			status = statusAlreadyProcessed
		}
		responses.WriteSuccess(w, createTransactionResponse{
			Status:       status,
			Transaction:  toTransactionResponse(result.Transaction),
			BalanceCents: result.BalanceCents,
		})
	}
}

func (req createTransactionRequest) toInput(walletID uuid.UUID, actor requestActor) (ledger.CreateTransactionInput, error) {
	currency, err := enums.ParseCurrency(strings.TrimSpace(req.Currency))
	if err != nil {
		return ledger.CreateTransactionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}
	txType, err := enums.ParseWalletTransactionType(strings.TrimSpace(req.Type))
	if err != nil {
		return ledger.CreateTransactionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction type")
	}

	input := ledger.CreateTransactionInput{
		WalletID:       walletID,
		AmountCents:    req.AmountCents,
		Currency:       currency,
		Type:           txType,
		Description:    validators.SanitizeString(req.Description, 500),
		IdempotencyKey: req.IdempotencyKey,
		ActorUserID:    actor.userID,
		ActorRole:      actor.role,
	}

	if req.RelatedEntityType != nil {
		entityType, err := enums.ParseRelatedEntityType(strings.TrimSpace(*req.RelatedEntityType))
		if err != nil {
			return ledger.CreateTransactionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid related entity type")
		}
		input.RelatedEntityType = &entityType
	}
	if req.RelatedEntityID != nil {
		entityID, err := uuid.Parse(*req.RelatedEntityID)
		if err != nil {
			return ledger.CreateTransactionInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid related entity id")
		}
		input.RelatedEntityID = &entityID
	}

	return input, nil
}

type transactionPageResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

// ListTransactions pages through a wallet's ledger history, newest first.
func ListTransactions(ledgerSvc ledger.Service, walletSvc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := loadAuthorizedWallet(r, walletSvc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := ledger.ListTransactionsInput{
			WalletID: wallet.ID,
			Limit:    limit,
			Cursor:   strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		if raw := strings.TrimSpace(r.URL.Query().Get("currency")); raw != "" {
			currency, err := enums.ParseCurrency(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
				return
			}
			input.Currency = &currency
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
			from, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from timestamp"))
				return
			}
			input.From = &from
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
			to, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to timestamp"))
				return
			}
			input.To = &to
		}

		for _, raw := range r.URL.Query()["type"] {
			txType, err := enums.ParseWalletTransactionType(strings.TrimSpace(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction type"))
				return
			}
			input.Types = append(input.Types, txType)
		}
		for _, raw := range r.URL.Query()["status"] {
			status, err := enums.ParseWalletTransactionStatus(strings.TrimSpace(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction status"))
				return
			}
			input.Statuses = append(input.Statuses, status)
		}

		page, err := ledgerSvc.ListTransactions(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := transactionPageResponse{
			Transactions: make([]transactionResponse, 0, len(page.Transactions)),
			NextCursor:   page.NextCursor,
		}
		for i := range page.Transactions {
			out.Transactions = append(out.Transactions, toTransactionResponse(&page.Transactions[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
