package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mahara-hq/mahara-backend/api/middleware"
	"github.com/mahara-hq/mahara-backend/api/responses"
	"github.com/mahara-hq/mahara-backend/api/validators"
	"github.com/mahara-hq/mahara-backend/internal/ledger"
	"github.com/mahara-hq/mahara-backend/internal/wallets"
	"github.com/mahara-hq/mahara-backend/pkg/db/models"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
	pkgerrors "github.com/mahara-hq/mahara-backend/pkg/errors"
	"github.com/mahara-hq/mahara-backend/pkg/logger"
	"github.com/mahara-hq/mahara-backend/pkg/types"
)

type walletResponse struct {
	ID        uuid.UUID      `json:"id"`
	OwnerID   uuid.UUID      `json:"owner_id"`
	Currency  enums.Currency `json:"currency"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
}

func toWalletResponse(wallet *models.Wallet) walletResponse {
	return walletResponse{
		ID:        wallet.ID,
		OwnerID:   wallet.OwnerID,
		Currency:  wallet.Currency,
		IsActive:  wallet.IsActive,
		CreatedAt: wallet.CreatedAt,
	}
}

type ensureWalletRequest struct {
	Currency string `json:"currency" validate:"required"`
}

// EnsureWallet opens (or returns) the caller's wallet for a currency.
func EnsureWallet(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload ensureWalletRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		currency, err := enums.ParseCurrency(strings.TrimSpace(payload.Currency))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}

		wallet, err := svc.EnsureWallet(r.Context(), wallets.EnsureWalletInput{
			OwnerID:     actor.userID,
			Currency:    currency,
			ActorUserID: actor.userID,
			ActorRole:   actor.role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toWalletResponse(wallet))
	}
}

// ListMyWallets returns every wallet owned by the caller.
func ListMyWallets(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListByOwner(r.Context(), actor.userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]walletResponse, 0, len(rows))
		for i := range rows {
			out = append(out, toWalletResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type walletDetailResponse struct {
	walletResponse
	Balance types.Money `json:"balance"`
}

// WalletDetail returns one wallet with its projected balance, restricted to its
// owner or an admin.
func WalletDetail(walletSvc wallets.Service, ledgerSvc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := loadAuthorizedWallet(r, walletSvc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := ledgerSvc.GetBalance(r.Context(), wallet.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, walletDetailResponse{
			walletResponse: toWalletResponse(wallet),
			Balance:        types.NewMoney(balance.BalanceCents, balance.Currency),
		})
	}
}

type balanceResponse struct {
	WalletID          uuid.UUID   `json:"wallet_id"`
	Balance           types.Money `json:"balance"`
	LastTransactionAt *time.Time  `json:"last_transaction_at,omitempty"`
}

// WalletBalance reads the wallet's projected balance.
func WalletBalance(walletSvc wallets.Service, ledgerSvc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := loadAuthorizedWallet(r, walletSvc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := ledgerSvc.GetBalance(r.Context(), wallet.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, balanceResponse{
			WalletID:          balance.WalletID,
			Balance:           types.NewMoney(balance.BalanceCents, balance.Currency),
			LastTransactionAt: balance.LastTransactionAt,
		})
	}
}

type deactivateWalletRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// DeactivateWallet freezes a wallet. Admin only; routing enforces the role.
func DeactivateWallet(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		walletID, err := walletIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload deactivateWalletRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Deactivate(r.Context(), wallets.DeactivateInput{
			WalletID:    walletID,
			Reason:      validators.SanitizeString(payload.Reason, 500),
			ActorUserID: actor.userID,
			ActorRole:   actor.role,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deactivated"})
	}
}

type requestActor struct {
	userID uuid.UUID
	role   string
}

func (a requestActor) isAdmin() bool {
	return a.role == string(enums.RoleAdmin)
}

func requireActor(r *http.Request) (requestActor, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return requestActor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return requestActor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return requestActor{userID: userID, role: middleware.RoleFromContext(r.Context())}, nil
}

func walletIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "walletId")
	walletID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid wallet id")
	}
	return walletID, nil
}

// loadAuthorizedWallet resolves the path wallet and checks the caller may see it.
func loadAuthorizedWallet(r *http.Request, svc wallets.Service) (*models.Wallet, error) {
	actor, err := requireActor(r)
	if err != nil {
		return nil, err
	}
	walletID, err := walletIDFromPath(r)
	if err != nil {
		return nil, err
	}
	wallet, err := svc.Get(r.Context(), walletID)
	if err != nil {
		return nil, err
	}
	if wallet.OwnerID != actor.userID && !actor.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "wallet belongs to another owner")
	}
	return wallet, nil
}
