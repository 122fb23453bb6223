package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mahara-hq/mahara-backend/api/middleware"
	"github.com/mahara-hq/mahara-backend/internal/ledger"
	"github.com/mahara-hq/mahara-backend/internal/wallets"
	"github.com/mahara-hq/mahara-backend/pkg/db/models"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
	pkgerrors "github.com/mahara-hq/mahara-backend/pkg/errors"
)

type stubWalletService struct {
	ensureResp    *models.Wallet
	ensureErr     error
	ensureInput   wallets.EnsureWalletInput
	getResp       *models.Wallet
	getErr        error
	listResp      []models.Wallet
	listErr       error
	deactivateErr error
	deactivated   []wallets.DeactivateInput
}

func (s *stubWalletService) EnsureWallet(ctx context.Context, input wallets.EnsureWalletInput) (*models.Wallet, error) {
	s.ensureInput = input
	return s.ensureResp, s.ensureErr
}

func (s *stubWalletService) EnsureWalletTx(ctx context.Context, tx *gorm.DB, input wallets.EnsureWalletInput) (*models.Wallet, error) {
	return s.EnsureWallet(ctx, input)
}

func (s *stubWalletService) Get(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return s.getResp, s.getErr
}

func (s *stubWalletService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Wallet, error) {
	return s.listResp, s.listErr
}

func (s *stubWalletService) Deactivate(ctx context.Context, input wallets.DeactivateInput) error {
	s.deactivated = append(s.deactivated, input)
	return s.deactivateErr
}

func actorRequest(method, target string, body []byte, userID uuid.UUID, role enums.MemberRole) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func withWalletParam(req *http.Request, walletID uuid.UUID) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("walletId", walletID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestEnsureWalletSuccess(t *testing.T) {
	userID := uuid.New()
	svc := &stubWalletService{ensureResp: &models.Wallet{
		ID:        uuid.New(),
		OwnerID:   userID,
		Currency:  enums.CurrencyEGP,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}}
	handler := EnsureWallet(svc, nil)

	req := actorRequest(http.MethodPost, "/api/v1/wallets", []byte(`{"currency":"egp"}`), userID, enums.RoleFreelancer)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.ensureInput.OwnerID != userID {
		t.Fatalf("expected owner %s got %s", userID, svc.ensureInput.OwnerID)
	}
	if svc.ensureInput.Currency != enums.CurrencyEGP {
		t.Fatalf("expected normalized EGP got %s", svc.ensureInput.Currency)
	}

	var envelope struct {
		Data walletResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.OwnerID != userID {
		t.Fatalf("expected owner %s got %s", userID, envelope.Data.OwnerID)
	}
}

func TestEnsureWalletRejectsUnknownCurrency(t *testing.T) {
	handler := EnsureWallet(&stubWalletService{}, nil)

	req := actorRequest(http.MethodPost, "/api/v1/wallets", []byte(`{"currency":"BTC"}`), uuid.New(), enums.RoleClient)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestEnsureWalletMissingActor(t *testing.T) {
	handler := EnsureWallet(&stubWalletService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets", bytes.NewReader([]byte(`{"currency":"EGP"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestListMyWalletsSuccess(t *testing.T) {
	userID := uuid.New()
	svc := &stubWalletService{listResp: []models.Wallet{
		{ID: uuid.New(), OwnerID: userID, Currency: enums.CurrencyEGP, IsActive: true},
		{ID: uuid.New(), OwnerID: userID, Currency: enums.CurrencyUSD, IsActive: true},
	}}
	handler := ListMyWallets(svc, nil)

	req := actorRequest(http.MethodGet, "/api/v1/wallets", nil, userID, enums.RoleFreelancer)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	var envelope struct {
		Data []walletResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("expected 2 wallets got %d", len(envelope.Data))
	}
}

func walletDetailLedgerStub(wallet *models.Wallet, cents int64) *stubLedgerService {
	return &stubLedgerService{balanceResp: &ledger.BalanceResult{
		WalletID:     wallet.ID,
		Currency:     wallet.Currency,
		BalanceCents: cents,
	}}
}

func TestWalletDetailForbiddenForStranger(t *testing.T) {
	wallet := &models.Wallet{ID: uuid.New(), OwnerID: uuid.New(), Currency: enums.CurrencyEGP, IsActive: true}
	handler := WalletDetail(&stubWalletService{getResp: wallet}, walletDetailLedgerStub(wallet, 0), nil)

	req := actorRequest(http.MethodGet, "/api/v1/wallets/"+wallet.ID.String(), nil, uuid.New(), enums.RoleClient)
	req = withWalletParam(req, wallet.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestWalletDetailAllowsAdmin(t *testing.T) {
	wallet := &models.Wallet{ID: uuid.New(), OwnerID: uuid.New(), Currency: enums.CurrencyEGP, IsActive: true}
	handler := WalletDetail(&stubWalletService{getResp: wallet}, walletDetailLedgerStub(wallet, 3200), nil)

	req := actorRequest(http.MethodGet, "/api/v1/wallets/"+wallet.ID.String(), nil, uuid.New(), enums.RoleAdmin)
	req = withWalletParam(req, wallet.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	var envelope struct {
		Data struct {
			ID      uuid.UUID `json:"id"`
			Balance struct {
				AmountCents int64 `json:"amount_cents"`
			} `json:"balance"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != wallet.ID || envelope.Data.Balance.AmountCents != 3200 {
		t.Fatalf("unexpected detail payload: %+v", envelope.Data)
	}
}

func TestWalletDetailNotFound(t *testing.T) {
	walletID := uuid.New()
	handler := WalletDetail(&stubWalletService{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")}, &stubLedgerService{}, nil)

	req := actorRequest(http.MethodGet, "/api/v1/wallets/"+walletID.String(), nil, uuid.New(), enums.RoleClient)
	req = withWalletParam(req, walletID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestWalletBalanceSuccess(t *testing.T) {
	ownerID := uuid.New()
	wallet := &models.Wallet{ID: uuid.New(), OwnerID: ownerID, Currency: enums.CurrencyUSD, IsActive: true}
	lastTx := time.Now().UTC()
	ledgerSvc := &stubLedgerService{balanceResp: &ledger.BalanceResult{
		WalletID:          wallet.ID,
		Currency:          enums.CurrencyUSD,
		BalanceCents:      125050,
		LastTransactionAt: &lastTx,
	}}
	handler := WalletBalance(&stubWalletService{getResp: wallet}, ledgerSvc, nil)

	req := actorRequest(http.MethodGet, "/api/v1/wallets/"+wallet.ID.String()+"/balance", nil, ownerID, enums.RoleFreelancer)
	req = withWalletParam(req, wallet.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data struct {
			WalletID uuid.UUID `json:"wallet_id"`
			Balance  struct {
				AmountCents int64  `json:"amount_cents"`
				Currency    string `json:"currency"`
				Display     string `json:"display"`
			} `json:"balance"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.WalletID != wallet.ID {
		t.Fatalf("expected wallet %s got %s", wallet.ID, envelope.Data.WalletID)
	}
	if envelope.Data.Balance.AmountCents != 125050 {
		t.Fatalf("expected 125050 cents got %d", envelope.Data.Balance.AmountCents)
	}
}

func TestDeactivateWalletSuccess(t *testing.T) {
	walletID := uuid.New()
	adminID := uuid.New()
	svc := &stubWalletService{}
	handler := DeactivateWallet(svc, nil)

	req := actorRequest(http.MethodPost, "/api/v1/wallets/"+walletID.String()+"/deactivate",
		[]byte(`{"reason":"fraud review"}`), adminID, enums.RoleAdmin)
	req = withWalletParam(req, walletID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.deactivated) != 1 {
		t.Fatalf("expected 1 deactivation got %d", len(svc.deactivated))
	}
	input := svc.deactivated[0]
	if input.WalletID != walletID || input.Reason != "fraud review" || input.ActorUserID != adminID {
		t.Fatalf("unexpected deactivate input: %+v", input)
	}
}

func TestDeactivateWalletInvalidID(t *testing.T) {
	handler := DeactivateWallet(&stubWalletService{}, nil)

	req := actorRequest(http.MethodPost, "/api/v1/wallets/not-a-uuid/deactivate", []byte(`{}`), uuid.New(), enums.RoleAdmin)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("walletId", "not-a-uuid")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
