package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/mahara-hq/mahara-backend/internal/transfers"
	"github.com/mahara-hq/mahara-backend/pkg/db/models"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
	pkgerrors "github.com/mahara-hq/mahara-backend/pkg/errors"
)

type stubTransferService struct {
	resp  *transfers.TransferResult
	err   error
	input transfers.TransferInput
	calls int
}

func (s *stubTransferService) Transfer(ctx context.Context, input transfers.TransferInput) (*transfers.TransferResult, error) {
	s.calls++
	s.input = input
	return s.resp, s.err
}

func transferResult(amountCents int64) *transfers.TransferResult {
	return &transfers.TransferResult{
		TransferID:        uuid.New(),
		DebitTransaction:  &models.WalletTransaction{ID: uuid.New(), AmountCents: -amountCents},
		CreditTransaction: &models.WalletTransaction{ID: uuid.New(), AmountCents: amountCents},
		FromWalletID:      uuid.New(),
		ToWalletID:        uuid.New(),
		FromBalanceCents:  10000 - amountCents,
		ToBalanceCents:    amountCents,
	}
}

func TestCreateTransferSuccess(t *testing.T) {
	userID := uuid.New()
	toOwnerID := uuid.New()
	svc := &stubTransferService{resp: transferResult(2500)}
	handler := CreateTransfer(svc, nil)

	body := []byte(`{"to_owner_id":"` + toOwnerID.String() + `","currency":"EGP","amount_cents":2500,"description":"milestone 1"}`)
	req := actorRequest(http.MethodPost, "/api/v1/transfers", body, userID, enums.RoleClient)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.input.FromOwnerID != userID {
		t.Fatalf("expected source %s got %s", userID, svc.input.FromOwnerID)
	}
	if svc.input.ToOwnerID != toOwnerID {
		t.Fatalf("expected destination %s got %s", toOwnerID, svc.input.ToOwnerID)
	}
	if svc.input.Currency != enums.CurrencyEGP {
		t.Fatalf("expected EGP got %s", svc.input.Currency)
	}

	var envelope struct {
		Data createTransferResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != statusOK {
		t.Fatalf("expected ok got %q", envelope.Data.Status)
	}
	if envelope.Data.ToBalanceCents != 2500 {
		t.Fatalf("expected destination balance 2500 got %d", envelope.Data.ToBalanceCents)
	}
}

func TestCreateTransferHeaderKeyFallback(t *testing.T) {
	svc := &stubTransferService{resp: transferResult(100)}
	handler := CreateTransfer(svc, nil)

	body := []byte(`{"to_owner_id":"` + uuid.NewString() + `","currency":"USD","amount_cents":100}`)
	req := actorRequest(http.MethodPost, "/api/v1/transfers", body, uuid.New(), enums.RoleFreelancer)
	req.Header.Set("Idempotency-Key", "tr-2026-08-042")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.input.IdempotencyKey == nil || *svc.input.IdempotencyKey != "tr-2026-08-042" {
		t.Fatalf("expected header idempotency key, got %v", svc.input.IdempotencyKey)
	}
}

func TestCreateTransferReplayStatus(t *testing.T) {
	result := transferResult(900)
	result.AlreadyProcessed = true
	handler := CreateTransfer(&stubTransferService{resp: result}, nil)

	body := []byte(`{"to_owner_id":"` + uuid.NewString() + `","currency":"EGP","amount_cents":900,"idempotency_key":"tr-1"}`)
	req := actorRequest(http.MethodPost, "/api/v1/transfers", body, uuid.New(), enums.RoleClient)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var envelope struct {
		Data createTransferResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != statusAlreadyProcessed {
		t.Fatalf("expected already_processed got %q", envelope.Data.Status)
	}
}

func TestCreateTransferAdminOverridesSource(t *testing.T) {
	sourceOwner := uuid.New()
	svc := &stubTransferService{resp: transferResult(400)}
	handler := CreateTransfer(svc, nil)

	body := []byte(`{"to_owner_id":"` + uuid.NewString() + `","from_owner_id":"` + sourceOwner.String() + `","currency":"EGP","amount_cents":400}`)
	req := actorRequest(http.MethodPost, "/api/v1/transfers", body, uuid.New(), enums.RoleAdmin)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.input.FromOwnerID != sourceOwner {
		t.Fatalf("expected overridden source %s got %s", sourceOwner, svc.input.FromOwnerID)
	}
}

func TestCreateTransferRejectsForeignSource(t *testing.T) {
	svc := &stubTransferService{resp: transferResult(400)}
	handler := CreateTransfer(svc, nil)

	body := []byte(`{"to_owner_id":"` + uuid.NewString() + `","from_owner_id":"` + uuid.NewString() + `","currency":"EGP","amount_cents":400}`)
	req := actorRequest(http.MethodPost, "/api/v1/transfers", body, uuid.New(), enums.RoleFreelancer)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("transfer must not be attempted")
	}
}

func TestCreateTransferValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing destination", `{"currency":"EGP","amount_cents":100}`},
		{"bad destination", `{"to_owner_id":"nope","currency":"EGP","amount_cents":100}`},
		{"unknown currency", `{"to_owner_id":"` + uuid.NewString() + `","currency":"BTC","amount_cents":100}`},
		{"zero amount", `{"to_owner_id":"` + uuid.NewString() + `","currency":"EGP","amount_cents":0}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := CreateTransfer(&stubTransferService{}, nil)
			req := actorRequest(http.MethodPost, "/api/v1/transfers", []byte(tc.body), uuid.New(), enums.RoleClient)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateTransferInsufficientFunds(t *testing.T) {
	svc := &stubTransferService{err: pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient balance")}
	handler := CreateTransfer(svc, nil)

	body := []byte(`{"to_owner_id":"` + uuid.NewString() + `","currency":"EGP","amount_cents":999999}`)
	req := actorRequest(http.MethodPost, "/api/v1/transfers", body, uuid.New(), enums.RoleClient)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d: %s", rec.Code, rec.Body.String())
	}
}
