package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/mahara-hq/mahara-backend/pkg/db"
	"github.com/mahara-hq/mahara-backend/pkg/db/models"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
	pkgerrors "github.com/mahara-hq/mahara-backend/pkg/errors"
	"github.com/mahara-hq/mahara-backend/pkg/metrics"
	"github.com/mahara-hq/mahara-backend/pkg/outbox"
	"github.com/mahara-hq/mahara-backend/pkg/outbox/payloads"
	"github.com/mahara-hq/mahara-backend/pkg/pagination"
)

// IdempotencyConstraint is the unique index backing transaction idempotency keys.
const IdempotencyConstraint = "uq_wallet_transactions_idempotency_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the transaction engine: it appends ledger entries, keeps the balance
// projection in step, and answers balance/history queries.
type Service interface {
	CreateTransaction(ctx context.Context, input CreateTransactionInput) (*TransactionResult, error)
	// Apply runs the engine inside a caller-owned transaction so composed flows
	// (wallet-to-wallet transfers) can commit several entries atomically.
	Apply(ctx context.Context, tx *gorm.DB, input CreateTransactionInput) (*TransactionResult, error)
	GetBalance(ctx context.Context, walletID uuid.UUID) (*BalanceResult, error)
	ListTransactions(ctx context.Context, input ListTransactionsInput) (*TransactionPage, error)
}

type service struct {
	repo                Repository
	tx                  txRunner
	outbox              outboxPublisher
	metrics             *metrics.WalletMetrics
	maxTransactionCents int64
}

// CreateTransactionInput carries one ledger append request. AmountCents is signed:
// positive credits the wallet, negative debits it.
type CreateTransactionInput struct {
	WalletID          uuid.UUID
	AmountCents       int64
	Currency          enums.Currency
	Type              enums.WalletTransactionType
	Description       string
	IdempotencyKey    *string
	RelatedEntityType *enums.RelatedEntityType
	RelatedEntityID   *uuid.UUID
	CreatedBy         string
	ActorUserID       uuid.UUID
	ActorRole         string
}

// TransactionResult reports the committed (or replayed) entry and the wallet's
// resulting projected balance.
type TransactionResult struct {
	Transaction      *models.WalletTransaction
	BalanceCents     int64
	AlreadyProcessed bool
}

// BalanceResult is the projection read surface.
type BalanceResult struct {
	WalletID          uuid.UUID
	Currency          enums.Currency
	BalanceCents      int64
	LastTransactionAt *time.Time
}

// ListTransactionsInput filters a wallet's transaction history page.
type ListTransactionsInput struct {
	WalletID uuid.UUID
	Limit    int
	Cursor   string
	Types    []enums.WalletTransactionType
	Statuses []enums.WalletTransactionStatus
	Currency *enums.Currency
	From     *time.Time
	To       *time.Time
}

// TransactionPage is one cursor page of ledger history, newest first.
type TransactionPage struct {
	Transactions []models.WalletTransaction
	NextCursor   string
}

// NewService wires the transaction engine with the required dependencies.
// maxTransactionCents caps a single entry's absolute amount; zero disables the cap.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, walletMetrics *metrics.WalletMetrics, maxTransactionCents int64) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:                repo,
		tx:                  tx,
		outbox:              outboxSvc,
		metrics:             walletMetrics,
		maxTransactionCents: maxTransactionCents,
	}, nil
}

func (s *service) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*TransactionResult, error) {
	var result *TransactionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.Apply(ctx, tx, input)
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	if err != nil {
		if replayed := s.replayAfterRace(ctx, input.IdempotencyKey, err); replayed != nil {
			return replayed, nil
		}
		return nil, err
	}
	return result, nil
}

// replayAfterRace recovers from a lost idempotency-key insert race. The unique
// violation aborts the whole database transaction, so the winning entry can only
// be read back on a fresh connection once the rollback has completed.
func (s *service) replayAfterRace(ctx context.Context, key *string, cause error) *TransactionResult {
	if key == nil || *key == "" || !dbpkg.IsUniqueViolation(cause, IdempotencyConstraint) {
		return nil
	}
	existing, err := s.repo.FindTransactionByIdempotencyKey(ctx, *key)
	if err != nil || existing == nil {
		return nil
	}
	result, err := s.replay(ctx, s.repo, existing)
	if err != nil {
		return nil
	}
	return result
}

func (s *service) Apply(ctx context.Context, tx *gorm.DB, input CreateTransactionInput) (*TransactionResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := s.validate(input); err != nil {
		s.metrics.IncRejection("validation")
		return nil, err
	}

	repo := s.repo.WithTx(tx)

	if input.IdempotencyKey != nil && *input.IdempotencyKey != "" {
		existing, err := repo.FindTransactionByIdempotencyKey(ctx, *input.IdempotencyKey)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency lookup")
		}
		if existing != nil {
			return s.replay(ctx, repo, existing)
		}
	}

	wallet, err := repo.FindWallet(ctx, input.WalletID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	if !wallet.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "wallet is deactivated")
	}
	if wallet.Currency != input.Currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("currency %s does not match wallet currency %s", input.Currency, wallet.Currency))
	}

	balance, err := repo.GetBalanceForUpdate(ctx, wallet.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock balance")
	}
	if balance == nil {
		balance = &models.WalletBalance{WalletID: wallet.ID, Currency: wallet.Currency}
		if err := repo.CreateBalance(ctx, balance); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "init balance")
		}
		balance, err = repo.GetBalanceForUpdate(ctx, wallet.ID)
		if err != nil || balance == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock balance")
		}
	}

	newBalance := balance.BalanceCents + input.AmountCents
	if newBalance < 0 && input.Type.GuardsOverdraft() {
		s.metrics.IncRejection("insufficient_funds")
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds,
			fmt.Sprintf("balance %d insufficient for %s of %d", balance.BalanceCents, input.Type, input.AmountCents)).
			WithDetails(map[string]any{
				"wallet_id":     wallet.ID,
				"balance_cents": balance.BalanceCents,
				"amount_cents":  input.AmountCents,
			})
	}

	entry := &models.WalletTransaction{
		ID:                uuid.New(),
		WalletID:          wallet.ID,
		AmountCents:       input.AmountCents,
		Currency:          input.Currency,
		Type:              input.Type,
		Status:            enums.WalletTransactionStatusCompleted,
		Description:       input.Description,
		IdempotencyKey:    normalizeKey(input.IdempotencyKey),
		RelatedEntityType: input.RelatedEntityType,
		RelatedEntityID:   input.RelatedEntityID,
		CreatedBy:         createdBy(input),
	}
	if err := repo.InsertTransaction(ctx, entry); err != nil {
		// A concurrent request with the same key won the insert race. The failed
		// insert aborts the surrounding transaction, so no further statement may
		// run on it; the caller replays the winner after the rollback.
		if entry.IdempotencyKey != nil && dbpkg.IsUniqueViolation(err, IdempotencyConstraint) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "idempotency key reused")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}

	now := time.Now().UTC()
	if err := repo.UpdateBalance(ctx, wallet.ID, newBalance, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance projection")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTransactionRecorded,
		AggregateType: enums.AggregateWalletTransaction,
		AggregateID:   entry.ID,
		Version:       1,
		Actor:         buildActor(input.ActorUserID, input.ActorRole),
		Data: payloads.TransactionRecordedEvent{
			TransactionID: entry.ID,
			WalletID:      wallet.ID,
			OwnerID:       wallet.OwnerID,
			AmountCents:   entry.AmountCents,
			Currency:      entry.Currency,
			Type:          entry.Type,
			BalanceCents:  newBalance,
		},
	}); err != nil {
		return nil, err
	}

	s.metrics.IncTransaction(string(entry.Type), string(entry.Currency))

	return &TransactionResult{
		Transaction:  entry,
		BalanceCents: newBalance,
	}, nil
}

// replay serves a duplicate request: the stored entry is returned together with
// the wallet's current projected balance, never a placeholder zero.
func (s *service) replay(ctx context.Context, repo Repository, existing *models.WalletTransaction) (*TransactionResult, error) {
	balance, err := repo.GetBalance(ctx, existing.WalletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance for replay")
	}
	var cents int64
	if balance != nil {
		cents = balance.BalanceCents
	}
	s.metrics.IncRejection("idempotency_replay")
	return &TransactionResult{
		Transaction:      existing,
		BalanceCents:     cents,
		AlreadyProcessed: true,
	}, nil
}

func (s *service) GetBalance(ctx context.Context, walletID uuid.UUID) (*BalanceResult, error) {
	if walletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	balance, err := s.repo.GetBalance(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance")
	}
	if balance == nil {
		wallet, err := s.repo.FindWallet(ctx, walletID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}
		return &BalanceResult{WalletID: wallet.ID, Currency: wallet.Currency}, nil
	}
	return &BalanceResult{
		WalletID:          balance.WalletID,
		Currency:          balance.Currency,
		BalanceCents:      balance.BalanceCents,
		LastTransactionAt: balance.LastTransactionAt,
	}, nil
}

func (s *service) ListTransactions(ctx context.Context, input ListTransactionsInput) (*TransactionPage, error) {
	if input.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	for _, txType := range input.Types {
		if !txType.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", txType))
		}
	}
	for _, status := range input.Statuses {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction status %q", status))
		}
	}
	if input.Currency != nil && !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", *input.Currency))
	}
	if input.From != nil && input.To != nil && input.To.Before(*input.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date range is inverted")
	}
	cursor, err := pagination.ParseCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(input.Limit)
	rows, err := s.repo.ListTransactions(ctx, input.WalletID, ListFilter{
		Types:    input.Types,
		Statuses: input.Statuses,
		Currency: input.Currency,
		From:     input.From,
		To:       input.To,
		Cursor:   cursor,
		Limit:    pagination.LimitWithBuffer(input.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	page := &TransactionPage{Transactions: rows}
	if len(rows) > limit {
		page.Transactions = rows[:limit]
		last := page.Transactions[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *service) validate(input CreateTransactionInput) error {
	if input.WalletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	if input.AmountCents == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-zero")
	}
	if s.maxTransactionCents > 0 {
		abs := input.AmountCents
		if abs < 0 {
			abs = -abs
		}
		if abs > s.maxTransactionCents {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("amount exceeds the per-transaction cap of %d", s.maxTransactionCents))
		}
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", input.Currency))
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	return nil
}

func normalizeKey(key *string) *string {
	if key == nil || *key == "" {
		return nil
	}
	return key
}

func createdBy(input CreateTransactionInput) string {
	if input.CreatedBy != "" {
		return input.CreatedBy
	}
	if input.ActorUserID != uuid.Nil {
		return input.ActorUserID.String()
	}
	return "system"
}

func buildActor(userID uuid.UUID, role string) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: role}
}
