package transfers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mahara-hq/mahara-backend/internal/ledger"
	"github.com/mahara-hq/mahara-backend/internal/wallets"
	dbpkg "github.com/mahara-hq/mahara-backend/pkg/db"
	"github.com/mahara-hq/mahara-backend/pkg/db/models"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
	pkgerrors "github.com/mahara-hq/mahara-backend/pkg/errors"
	"github.com/mahara-hq/mahara-backend/pkg/metrics"
	"github.com/mahara-hq/mahara-backend/pkg/outbox"
	"github.com/mahara-hq/mahara-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type walletRegistry interface {
	EnsureWalletTx(ctx context.Context, tx *gorm.DB, input wallets.EnsureWalletInput) (*models.Wallet, error)
}

type ledgerEngine interface {
	Apply(ctx context.Context, tx *gorm.DB, input ledger.CreateTransactionInput) (*ledger.TransactionResult, error)
}

// Service moves money between two owners' wallets: both ledger legs and both
// projection updates commit in one database transaction or not at all.
type Service interface {
	Transfer(ctx context.Context, input TransferInput) (*TransferResult, error)
}

type service struct {
	repo     ledger.Repository
	registry walletRegistry
	engine   ledgerEngine
	tx       txRunner
	outbox   outboxPublisher
	metrics  *metrics.WalletMetrics
}

// TransferInput describes one wallet-to-wallet transfer request. AmountCents is
// always positive; the debit leg is derived from it.
type TransferInput struct {
	FromOwnerID    uuid.UUID
	ToOwnerID      uuid.UUID
	Currency       enums.Currency
	AmountCents    int64
	Description    string
	IdempotencyKey *string
	ActorUserID    uuid.UUID
	ActorRole      string
}

// TransferResult reports both committed legs and both resulting balances.
type TransferResult struct {
	TransferID        uuid.UUID
	DebitTransaction  *models.WalletTransaction
	CreditTransaction *models.WalletTransaction
	FromWalletID      uuid.UUID
	ToWalletID        uuid.UUID
	FromBalanceCents  int64
	ToBalanceCents    int64
	AlreadyProcessed  bool
}

// NewService wires the transfer orchestrator with the required dependencies.
func NewService(repo ledger.Repository, registry walletRegistry, engine ledgerEngine, tx txRunner, outboxSvc outboxPublisher, walletMetrics *metrics.WalletMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if registry == nil {
		return nil, fmt.Errorf("wallet registry required")
	}
	if engine == nil {
		return nil, fmt.Errorf("ledger engine required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     repo,
		registry: registry,
		engine:   engine,
		tx:       tx,
		outbox:   outboxSvc,
		metrics:  walletMetrics,
	}, nil
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if err := s.validate(input); err != nil {
		s.metrics.IncRejection("validation")
		return nil, err
	}

	start := time.Now()
	var result *TransferResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if input.IdempotencyKey != nil && *input.IdempotencyKey != "" {
			existing, err := repo.FindTransactionByIdempotencyKey(ctx, *input.IdempotencyKey)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency lookup")
			}
			if existing != nil {
				replayed, err := s.replay(ctx, repo, existing)
				if err != nil {
					return err
				}
				result = replayed
				return nil
			}
		}

		fromWallet, err := s.registry.EnsureWalletTx(ctx, tx, wallets.EnsureWalletInput{
			OwnerID:     input.FromOwnerID,
			Currency:    input.Currency,
			ActorUserID: input.ActorUserID,
			ActorRole:   input.ActorRole,
		})
		if err != nil {
			return err
		}
		toWallet, err := s.registry.EnsureWalletTx(ctx, tx, wallets.EnsureWalletInput{
			OwnerID:     input.ToOwnerID,
			Currency:    input.Currency,
			ActorUserID: input.ActorUserID,
			ActorRole:   input.ActorRole,
		})
		if err != nil {
			return err
		}
		if !fromWallet.IsActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "source wallet is deactivated")
		}
		if !toWallet.IsActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "destination wallet is deactivated")
		}

		// Both projection rows are locked up front, in wallet-id order, so two
		// opposite transfers between the same pair cannot deadlock.
		if err := repo.LockBalances(ctx, fromWallet.ID, toWallet.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock balances")
		}

		balance, err := repo.GetBalance(ctx, fromWallet.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load source balance")
		}
		var available int64
		if balance != nil {
			available = balance.BalanceCents
		}
		if available < input.AmountCents {
			s.metrics.IncRejection("insufficient_funds")
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds,
				fmt.Sprintf("balance %d insufficient for transfer of %d", available, input.AmountCents)).
				WithDetails(map[string]any{
					"wallet_id":     fromWallet.ID,
					"balance_cents": available,
					"amount_cents":  input.AmountCents,
				})
		}

		transferID := uuid.New()
		entityType := enums.RelatedEntityTransfer

		debit, err := s.engine.Apply(ctx, tx, ledger.CreateTransactionInput{
			WalletID:          fromWallet.ID,
			AmountCents:       -input.AmountCents,
			Currency:          input.Currency,
			Type:              enums.WalletTransactionTypeTransfer,
			Description:       input.Description,
			IdempotencyKey:    input.IdempotencyKey,
			RelatedEntityType: &entityType,
			RelatedEntityID:   &transferID,
			ActorUserID:       input.ActorUserID,
			ActorRole:         input.ActorRole,
		})
		if err != nil {
			return err
		}
		if debit.AlreadyProcessed {
			// The key won a race between our lookup and the debit insert.
			replayed, err := s.replay(ctx, repo, debit.Transaction)
			if err != nil {
				return err
			}
			result = replayed
			return nil
		}

		credit, err := s.engine.Apply(ctx, tx, ledger.CreateTransactionInput{
			WalletID:          toWallet.ID,
			AmountCents:       input.AmountCents,
			Currency:          input.Currency,
			Type:              enums.WalletTransactionTypeTransfer,
			Description:       input.Description,
			RelatedEntityType: &entityType,
			RelatedEntityID:   &transferID,
			ActorUserID:       input.ActorUserID,
			ActorRole:         input.ActorRole,
		})
		if err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransferCompleted,
			AggregateType: enums.AggregateWalletTransfer,
			AggregateID:   transferID,
			Version:       1,
			Actor:         buildActor(input.ActorUserID, input.ActorRole),
			Data: payloads.TransferCompletedEvent{
				TransferID:       transferID,
				DebitTxID:        debit.Transaction.ID,
				CreditTxID:       credit.Transaction.ID,
				FromWalletID:     fromWallet.ID,
				ToWalletID:       toWallet.ID,
				AmountCents:      input.AmountCents,
				Currency:         input.Currency,
				FromBalanceCents: debit.BalanceCents,
				ToBalanceCents:   credit.BalanceCents,
			},
		}); err != nil {
			return err
		}

		result = &TransferResult{
			TransferID:        transferID,
			DebitTransaction:  debit.Transaction,
			CreditTransaction: credit.Transaction,
			FromWalletID:      fromWallet.ID,
			ToWalletID:        toWallet.ID,
			FromBalanceCents:  debit.BalanceCents,
			ToBalanceCents:    credit.BalanceCents,
		}
		return nil
	})
	if err != nil {
		if replayed := s.replayAfterRace(ctx, input.IdempotencyKey, err); replayed != nil {
			return replayed, nil
		}
		return nil, err
	}

	if !result.AlreadyProcessed {
		s.metrics.ObserveTransfer(string(input.Currency), time.Since(start))
	}
	return result, nil
}

// replayAfterRace recovers from a lost debit-leg insert race. The unique
// violation aborts the whole database transaction, so the winning transfer can
// only be read back on a fresh connection once the rollback has completed.
func (s *service) replayAfterRace(ctx context.Context, key *string, cause error) *TransferResult {
	if key == nil || *key == "" || !dbpkg.IsUniqueViolation(cause, ledger.IdempotencyConstraint) {
		return nil
	}
	debit, err := s.repo.FindTransactionByIdempotencyKey(ctx, *key)
	if err != nil || debit == nil {
		return nil
	}
	result, err := s.replay(ctx, s.repo, debit)
	if err != nil {
		return nil
	}
	return result
}

// replay reconstructs a committed transfer from its debit leg: both legs share the
// transfer id through the related-entity columns.
func (s *service) replay(ctx context.Context, repo ledger.Repository, debit *models.WalletTransaction) (*TransferResult, error) {
	if debit.Type != enums.WalletTransactionTypeTransfer ||
		debit.RelatedEntityType == nil || *debit.RelatedEntityType != enums.RelatedEntityTransfer ||
		debit.RelatedEntityID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key reused by a non-transfer transaction")
	}

	legs, err := repo.ListByRelatedEntity(ctx, enums.RelatedEntityTransfer, *debit.RelatedEntityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transfer legs")
	}
	if len(legs) != 2 || legs[0].AmountCents >= 0 || legs[1].AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transfer legs are incomplete")
	}
	debitLeg, creditLeg := legs[0], legs[1]

	fromBalance, err := repo.GetBalance(ctx, debitLeg.WalletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load source balance")
	}
	toBalance, err := repo.GetBalance(ctx, creditLeg.WalletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load destination balance")
	}

	s.metrics.IncRejection("idempotency_replay")
	result := &TransferResult{
		TransferID:        *debit.RelatedEntityID,
		DebitTransaction:  &debitLeg,
		CreditTransaction: &creditLeg,
		FromWalletID:      debitLeg.WalletID,
		ToWalletID:        creditLeg.WalletID,
		AlreadyProcessed:  true,
	}
	if fromBalance != nil {
		result.FromBalanceCents = fromBalance.BalanceCents
	}
	if toBalance != nil {
		result.ToBalanceCents = toBalance.BalanceCents
	}
	return result, nil
}

func (s *service) validate(input TransferInput) error {
	if input.FromOwnerID == uuid.Nil || input.ToOwnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "both owner ids are required")
	}
	if input.FromOwnerID == input.ToOwnerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer within the same wallet")
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be a positive integer")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", input.Currency))
	}
	return nil
}

func buildActor(userID uuid.UUID, role string) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: role}
}
