package wallets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mahara-hq/mahara-backend/pkg/db/models"
	"github.com/mahara-hq/mahara-backend/pkg/enums"
	pkgerrors "github.com/mahara-hq/mahara-backend/pkg/errors"
	"github.com/mahara-hq/mahara-backend/pkg/outbox"
	"github.com/mahara-hq/mahara-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines wallet registry operations.
type Service interface {
	EnsureWallet(ctx context.Context, input EnsureWalletInput) (*models.Wallet, error)
	// EnsureWalletTx runs the registry inside a caller-owned transaction so composed
	// flows can create wallets lazily within their own atomic scope.
	EnsureWalletTx(ctx context.Context, tx *gorm.DB, input EnsureWalletInput) (*models.Wallet, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Wallet, error)
	Deactivate(ctx context.Context, input DeactivateInput) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// EnsureWalletInput identifies the (owner, currency) pair a wallet is requested for.
type EnsureWalletInput struct {
	OwnerID     uuid.UUID
	Currency    enums.Currency
	ActorUserID uuid.UUID
	ActorRole   string
}

// DeactivateInput carries the wallet to deactivate plus audit context.
type DeactivateInput struct {
	WalletID    uuid.UUID
	Reason      string
	ActorUserID uuid.UUID
	ActorRole   string
}

// NewService wires a wallet service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc}, nil
}

func (s *service) EnsureWallet(ctx context.Context, input EnsureWalletInput) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ensured, err := s.EnsureWalletTx(ctx, tx, input)
		if err != nil {
			return err
		}
		wallet = ensured
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *service) EnsureWalletTx(ctx context.Context, tx *gorm.DB, input EnsureWalletInput) (*models.Wallet, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if input.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", input.Currency))
	}

	repo := s.repo.WithTx(tx)
	ensured, created, err := repo.EnsureWallet(ctx, input.OwnerID, input.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure wallet")
	}
	if !created {
		return ensured, nil
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventWalletOpened,
		AggregateType: enums.AggregateWallet,
		AggregateID:   ensured.ID,
		Version:       1,
		Actor:         buildActor(input.ActorUserID, input.ActorRole),
		Data: payloads.WalletOpenedEvent{
			WalletID: ensured.ID,
			OwnerID:  ensured.OwnerID,
			Currency: ensured.Currency,
		},
	}); err != nil {
		return nil, err
	}
	return ensured, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	wallet, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Wallet, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	rows, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallets")
	}
	return rows, nil
}

func (s *service) Deactivate(ctx context.Context, input DeactivateInput) error {
	if input.WalletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		wallet, err := repo.FindByID(ctx, input.WalletID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}
		if !wallet.IsActive {
			return nil
		}
		if err := repo.Deactivate(ctx, wallet.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate wallet")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletDeactivated,
			AggregateType: enums.AggregateWallet,
			AggregateID:   wallet.ID,
			Version:       1,
			Actor:         buildActor(input.ActorUserID, input.ActorRole),
			Data: payloads.WalletDeactivatedEvent{
				WalletID:      wallet.ID,
				OwnerID:       wallet.OwnerID,
				DeactivatedAt: time.Now().UTC(),
				Reason:        input.Reason,
			},
		})
	})
}

func buildActor(userID uuid.UUID, role string) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: role}
}
