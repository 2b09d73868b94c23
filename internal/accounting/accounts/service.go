// Package accounts maintains the chart of accounts.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
)

// AuditPort records chart changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service resolves, registers and deactivates accounts.
type Service struct {
	store  store.Store
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the chart of accounts service.
func NewService(st store.Store, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, audit: audit, logger: logger, now: time.Now}
}

// CategoryInput registers an account category.
type CategoryInput struct {
	Code string
	Name string
	Type domain.AccountType
}

// RegisterInput registers an account. NormalBalance defaults from the category type.
type RegisterInput struct {
	Code          string
	Name          string
	Description   string
	CategoryCode  string
	NormalBalance domain.NormalBalance
	CreatedBy     string
}

// RegisterCategory adds a category; duplicate codes yield domain.ErrConflict.
func (s *Service) RegisterCategory(ctx context.Context, in CategoryInput) (domain.Category, error) {
	cat := domain.Category{Code: strings.TrimSpace(in.Code), Name: strings.TrimSpace(in.Name), Type: in.Type}
	if cat.Code == "" || cat.Name == "" {
		return domain.Category{}, fmt.Errorf("%w: category code and name required", domain.ErrInvalidInput)
	}
	if !cat.Type.Valid() {
		return domain.Category{}, fmt.Errorf("%w: category type %q", domain.ErrInvalidInput, in.Type)
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.CategoryByCode(ctx, cat.Code); err == nil {
			return fmt.Errorf("category %q: %w", cat.Code, domain.ErrConflict)
		}
		return tx.InsertCategory(ctx, &cat)
	})
	if err != nil {
		return domain.Category{}, domain.NewStorageError("register category", err)
	}
	return cat, nil
}

// Register adds an account; duplicate codes yield domain.ErrConflict.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.Account, error) {
	acc := domain.Account{
		Code:          strings.TrimSpace(in.Code),
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		CategoryCode:  strings.TrimSpace(in.CategoryCode),
		NormalBalance: in.NormalBalance,
		IsActive:      true,
	}
	if acc.Code == "" || acc.Name == "" {
		return domain.Account{}, fmt.Errorf("%w: account code and name required", domain.ErrInvalidInput)
	}
	if acc.NormalBalance != "" && !acc.NormalBalance.Valid() {
		return domain.Account{}, fmt.Errorf("%w: normal balance %q", domain.ErrInvalidInput, in.NormalBalance)
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cat, err := tx.CategoryByCode(ctx, acc.CategoryCode)
		if err != nil {
			return fmt.Errorf("category %q: %w", acc.CategoryCode, err)
		}
		if _, err := tx.AccountByCode(ctx, acc.Code); err == nil {
			return fmt.Errorf("account %q: %w", acc.Code, domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		acc.Type = cat.Type
		if acc.NormalBalance == "" {
			acc.NormalBalance = cat.Type.DefaultNormalBalance()
		}
		return tx.InsertAccount(ctx, &acc)
	})
	if err != nil {
		return domain.Account{}, domain.NewStorageError("register account", err)
	}
	s.record(ctx, in.CreatedBy, "account.register", acc.Code, map[string]any{"category": acc.CategoryCode})
	return acc, nil
}

// Resolve returns the account for code or domain.ErrNotFound.
func (s *Service) Resolve(ctx context.Context, code string) (domain.Account, error) {
	acc, err := s.store.AccountByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Account{}, fmt.Errorf("account %q: %w", code, domain.ErrNotFound)
		}
		return domain.Account{}, domain.NewStorageError("resolve account", err)
	}
	return acc, nil
}

// List returns every account ordered by code.
func (s *Service) List(ctx context.Context) ([]domain.Account, error) {
	return s.store.ListAccounts(ctx)
}

// Categories returns every category ordered by code.
func (s *Service) Categories(ctx context.Context) ([]domain.Category, error) {
	return s.store.ListCategories(ctx)
}

// Deactivate marks the account inactive. Accounts carrying a balance are
// rejected with *domain.HasOpenBalanceError.
func (s *Service) Deactivate(ctx context.Context, code, actor string) (domain.Account, error) {
	var acc domain.Account
	err := store.Retry(ctx, store.DefaultAttempts, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			current, err := tx.AccountByCode(ctx, code)
			if err != nil {
				return fmt.Errorf("account %q: %w", code, err)
			}
			balances, err := tx.LockAccountBalances(ctx, []int64{current.ID})
			if err != nil {
				return err
			}
			bal := balances[current.ID]
			if !bal.Balance.IsZero() {
				return &domain.HasOpenBalanceError{Code: current.Code, Balance: bal.Balance}
			}
			current.IsActive = false
			if err := tx.UpdateAccount(ctx, current); err != nil {
				return err
			}
			// Saving the untouched balance bumps its version so in-flight postings retry.
			if err := tx.SaveAccountBalances(ctx, []domain.AccountBalance{bal}); err != nil {
				return err
			}
			acc = current
			return nil
		})
	})
	if err != nil {
		return domain.Account{}, domain.NewStorageError("deactivate account", err)
	}
	s.record(ctx, actor, "account.deactivate", acc.Code, nil)
	return acc, nil
}

// ChangeNormalBalance updates the normal balance of an account no ledger row references.
func (s *Service) ChangeNormalBalance(ctx context.Context, code string, nb domain.NormalBalance, actor string) (domain.Account, error) {
	if !nb.Valid() {
		return domain.Account{}, fmt.Errorf("%w: normal balance %q", domain.ErrInvalidInput, nb)
	}
	var acc domain.Account
	err := store.Retry(ctx, store.DefaultAttempts, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			current, err := tx.AccountByCode(ctx, code)
			if err != nil {
				return fmt.Errorf("account %q: %w", code, err)
			}
			balances, err := tx.LockAccountBalances(ctx, []int64{current.ID})
			if err != nil {
				return err
			}
			used, err := tx.HasLedgerRows(ctx, current.ID)
			if err != nil {
				return err
			}
			if used {
				return fmt.Errorf("account %q: %w", code, domain.ErrNormalBalanceLocked)
			}
			current.NormalBalance = nb
			if err := tx.UpdateAccount(ctx, current); err != nil {
				return err
			}
			if err := tx.SaveAccountBalances(ctx, []domain.AccountBalance{balances[current.ID]}); err != nil {
				return err
			}
			acc = current
			return nil
		})
	})
	if err != nil {
		return domain.Account{}, domain.NewStorageError("change normal balance", err)
	}
	s.record(ctx, actor, "account.normal_balance", acc.Code, map[string]any{"normal_balance": string(nb)})
	return acc, nil
}

func (s *Service) record(ctx context.Context, actor, action, code string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "account",
		EntityID: code,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit record", slog.String("action", action), slog.Any("error", err))
	}
}
