package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modern-bank-ledger/internal/domain/account"
	"github.com/modern-bank-ledger/internal/domain/shared"
	"github.com/modern-bank-ledger/internal/platform/security"
)

const defaultAccountNumberAttempts = 10

// AccountServiceImpl implements the AccountService interface
type AccountServiceImpl struct {
	accountRepo account.Repository
	hasher      security.PasswordHasher
	generate    AccountNumberGenerator
	maxAttempts int
	logger      *slog.Logger
}

// NewAccountService creates a new account service
func NewAccountService(
	accountRepo account.Repository,
	hasher security.PasswordHasher,
	generate AccountNumberGenerator,
	maxAttempts int,
	logger *slog.Logger,
) AccountService {
	if generate == nil {
		generate = RandomAccountNumber
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultAccountNumberAttempts
	}
	return &AccountServiceImpl{
		accountRepo: accountRepo,
		hasher:      hasher,
		generate:    generate,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Register checks identity uniqueness up front, then allocates an account
// number, retrying when the candidate is already taken.
func (s *AccountServiceImpl) Register(ctx context.Context, input RegisterInput) (*account.Account, error) {
	profile := account.Profile{
		Username:    input.Username,
		Email:       input.Email,
		PhoneNumber: input.PhoneNumber,
	}.Normalize()
	if profile.Username == "" || profile.Email == "" || input.Password == "" {
		return nil, account.ErrMissingFields
	}

	existing, err := s.accountRepo.FindIdentityConflict(ctx, profile.Username, profile.Email, profile.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, account.ErrDuplicateIdentity{Field: conflictingField(existing, profile)}
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}
	profile.PasswordHash = hash

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		number, err := s.generate()
		if err != nil {
			return nil, err
		}

		taken, err := s.accountRepo.ExistsByAccountNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		if taken {
			s.logger.Debug("Generated account number already allocated", "attempt", attempt)
			continue
		}

		acc, err := account.NewAccount(profile, number)
		if err != nil {
			return nil, err
		}

		err = s.accountRepo.Create(ctx, acc)
		if err == nil {
			s.logger.Info("Account registered", "account_id", acc.ID, "username", acc.Username)
			return acc, nil
		}
		if errors.As(err, new(account.ErrDuplicateAccountNumber)) {
			s.logger.Debug("Account number taken concurrently", "attempt", attempt)
			continue
		}
		return nil, err
	}

	s.logger.Error("Could not allocate an account number", "attempts", s.maxAttempts)
	return nil, fmt.Errorf("%w after %d attempts", shared.ErrAllocationExhausted, s.maxAttempts)
}

func conflictingField(existing *account.Account, profile account.Profile) string {
	switch {
	case existing.Username == profile.Username:
		return "username"
	case existing.Email == profile.Email:
		return "email"
	default:
		return "phone_number"
	}
}

// Login returns ErrAccountNotFound for an unknown user and ErrInvalidCredentials for a wrong password
func (s *AccountServiceImpl) Login(ctx context.Context, username, password string) (*account.Account, error) {
	if username == "" || password == "" {
		return nil, account.ErrMissingFields
	}

	acc, err := s.accountRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Compare(acc.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, account.ErrInvalidCredentials
	}
	return acc, nil
}

func (s *AccountServiceImpl) GetAccount(ctx context.Context, identifier string) (*account.Account, error) {
	return s.accountRepo.GetByIdentifier(ctx, identifier)
}
