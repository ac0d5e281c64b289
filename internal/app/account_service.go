package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"live-quiz-service/internal/domain"
)

// AccountStore persists accounts. Create and update fail with ErrDuplicateUsername
// when the username belongs to another account.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (domain.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (domain.Account, error)
	CreateAccount(ctx context.Context, a domain.Account) (domain.Account, error)
	UpdateAccount(ctx context.Context, a domain.Account) (domain.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	ListAccounts(ctx context.Context) ([]domain.Account, error)
}

// CredentialHasher is the only place passwords are compared.
type CredentialHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// AccountInput is the writable part of an account. An empty Password keeps the current one on update.
type AccountInput struct {
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	DisplayName string      `json:"displayName"`
	Role        domain.Role `json:"role"`
	School      string      `json:"school"`
}

type AccountService struct {
	store  AccountStore
	hasher CredentialHasher
	now    func() time.Time
}

func NewAccountService(store AccountStore, hasher CredentialHasher) *AccountService {
	return &AccountService{store: store, hasher: hasher, now: time.Now}
}

// Authenticate verifies credentials and stamps the login time.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (domain.Account, error) {
	account, err := s.store.GetAccountByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Account{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.Account{}, err
	}
	if err := s.hasher.Verify(account.PasswordHash, password); err != nil {
		return domain.Account{}, domain.ErrInvalidCredentials
	}

	now := s.now()
	account.LastLoginAt = &now
	return s.store.UpdateAccount(ctx, account)
}

func (s *AccountService) Get(ctx context.Context, id string) (domain.Account, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *AccountService) List(ctx context.Context) ([]domain.Account, error) {
	return s.store.ListAccounts(ctx)
}

func (s *AccountService) Create(ctx context.Context, in AccountInput) (domain.Account, error) {
	if in.Password == "" {
		return domain.Account{}, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}
	account := domain.Account{
		ID:          uuid.NewString(),
		Username:    strings.TrimSpace(in.Username),
		DisplayName: strings.TrimSpace(in.DisplayName),
		Role:        in.Role,
		School:      strings.TrimSpace(in.School),
		CreatedAt:   s.now(),
	}
	if err := account.Validate(); err != nil {
		return domain.Account{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}
	account.PasswordHash = hash
	return s.store.CreateAccount(ctx, account)
}

func (s *AccountService) Update(ctx context.Context, id string, in AccountInput) (domain.Account, error) {
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}
	if in.Username != "" {
		account.Username = strings.TrimSpace(in.Username)
	}
	if in.DisplayName != "" {
		account.DisplayName = strings.TrimSpace(in.DisplayName)
	}
	if in.Role != "" {
		account.Role = in.Role
	}
	if in.School != "" {
		account.School = strings.TrimSpace(in.School)
	}
	if err := account.Validate(); err != nil {
		return domain.Account{}, err
	}
	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return domain.Account{}, fmt.Errorf("hash password: %w", err)
		}
		account.PasswordHash = hash
	}
	return s.store.UpdateAccount(ctx, account)
}

// Delete removes an account. Results it already owns stay on the leaderboard.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteAccount(ctx, id)
}

// EnsureSuperAdmin creates the bootstrap super-admin unless the username exists.
func (s *AccountService) EnsureSuperAdmin(ctx context.Context, username, password, displayName string, log *slog.Logger) error {
	if username == "" || password == "" {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	_, err := s.store.GetAccountByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return err
	}
	if displayName == "" {
		displayName = username
	}
	account, err := s.Create(ctx, AccountInput{
		Username:    username,
		Password:    password,
		DisplayName: displayName,
		Role:        domain.RoleSuperAdmin,
	})
	if errors.Is(err, domain.ErrDuplicateUsername) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("bootstrap super-admin created", "username", account.Username, "id", account.ID)
	return nil
}
