package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"live-quiz-service/internal/domain"
)

// AccountStore is an in-memory implementation of app.AccountStore.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]domain.Account)}
}

func (s *AccountStore) GetAccount(_ context.Context, id string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return a, nil
}

func (s *AccountStore) GetAccountByUsername(_ context.Context, username string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			return a, nil
		}
	}
	return domain.Account{}, domain.ErrAccountNotFound
}

func (s *AccountStore) CreateAccount(_ context.Context, a domain.Account) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usernameTakenLocked(a.Username, a.ID) {
		return domain.Account{}, domain.ErrDuplicateUsername
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *AccountStore) UpdateAccount(_ context.Context, a domain.Account) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if s.usernameTakenLocked(a.Username, a.ID) {
		return domain.Account{}, domain.ErrDuplicateUsername
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *AccountStore) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *AccountStore) ListAccounts(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *AccountStore) usernameTakenLocked(username, exceptID string) bool {
	for id, a := range s.accounts {
		if id != exceptID && strings.EqualFold(a.Username, username) {
			return true
		}
	}
	return false
}
