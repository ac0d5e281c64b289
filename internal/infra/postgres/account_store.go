package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"live-quiz-service/internal/domain"
)

const uniqueViolation = "23505"

type accountRow struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID           string     `bun:"id,pk"`
	Username     string     `bun:"username,notnull"`
	DisplayName  string     `bun:"display_name,notnull"`
	Role         string     `bun:"role,notnull"`
	School       string     `bun:"school,notnull"`
	PasswordHash string     `bun:"password_hash,notnull"`
	LastLoginAt  *time.Time `bun:"last_login_at"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
}

func toRow(a domain.Account) *accountRow {
	return &accountRow{
		ID:           a.ID,
		Username:     a.Username,
		DisplayName:  a.DisplayName,
		Role:         string(a.Role),
		School:       a.School,
		PasswordHash: a.PasswordHash,
		LastLoginAt:  a.LastLoginAt,
		CreatedAt:    a.CreatedAt,
	}
}

func (r *accountRow) toDomain() domain.Account {
	return domain.Account{
		ID:           r.ID,
		Username:     r.Username,
		DisplayName:  r.DisplayName,
		Role:         domain.Role(r.Role),
		School:       r.School,
		PasswordHash: r.PasswordHash,
		LastLoginAt:  r.LastLoginAt,
		CreatedAt:    r.CreatedAt,
	}
}

// AccountStore persists accounts through bun. Usernames are unique case-insensitively.
type AccountStore struct {
	db *bun.DB
}

func NewAccountStore(db *bun.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	row := new(accountRow)
	err := s.db.NewSelect().Model(row).Where("a.id = ?", id).Scan(ctx)
	return s.one(row, err)
}

func (s *AccountStore) GetAccountByUsername(ctx context.Context, username string) (domain.Account, error) {
	row := new(accountRow)
	err := s.db.NewSelect().Model(row).Where("lower(a.username) = lower(?)", username).Scan(ctx)
	return s.one(row, err)
}

func (s *AccountStore) CreateAccount(ctx context.Context, a domain.Account) (domain.Account, error) {
	if _, err := s.db.NewInsert().Model(toRow(a)).Exec(ctx); err != nil {
		return domain.Account{}, mapWriteError("insert account", err)
	}
	return a, nil
}

func (s *AccountStore) UpdateAccount(ctx context.Context, a domain.Account) (domain.Account, error) {
	res, err := s.db.NewUpdate().Model(toRow(a)).WherePK().Exec(ctx)
	if err != nil {
		return domain.Account{}, mapWriteError("update account", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return a, nil
}

func (s *AccountStore) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*accountRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (s *AccountStore) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	var rows []accountRow
	if err := s.db.NewSelect().Model(&rows).Order("a.username ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]domain.Account, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *AccountStore) one(row *accountRow, err error) (domain.Account, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	return row.toDomain(), nil
}

func mapWriteError(op string, err error) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
		return domain.ErrDuplicateUsername
	}
	return fmt.Errorf("%s: %w", op, err)
}
