package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"backend-escapevim/internal/db"
	"backend-escapevim/internal/shared/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const uniqueViolation = "23505"

var hashPasswordFn = func(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Account, error) {
	req, err := validateRegister(req)
	if err != nil {
		return Account{}, err
	}
	if s.db == nil {
		return Account{}, apperr.Storage("register account", db.ErrNoDatabase)
	}
	hash, err := hashPasswordFn(req.Password)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}

	acc := Account{
		Username:     req.Username,
		Nickname:     req.Nickname,
		Gender:       req.Gender,
		PasswordHash: hash,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO accounts (username, nickname, password_hash, gender)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at, updated_at
	`, acc.Username, acc.Nickname, acc.PasswordHash, acc.Gender)
	if err := row.Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return Account{}, mapWriteError("register account", err)
	}
	return acc, nil
}

// Authenticate returns the account id for a matching username/password pair.
// Unknown usernames and wrong passwords yield the same ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (int64, error) {
	if s.db == nil {
		return 0, apperr.Storage("authenticate", db.ErrNoDatabase)
	}
	var id int64
	var hash string
	err := s.db.QueryRow(ctx, `SELECT id, password_hash FROM accounts WHERE username=$1`, username).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		// burn the same bcrypt cost so response time does not reveal the miss
		_ = bcrypt.CompareHashAndPassword(unknownUserHash(), []byte(password))
		return 0, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return 0, apperr.Storage("authenticate", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return 0, apperr.ErrInvalidCredentials
	}
	return id, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (Account, error) {
	if s.db == nil {
		return Account{}, apperr.Storage("get account", db.ErrNoDatabase)
	}
	row := s.db.QueryRow(ctx, `
		SELECT id, username, nickname, gender, created_at, updated_at
		FROM accounts WHERE id=$1
	`, id)
	var acc Account
	if err := row.Scan(&acc.ID, &acc.Username, &acc.Nickname, &acc.Gender, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, apperr.ErrNotFound
		}
		return Account{}, apperr.Storage("get account", err)
	}
	return acc, nil
}

// UpdateProfile writes only the supplied fields. A new password is hashed
// before it reaches the database.
func (s *Service) UpdateProfile(ctx context.Context, id int64, patch ProfilePatch) (Account, error) {
	if patch.Empty() {
		return Account{}, apperr.ValidationError{Field: "profile", Message: "nothing to update"}
	}

	sets := []string{}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if patch.Username != nil {
		if err := ValidateUsername(*patch.Username); err != nil {
			return Account{}, err
		}
		add("username", *patch.Username)
	}
	if patch.Nickname != nil {
		add("nickname", strings.TrimSpace(*patch.Nickname))
	}
	if patch.Password != nil {
		if err := ValidatePassword(*patch.Password); err != nil {
			return Account{}, err
		}
		hash, err := hashPasswordFn(*patch.Password)
		if err != nil {
			return Account{}, fmt.Errorf("hash password: %w", err)
		}
		add("password_hash", hash)
	}
	if patch.Gender != nil {
		gender, err := NormalizeGender(*patch.Gender)
		if err != nil {
			return Account{}, err
		}
		add("gender", gender)
	}
	sets = append(sets, "updated_at=now()")
	if s.db == nil {
		return Account{}, apperr.Storage("update account", db.ErrNoDatabase)
	}

	row := s.db.QueryRow(ctx, `
		UPDATE accounts SET `+strings.Join(sets, ", ")+`
		WHERE id=$1
		RETURNING id, username, nickname, gender, created_at, updated_at
	`, args...)
	var acc Account
	if err := row.Scan(&acc.ID, &acc.Username, &acc.Nickname, &acc.Gender, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, apperr.ErrNotFound
		}
		return Account{}, mapWriteError("update account", err)
	}
	return acc, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.ErrUsernameTaken
	}
	return apperr.Storage(op, err)
}

func unknownUserHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unknown-user-placeholder"), bcrypt.DefaultCost)
	})
	return dummyHash
}
