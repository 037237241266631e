package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend-escapevim/internal/account"
	"backend-escapevim/internal/db"
	"backend-escapevim/internal/shared/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

var (
	ErrTokenInvalid   = fmt.Errorf("%w: token invalid", apperr.ErrAuth)
	ErrRefreshInvalid = fmt.Errorf("%w: refresh token invalid", apperr.ErrAuth)
)

var (
	signTokenFn       = (*Service).signToken
	parseWithClaimsFn = jwt.ParseWithClaims
)

type Service struct {
	secret   []byte
	db       db.Querier
	accounts *account.Service
}

func NewService(secret string, db db.Querier, accounts *account.Service) *Service {
	return &Service{
		secret:   []byte(secret),
		db:       db,
		accounts: accounts,
	}
}

func (s *Service) Register(ctx context.Context, req account.RegisterRequest) (account.Account, TokenResponse, error) {
	acc, err := s.accounts.Register(ctx, req)
	if err != nil {
		return account.Account{}, TokenResponse{}, err
	}
	tokens, err := s.GenerateTokens(ctx, acc.ID)
	if err != nil {
		return account.Account{}, TokenResponse{}, err
	}
	return acc, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (int64, TokenResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return 0, TokenResponse{}, apperr.ValidationError{Field: "username", Message: "username and password required"}
	}
	id, err := s.accounts.Authenticate(ctx, username, req.Password)
	if err != nil {
		return 0, TokenResponse{}, err
	}
	tokens, err := s.GenerateTokens(ctx, id)
	if err != nil {
		return 0, TokenResponse{}, err
	}
	return id, tokens, nil
}

func (s *Service) GenerateTokens(ctx context.Context, accountID int64) (TokenResponse, error) {
	access, err := signTokenFn(s, accountID, accessToken, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := signTokenFn(s, accountID, refreshToken, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := s.saveRefreshToken(ctx, refresh, accountID, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (int64, error) {
	claims, err := s.parseToken(token, refreshToken)
	if err != nil {
		return 0, err
	}

	accountID, expiresAt, err := s.lookupRefreshToken(ctx, token)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrRefreshInvalid
	}
	if err != nil {
		return 0, apperr.Storage("lookup refresh token", err)
	}
	if accountID != claims.AccountID || time.Now().After(expiresAt) {
		return 0, ErrRefreshInvalid
	}
	return accountID, nil
}

func (s *Service) ValidateAccessToken(token string) (int64, error) {
	claims, err := s.parseToken(token, accessToken)
	if err != nil {
		return 0, err
	}
	return claims.AccountID, nil
}

// Refresh exchanges a live refresh token for a new pair. The old refresh
// token is revoked so it cannot be replayed.
func (s *Service) Refresh(ctx context.Context, token string) (TokenResponse, error) {
	accountID, err := s.ValidateRefreshToken(ctx, token)
	if err != nil {
		return TokenResponse{}, err
	}
	if _, err := s.revoke(ctx, token); err != nil {
		return TokenResponse{}, err
	}
	return s.GenerateTokens(ctx, accountID)
}

// Logout revokes the refresh token. Revoking an already revoked token is not
// an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if _, err := s.parseToken(token, refreshToken); err != nil {
		return err
	}
	_, err := s.revoke(ctx, token)
	return err
}

func (s *Service) signToken(accountID int64, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		AccountID: accountID,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// parseToken verifies the signature and expiry and that the token is of
// the wanted type.
func (s *Service) parseToken(token, typ string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.AccountID <= 0 || claims.Type != typ {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token string, accountID int64, ttl time.Duration) error {
	if s.db == nil {
		return apperr.Storage("save refresh token", db.ErrNoDatabase)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, account_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), accountID, token, time.Now().Add(ttl))
	if err != nil {
		return apperr.Storage("save refresh token", err)
	}
	return nil
}

func (s *Service) lookupRefreshToken(ctx context.Context, token string) (int64, time.Time, error) {
	if s.db == nil {
		return 0, time.Time{}, db.ErrNoDatabase
	}
	row := s.db.QueryRow(ctx, `
		SELECT account_id, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	var accountID int64
	var expiresAt time.Time
	if err := row.Scan(&accountID, &expiresAt); err != nil {
		return 0, time.Time{}, err
	}
	return accountID, expiresAt, nil
}

func (s *Service) revoke(ctx context.Context, token string) (bool, error) {
	if s.db == nil {
		return false, apperr.Storage("revoke refresh token", db.ErrNoDatabase)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	if err != nil {
		return false, apperr.Storage("revoke refresh token", err)
	}
	return tag.RowsAffected() > 0, nil
}
