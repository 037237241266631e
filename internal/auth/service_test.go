package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-escapevim/internal/account"
	"backend-escapevim/internal/db"
	"backend-escapevim/internal/shared/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"golang.org/x/crypto/bcrypt"
)

var errDB = errors.New("db error")

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func newTestService(mock pgxmock.PgxPoolIface) *Service {
	return NewService("test-secret", mock, account.NewService(mock))
}

func expectSaveRefresh(mock pgxmock.PgxPoolIface, accountID int64) {
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), accountID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestRegisterAndLogin(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs("alice", "alice", pgxmock.AnyArg(), "").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))
	expectSaveRefresh(mock, 1)

	acc, tokens, err := svc.Register(context.Background(), account.RegisterRequest{Username: "alice", Password: "rightpw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if acc.ID != 1 || tokens.AccessToken == "" || tokens.RefreshToken == "" || tokens.TokenType != "Bearer" {
		t.Fatalf("expected account and tokens, got %+v %+v", acc, tokens)
	}
	if id, err := svc.ValidateAccessToken(tokens.AccessToken); err != nil || id != 1 {
		t.Fatalf("access token should carry the account: %d %v", id, err)
	}

	mock.ExpectQuery(`SELECT id, password_hash FROM accounts`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"id", "password_hash"}).AddRow(int64(1), acc.PasswordHash))
	expectSaveRefresh(mock, 1)

	id, loginTokens, err := svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "rightpw"})
	if err != nil || id != 1 {
		t.Fatalf("login: %d %v", id, err)
	}
	if loginTokens.RefreshToken == tokens.RefreshToken {
		t.Fatalf("each login must mint a distinct refresh token")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterPropagatesAccountErrors(t *testing.T) {
	svc := newTestService(newMock(t))
	_, _, err := svc.Register(context.Background(), account.RegisterRequest{Username: "bad name", Password: "secret1"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoginInvalidPassword(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)
	hash, _ := bcrypt.GenerateFromPassword([]byte("rightpw"), bcrypt.MinCost)

	mock.ExpectQuery(`SELECT id, password_hash FROM accounts`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"id", "password_hash"}).AddRow(int64(1), string(hash)))

	_, _, err := svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "wrongpw"})
	if !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginMissingFields(t *testing.T) {
	svc := newTestService(newMock(t))
	if _, _, err := svc.Login(context.Background(), LoginRequest{Username: " "}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)

	expectSaveRefresh(mock, 7)
	tokens, err := svc.GenerateTokens(context.Background(), 7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	mock.ExpectQuery(`SELECT account_id, expires_at`).
		WithArgs(tokens.RefreshToken).
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "expires_at"}).AddRow(int64(7), time.Now().Add(time.Hour)))
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at = now\(\)`).
		WithArgs(tokens.RefreshToken).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	expectSaveRefresh(mock, 7)

	next, err := svc.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == tokens.RefreshToken {
		t.Fatalf("refresh must rotate the token")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestValidateRefreshTokenRejects(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)
	token, _ := svc.signToken(7, refreshToken, refreshTokenTTL)

	mock.ExpectQuery(`SELECT account_id, expires_at`).
		WithArgs(token).
		WillReturnError(pgx.ErrNoRows)
	if _, err := svc.ValidateRefreshToken(context.Background(), token); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("revoked token: expected refresh invalid, got %v", err)
	}

	mock.ExpectQuery(`SELECT account_id, expires_at`).
		WithArgs(token).
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "expires_at"}).AddRow(int64(7), time.Now().Add(-time.Minute)))
	if _, err := svc.ValidateRefreshToken(context.Background(), token); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expired token: expected refresh invalid, got %v", err)
	}

	mock.ExpectQuery(`SELECT account_id, expires_at`).
		WithArgs(token).
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "expires_at"}).AddRow(int64(8), time.Now().Add(time.Hour)))
	if _, err := svc.ValidateRefreshToken(context.Background(), token); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("foreign token: expected refresh invalid, got %v", err)
	}

	mock.ExpectQuery(`SELECT account_id, expires_at`).
		WithArgs(token).
		WillReturnError(errDB)
	if _, err := svc.ValidateRefreshToken(context.Background(), token); !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("lookup failure: expected storage error, got %v", err)
	}

	if _, err := svc.ValidateRefreshToken(context.Background(), "garbage"); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("garbage token: expected auth error, got %v", err)
	}
}

func TestLogoutRevokes(t *testing.T) {
	mock := newMock(t)
	svc := newTestService(mock)
	token, _ := svc.signToken(7, refreshToken, refreshTokenTTL)

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at = now\(\)`).
		WithArgs(token).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at = now\(\)`).
		WithArgs(token).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := svc.Logout(context.Background(), token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := svc.Logout(context.Background(), token); err != nil {
		t.Fatalf("second logout must be a no-op: %v", err)
	}

	mock.ExpectExec(`UPDATE refresh_tokens SET revoked_at`).
		WithArgs(token).
		WillReturnError(errDB)
	if err := svc.Logout(context.Background(), token); !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}

	if err := svc.Logout(context.Background(), "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestGenerateTokensSaveRefreshError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), int64(1), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errDB)

	_, err := newTestService(mock).GenerateTokens(context.Background(), 1)
	if !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestGenerateTokensSignErrors(t *testing.T) {
	oldSign := signTokenFn
	defer func() { signTokenFn = oldSign }()

	for failOn := 1; failOn <= 2; failOn++ {
		call := 0
		signTokenFn = func(_ *Service, _ int64, _ string, _ time.Duration) (string, error) {
			call++
			if call == failOn {
				return "", errDB
			}
			return "token", nil
		}
		if _, err := NewService("test-secret", nil, nil).GenerateTokens(context.Background(), 1); !errors.Is(err, errDB) {
			t.Fatalf("sign call %d: expected error, got %v", failOn, err)
		}
	}
}

func TestParseTokenRejects(t *testing.T) {
	svc := NewService("test-secret", nil, nil)

	other, _ := NewService("other-secret", nil, nil).signToken(1, accessToken, accessTokenTTL)
	if _, err := svc.ValidateAccessToken(other); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("foreign secret: expected invalid token, got %v", err)
	}

	expired, _ := svc.signToken(1, accessToken, -time.Minute)
	if _, err := svc.ValidateAccessToken(expired); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expired: expected invalid token, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{AccountID: 1, Type: accessToken})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := svc.ValidateAccessToken(unsigned); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("alg none: expected invalid token, got %v", err)
	}

	noAccount, _ := svc.signToken(0, accessToken, accessTokenTTL)
	if _, err := svc.ValidateAccessToken(noAccount); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("missing account: expected invalid token, got %v", err)
	}

	oldParse := parseWithClaimsFn
	parseWithClaimsFn = func(string, jwt.Claims, jwt.Keyfunc, ...jwt.ParserOption) (*jwt.Token, error) {
		return &jwt.Token{Claims: jwt.MapClaims{}, Valid: true}, nil
	}
	defer func() { parseWithClaimsFn = oldParse }()
	if _, err := svc.ValidateAccessToken("anything"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("wrong claims type: expected invalid token, got %v", err)
	}
}

func TestAccessTokenRejectedForRefresh(t *testing.T) {
	svc := newTestService(newMock(t))
	access, _ := svc.signToken(7, accessToken, accessTokenTTL)

	if _, err := svc.ValidateRefreshToken(context.Background(), access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token as refresh: expected invalid token, got %v", err)
	}
	if err := svc.Logout(context.Background(), access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("logout with access token: expected invalid token, got %v", err)
	}

	untyped := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{AccountID: 7})
	signed, _ := untyped.SignedString([]byte("test-secret"))
	if _, err := svc.ValidateAccessToken(signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("untyped token: expected invalid token, got %v", err)
	}
}

func TestTokensWithoutDatabase(t *testing.T) {
	svc := NewService("test-secret", nil, nil)

	if _, err := svc.GenerateTokens(context.Background(), 1); !errors.Is(err, apperr.ErrStorage) || !errors.Is(err, db.ErrNoDatabase) {
		t.Fatalf("generate: expected storage error, got %v", err)
	}
	refresh, _ := svc.signToken(1, refreshToken, refreshTokenTTL)
	if _, err := svc.ValidateRefreshToken(context.Background(), refresh); !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("validate refresh: expected storage error, got %v", err)
	}
	if err := svc.Logout(context.Background(), refresh); !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("logout: expected storage error, got %v", err)
	}
}
