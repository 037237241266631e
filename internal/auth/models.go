package auth

import "github.com/golang-jwt/jwt/v5"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Token types carried in the typ claim. Only access tokens authorize
// requests; refresh tokens are only accepted by Refresh and Logout.
const (
	accessToken  = "access"
	refreshToken = "refresh"
)

type Claims struct {
	AccountID int64  `json:"account_id"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}
