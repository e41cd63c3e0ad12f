package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/vidtube/internal/config"
	"github.com/therealutkarshpriyadarshi/vidtube/pkg/models"
)

// ErrInvalidToken is returned for tokens that fail verification
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims. Identity fields are only populated on
// access tokens.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	FullName string `json:"fullName,omitempty"`
	jwt.RegisteredClaims
}

// AccountID returns the subject the token was issued for
func (c *Claims) AccountID() string {
	return c.Subject
}

// TokenManager signs and verifies access and refresh tokens
type TokenManager struct {
	accessSecret  []byte
	accessTTL     time.Duration
	refreshSecret []byte
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenManager creates a token manager from auth configuration
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		accessTTL:     cfg.AccessTokenExpiry,
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		refreshTTL:    cfg.RefreshTokenExpiry,
		now:           time.Now,
	}
}

// IssueAccess generates an access token carrying the account's identity
func (m *TokenManager) IssueAccess(account *models.Account) (string, error) {
	claims := Claims{
		Email:            account.Email,
		Username:         account.Username,
		FullName:         account.FullName,
		RegisteredClaims: m.registered(account.ID, m.accessTTL),
	}
	return m.sign(claims, m.accessSecret)
}

// IssueRefresh generates a refresh token that only carries the subject
func (m *TokenManager) IssueRefresh(accountID string) (string, error) {
	return m.sign(Claims{RegisteredClaims: m.registered(accountID, m.refreshTTL)}, m.refreshSecret)
}

// IssuePair generates a fresh access and refresh token for the account
func (m *TokenManager) IssuePair(account *models.Account) (*models.TokenPair, error) {
	access, err := m.IssueAccess(account)
	if err != nil {
		return nil, err
	}
	refresh, err := m.IssueRefresh(account.ID)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess parses and validates an access token
func (m *TokenManager) VerifyAccess(token string) (*Claims, error) {
	return m.verify(token, m.accessSecret)
}

// VerifyRefresh parses and validates a refresh token
func (m *TokenManager) VerifyRefresh(token string) (*Claims, error) {
	return m.verify(token, m.refreshSecret)
}

func (m *TokenManager) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := m.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.New().String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
}

func (m *TokenManager) sign(claims Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (m *TokenManager) verify(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
