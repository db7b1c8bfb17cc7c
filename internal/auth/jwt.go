package auth

import (
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// ErrMissingSubject token 中没有用户 ID
var ErrMissingSubject = errors.New("token has no user id")

// UserClaims defines the custom claims for the application
type UserClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId,omitempty"`
}

// Subject returns the user id, preferring the userId claim issued by the legacy backend.
func (c *UserClaims) Subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// JWTManager handles JWT generation and validation
type JWTManager struct {
	secretKey     []byte
	issuer        string
	tokenDuration time.Duration
	clock         time2.Clock
}

// NewJWTManager creates a new JWTManager. A nil clock selects time2.DefaultClock.
func NewJWTManager(secretKey string, issuer string, tokenDuration time.Duration, clock time2.Clock) *JWTManager {
	if clock == nil {
		clock = time2.DefaultClock
	}

	return &JWTManager{
		secretKey:     []byte(secretKey),
		issuer:        issuer,
		tokenDuration: tokenDuration,
		clock:         clock,
	}
}

// Generate creates a new JWT token
func (m *JWTManager) Generate(userID string) (*Result, error) {
	if userID == "" {
		return nil, ErrMissingSubject
	}

	now := m.clock.Now()
	validUntil := now.Add(m.tokenDuration)
	claims := UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(validUntil),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   userID,
		},
		UserID: userID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign token")
	}

	return &Result{Token: token, UserID: userID, ValidUntil: validUntil}, nil
}

// Validate validates the JWT token and returns the claims
func (m *JWTManager) Validate(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.clock.Now))

	if err != nil {
		return nil, errors.Wrap(err, "invalid token")
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject() == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}
