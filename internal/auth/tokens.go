package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ErrInvalidToken is the only failure the codec reports. Bad signatures,
// expired tokens, wrong types and malformed subjects are indistinguishable.
var ErrInvalidToken = errors.New("invalid token")

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

type Claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies access and refresh tokens with one shared
// HMAC secret. It holds no mutable state and is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	parser *jwt.Parser
	now    func() time.Time
}

// NewTokenCodec returns a codec for one of HS256, HS384 or HS512.
func NewTokenCodec(secret, algorithm string) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", algorithm)
	}
	return &TokenCodec{
		secret: []byte(secret),
		method: method,
		// Expiry is checked in verify against the codec clock.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		now: time.Now,
	}, nil
}

// IssueAccess returns a signed access token for userID and its expiry.
func (c *TokenCodec) IssueAccess(userID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	return c.issue(userID, TokenTypeAccess, ttl)
}

// IssueRefresh returns a signed refresh token for userID and its expiry.
func (c *TokenCodec) IssueRefresh(userID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	return c.issue(userID, TokenTypeRefresh, ttl)
}

func (c *TokenCodec) issue(userID uuid.UUID, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	now := c.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims := &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

// Decode checks the signature and structure of a token. It does not check
// the token type or expiry.
func (c *TokenCodec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := c.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccess returns the subject of a valid, unexpired access token.
func (c *TokenCodec) VerifyAccess(tokenString string) (uuid.UUID, error) {
	return c.verify(tokenString, TokenTypeAccess)
}

// VerifyRefresh returns the subject of a valid, unexpired refresh token.
func (c *TokenCodec) VerifyRefresh(tokenString string) (uuid.UUID, error) {
	return c.verify(tokenString, TokenTypeRefresh)
}

func (c *TokenCodec) verify(tokenString string, want TokenType) (uuid.UUID, error) {
	claims, err := c.Decode(tokenString)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	if claims.Type != want {
		return uuid.Nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || !c.now().Before(claims.ExpiresAt.Time) {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}
