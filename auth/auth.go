// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidSignature = errors.New("invalid link signature")
	ErrInvalidToken     = errors.New("invalid token")
)

// GenerateID creates a random hex ID of the specified byte length
func GenerateID(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewID returns a random UUID for stored records
func NewID() string {
	return uuid.NewString()
}

// GenerateOfferToken creates the opaque token embedded in offer email links
// 18 bytes = 144 bits of entropy, hex encoded
func GenerateOfferToken() (string, error) {
	token, err := GenerateID(18)
	if err != nil {
		return "", fmt.Errorf("failed to generate offer token: %w", err)
	}
	return token, nil
}

// LinkSigner signs the subject of an emailed decision link (verify,
// confirm-interest, follow-up) so the link itself authorizes the action.
type LinkSigner struct {
	secret []byte
}

func NewLinkSigner(secret string) *LinkSigner {
	return &LinkSigner{secret: []byte(secret)}
}

// Sign is deterministic for the same parts and secret
func (s *LinkSigner) Sign(parts ...string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(strings.Join(parts, "\x00")))
	sum := h.Sum(nil)
	// Use URL-safe base64 and trim padding for cleaner links
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// Verify checks sig against the parts it was issued for
func (s *LinkSigner) Verify(sig string, parts ...string) error {
	expected := s.Sign(parts...)
	if sig == "" || !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// IdentityResolver maps a bearer token to a user id. Authentication is
// delegated; the core only needs the resolved id.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// ResolverFunc adapts a function to IdentityResolver
type ResolverFunc func(ctx context.Context, token string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// JWTResolver resolves HS256 tokens whose subject is the user id
type JWTResolver struct {
	secret []byte
	issuer string
}

func NewJWTResolver(secret, issuer string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), issuer: issuer}
}

func (j *JWTResolver) Resolve(_ context.Context, tokenStr string) (string, error) {
	claims := new(jwt.RegisteredClaims)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return j.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// IssueToken signs a token for userID, used by tests and local tooling
func (j *JWTResolver) IssueToken(userID string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    j.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
