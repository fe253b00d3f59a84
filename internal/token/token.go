// Package token issues and validates the signed acting-role tokens that
// authenticate API calls.
//
// A token asserts {actor, acting role} for a bounded lifetime. The claim is
// informational: authorization always re-checks the actor's stored record,
// so a stale token can never grant more than the database says.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "comitia/pkg/domain"
	dErrors "comitia/pkg/domain-errors"
)

const issuer = "comitia"

// Claims is the JWT payload: the registered claims plus the acting role.
type Claims struct {
	jwt.RegisteredClaims
	ActingRole string `json:"acting_role"`
}

// Issuer mints and validates acting-role tokens with a shared HMAC secret.
type Issuer struct {
	secret   []byte
	lifetime time.Duration
}

func NewIssuer(secret []byte, lifetime time.Duration) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes")
	}
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &Issuer{secret: secret, lifetime: lifetime}, nil
}

// Issue signs a token for the actor with the given acting role.
func (i *Issuer) Issue(actorID id.UserID, actingRole string, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actorID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
		ActingRole: actingRole,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token, returning the actor and acting
// role. All failures map to an unauthorized domain error; callers never see
// parser internals.
func (i *Issuer) Validate(raw string) (id.UserID, string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.UserID{}, "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return id.UserID{}, "", dErrors.New(dErrors.CodeUnauthorized, "token is invalid")
	}

	actorID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return id.UserID{}, "", dErrors.New(dErrors.CodeUnauthorized, "token subject is invalid")
	}
	return actorID, claims.ActingRole, nil
}
