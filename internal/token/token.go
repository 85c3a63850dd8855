// Package token issues and fetches the scoped join credential for the
// realtime media room.
//
// A credential is a short-lived HS256 JWT whose subject is the participant
// identity and whose "room" claim scopes join rights to a single room. The
// [Issuer] and [Handler] form the issuing service (cmd/tokend); the [Client]
// is the collaborator the orchestrator calls during connect.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the default credential lifetime. Long enough to join, short
// enough that a leaked token is useless quickly.
const DefaultTTL = 10 * time.Minute

// Credential is the issued join credential as returned by the token endpoint.
type Credential struct {
	// Token is the signed JWT.
	Token string `json:"token"`

	// Identity is the participant identity the token was issued for.
	Identity string `json:"identity"`

	// RoomName is the room the token grants join rights to.
	RoomName string `json:"roomName"`
}

// Claims is the JWT claim set carried by a join credential.
type Claims struct {
	jwt.RegisteredClaims

	// Room scopes the join grant to a single room.
	Room string `json:"room"`

	// RoomJoin marks the credential as granting join rights.
	RoomJoin bool `json:"roomJoin"`
}

// Issuer signs join credentials with a shared API secret.
type Issuer struct {
	apiKey string
	secret []byte
	ttl    time.Duration
}

// IssuerOption configures an [Issuer].
type IssuerOption func(*Issuer)

// WithTTL overrides the credential lifetime (default 10 minutes).
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) { i.ttl = ttl }
}

// NewIssuer creates an Issuer. apiKey identifies the issuing application and
// becomes the token's issuer claim; secret signs it.
func NewIssuer(apiKey string, secret []byte, opts ...IssuerOption) (*Issuer, error) {
	if apiKey == "" {
		return nil, errors.New("token: apiKey must not be empty")
	}
	if len(secret) == 0 {
		return nil, errors.New("token: secret must not be empty")
	}
	i := &Issuer{apiKey: apiKey, secret: secret, ttl: DefaultTTL}
	for _, o := range opts {
		o(i)
	}
	return i, nil
}

// Issue signs a credential granting identity the right to join roomName.
func (i *Issuer) Issue(identity, roomName string) (Credential, error) {
	if identity == "" {
		return Credential{}, errors.New("token: identity must not be empty")
	}
	if roomName == "" {
		return Credential{}, errors.New("token: roomName must not be empty")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Room:     roomName,
		RoomJoin: true,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Credential{}, fmt.Errorf("token: sign: %w", err)
	}
	return Credential{Token: signed, Identity: identity, RoomName: roomName}, nil
}

// Verify parses and validates a credential string against the issuer's secret
// and returns its claims. Used by the media gateway side and by tests.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("token: unexpected signing method %v", t.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithIssuer(i.apiKey),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token: verify: %w", err)
	}
	if !claims.RoomJoin || claims.Room == "" {
		return nil, errors.New("token: credential carries no room join grant")
	}
	return claims, nil
}
