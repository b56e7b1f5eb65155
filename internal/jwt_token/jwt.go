// Package jwttoken is the token collaborator: it issues access tokens for
// an identity and resolves tokens back to the identity they were issued
// for. Nothing else about the identity is encoded in the token; role is
// always re-resolved from the registry.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
)

// Claims represents the JWT claims for our access tokens.
type Claims struct {
	IdentityID string `json:"identity_id"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	tokenTTL   time.Duration
}

func NewJWTService(signingKey, issuer, audience string, tokenTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		tokenTTL:   tokenTTL,
	}
}

// Issue creates a signed access token for the identity.
func (s *JWTService) Issue(identityID id.IdentityID) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		IdentityID: identityID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// ValidateToken resolves a token string to the identity it was issued for.
func (s *JWTService) ValidateToken(tokenString string) (id.IdentityID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.IdentityID{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return id.IdentityID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return id.IdentityID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return id.IdentityID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	identityID, err := id.ParseIdentityID(claims.IdentityID)
	if err != nil {
		return id.IdentityID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return identityID, nil
}
