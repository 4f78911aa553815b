// Package tokens mints and verifies the bearer tokens that reference login
// sessions. A token carries only identifiers; permissions are recomputed
// from role assignments on every request.
package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

// ErrTokenExpired distinguishes expiry from other verification failures so
// the resolver can surface a precise rejection.
var ErrTokenExpired = errors.New("token expired")

// Claims are the JWT claims embedded in access tokens.
type Claims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Service signs and verifies access tokens with a shared HMAC key.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey, issuer string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// Mint issues a signed access token referencing the given user and session.
func (s *Service) Mint(userID id.UserID, sessionID id.SessionID, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    userID.String(),
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded identifiers.
// Expired tokens return ErrTokenExpired (wrapped); every other failure is a
// generic invalid-token error so probing reveals nothing about why.
func (s *Service) Verify(tokenString string) (id.UserID, id.SessionID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.UserID{}, id.SessionID{}, dErrors.Wrap(ErrTokenExpired, dErrors.CodeUnauthorized, "token has expired")
		}
		return id.UserID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return id.UserID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return id.UserID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	sessionID, err := id.ParseSessionID(claims.SessionID)
	if err != nil {
		return id.UserID{}, id.SessionID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return userID, sessionID, nil
}
