// Package auth verifies and issues the signed tokens that bind a user and
// event identity to a connection.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/event-connect/backend/internal/model"
)

// Verifier validates an opaque credential and returns the identity it carries.
type Verifier interface {
	Verify(token string) (*model.Identity, error)
}

// JWTVerifier verifies HS256 tokens carrying attendeeId and eventId claims.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a JWTVerifier with the given signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the identity bound to it.
// Any parse, signature or claim problem yields model.ErrInvalidToken.
func (v *JWTVerifier) Verify(tokenString string) (*model.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, model.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrInvalidToken
	}

	userID, _ := claims["attendeeId"].(string)
	eventID, _ := claims["eventId"].(string)
	if userID == "" || eventID == "" {
		return nil, model.ErrInvalidToken
	}

	return &model.Identity{UserID: userID, EventID: eventID}, nil
}

// Generate issues a signed token for an identity. Used by the login flow and
// by tests.
func (v *JWTVerifier) Generate(identity model.Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"attendeeId": identity.UserID,
		"eventId":    identity.EventID,
		"exp":        jwt.NewNumericDate(time.Now().Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
