// Package auth issues and verifies operator bearer tokens for the delivery
// operations surface. Customer authentication lives outside this core.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const tokenDuration = 8 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// TokenPayload is verified token content
type TokenPayload struct {
	OperatorID string
}

type claims struct {
	OperatorID string `json:"operator_id"`
	jwt.RegisteredClaims
}

// Token creates and verifies operator tokens
type Token struct {
	key []byte
}

// NewAuthToken creates new Token instance
func NewAuthToken(key []byte) *Token {
	return &Token{key: key}
}

// CreateToken issues a signed token for operator
func (t *Token) CreateToken(operatorID string) (string, error) {
	now := time.Now()
	c := claims{
		OperatorID: operatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenDuration)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.key)
}

// VerifyToken parses and validates token string
func (t *Token) VerifyToken(tokenString string) (*TokenPayload, error) {
	c := claims{}
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return &TokenPayload{OperatorID: c.OperatorID}, nil
}
