package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const issuer = "clinic-appointments"

// Claims carries the caller's role; the subject is the doctor or user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}
}

func (ti *TokenIssuer) Issue(actor appointment.Actor) (string, error) {
	now := ti.now()
	claims := &Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the actor it was issued to.
func (ti *TokenIssuer) Verify(tokenString string) (appointment.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil || !token.Valid {
		return appointment.Actor{}, ErrInvalidToken
	}

	role := appointment.Role(claims.Role)
	switch role {
	case appointment.RoleUser, appointment.RoleDoctor, appointment.RoleAdmin:
	default:
		return appointment.Actor{}, ErrInvalidToken
	}

	return appointment.Actor{Role: role, ID: claims.Subject}, nil
}
