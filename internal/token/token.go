// Package token mints and verifies the access/refresh JWT pair.
package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/fintra/authserver/config"
	"github.com/fintra/authserver/types"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token fails signature or expiry checks.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims carries the user identity embedded in both tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID int    `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Pair is an access token plus the refresh token that can renew it.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Issuer signs and verifies token pairs. Access and refresh tokens use
// separate secrets so a leaked access secret cannot mint refresh tokens.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewIssuer constructs an Issuer from config.
func NewIssuer(cfg config.JWTConfig) *Issuer {
	return &Issuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}
}

// Issue mints an access/refresh pair carrying the user's identity.
func (i *Issuer) Issue(user types.User) (Pair, error) {
	return i.issue(user.ID, user.Email, user.Role)
}

// Refresh verifies a refresh token and mints a fresh pair from its
// claims. The user record is not re-checked: a token issued before an
// account change stays valid until it expires.
func (i *Issuer) Refresh(refreshToken string) (Pair, error) {
	claims, err := parse(refreshToken, i.refreshSecret)
	if err != nil {
		return Pair{}, err
	}
	return i.issue(claims.UserID, claims.Email, claims.Role)
}

// VerifyAccess verifies an access token and returns its claims.
func (i *Issuer) VerifyAccess(accessToken string) (Claims, error) {
	claims, err := parse(accessToken, i.accessSecret)
	if err != nil {
		return Claims{}, err
	}
	return *claims, nil
}

func (i *Issuer) issue(userID int, email, role string) (Pair, error) {
	access, err := sign(userID, email, role, i.accessSecret, i.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := sign(userID, email, role, i.refreshSecret, i.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func sign(userID int, email, role string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
		Email:  email,
		Role:   role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parse(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
