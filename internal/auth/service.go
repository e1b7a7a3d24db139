package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type AuthService struct{ hmac []byte }

func NewAuthService(secret string) *AuthService { return &AuthService{hmac: []byte(secret)} }

type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"` // "user" or "admin"
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(sub, role string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(8 * time.Hour)
	claims := &Claims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "pixelproof",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok, err := t.SignedString(a.hmac)
	return tok, exp, err
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	})
	if err != nil || !token.Valid {
		return nil, err
	}
	c, _ := token.Claims.(*Claims)
	return c, nil
}
