package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"

	"github.com/praptisiva25/WorkBud/apperror"
)

// JWTAuthenticator verifies HS256 identity tokens whose subject is the user id.
type JWTAuthenticator struct {
	secret []byte
	issuer string
}

func NewJWTAuthenticator(secret, issuer string) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTAuthenticator{secret: []byte(secret), issuer: issuer}, nil
}

// GenerateToken issues a token for userID valid for ttl.
func (a *JWTAuthenticator) GenerateToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})

	tokenString, err := token.SignedString(a.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// Verify checks the signature, expiry and issuer and returns the subject.
func (a *JWTAuthenticator) Verify(tokenString string) (string, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", apperror.Wrap(apperror.Unauthenticated, err, "invalid identity token")
	}
	if !token.Valid {
		return "", apperror.New(apperror.Unauthenticated, "invalid identity token")
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return "", apperror.New(apperror.Unauthenticated, "unexpected token issuer")
	}
	if claims.Subject == "" {
		return "", apperror.New(apperror.Unauthenticated, "token has no subject")
	}
	return claims.Subject, nil
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return "", apperror.New(apperror.Unauthenticated, "missing identity token")
	}
	return a.Verify(raw)
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter that browser websocket clients have to use.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
