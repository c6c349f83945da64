package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"rentalhub/internal/domain/shared/errs"
)

var ErrInvalidToken = errs.New(errs.KindAuthentication, "invalid or expired token")

// Claims is the payload carried by access tokens issued by the identity service.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller resolved from a token.
type Principal struct {
	UserID string
	Role   string
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

func NewJWTVerifier(secret, issuer string) JWTVerifier {
	return JWTVerifier{Secret: []byte(secret), Issuer: issuer}
}

func (v JWTVerifier) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, errs.New(errs.KindAuthentication, "token is required")
	}
	if len(v.Secret) == 0 {
		return Principal{}, errs.New(errs.KindAuthentication, "token verification disabled")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	})
	if err != nil {
		return Principal{}, errs.Wrap(errs.KindAuthentication, err, ErrInvalidToken.Msg)
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	if v.Issuer != "" && !claims.VerifyIssuer(v.Issuer, true) {
		return Principal{}, ErrInvalidToken
	}
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return Principal{}, errs.New(errs.KindAuthentication, "token has no user")
	}
	return Principal{UserID: userID, Role: claims.Role}, nil
}

// Issue signs a token for the principal. Used by tooling and tests.
func (v JWTVerifier) Issue(p Principal, ttl time.Duration) (string, error) {
	if len(v.Secret) == 0 {
		return "", errors.New("jwt: secret is empty")
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	claims := Claims{
		UserID: p.UserID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    v.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, nil
}
