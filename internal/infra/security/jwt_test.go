package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalhub/internal/domain/shared/errs"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewJWTVerifier("s3cret", "rentalhub")
	token, err := v.Issue(Principal{UserID: "u1", Role: "host"}, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u1", Role: "host"}, p)
}

func TestVerifyRejects(t *testing.T) {
	v := NewJWTVerifier("s3cret", "rentalhub")
	expired := JWTVerifier{Secret: v.Secret, Issuer: v.Issuer, Now: func() time.Time { return time.Now().Add(-2 * time.Hour) }}
	expiredToken, err := expired.Issue(Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	otherKey, err := NewJWTVerifier("other", "rentalhub").Issue(Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewJWTVerifier("s3cret", "elsewhere").Issue(Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	noUser, err := v.Issue(Principal{}, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"expired":      expiredToken,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"no user":      noUser,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.Error(t, err)
			assert.Equal(t, errs.KindAuthentication, errs.KindOf(err))
		})
	}
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	v := NewJWTVerifier("s3cret", "")
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u9",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(v.Secret)
	require.NoError(t, err)

	p, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "u9", p.UserID)
}
