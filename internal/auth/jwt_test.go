package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestValidateHS256(t *testing.T) {
	jv, err := NewJWTValidatorHS256("secret")
	require.NoError(t, err)

	token := signHS256(t, "secret", jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	sub, err := jv.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", sub)
}

func TestValidateFallsBackToUserIDClaim(t *testing.T) {
	jv, err := NewJWTValidatorHS256("secret")
	require.NoError(t, err)

	token := signHS256(t, "secret", jwt.MapClaims{
		"user_id": "user-7",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	sub, err := jv.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-7", sub)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	jv, err := NewJWTValidatorHS256("secret")
	require.NoError(t, err)

	token := signHS256(t, "other", jwt.MapClaims{"sub": "x"})
	_, err = jv.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	jv, err := NewJWTValidatorHS256("secret")
	require.NoError(t, err)

	token := signHS256(t, "secret", jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err = jv.Validate(token)
	assert.Error(t, err)
}

func TestEmptySecretRejected(t *testing.T) {
	_, err := NewJWTValidatorHS256("")
	assert.Error(t, err)
}
