package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestParseToken(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		token, err := GenerateToken(42, testSecret, time.Hour)
		require.NoError(t, err)

		claims, err := ParseToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, int64(42), claims.UserId)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := ParseToken("", testSecret)
		assert.True(t, errors.Is(err, errcode.ErrTokenMissing))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := GenerateToken(42, testSecret, time.Hour)
		require.NoError(t, err)

		_, err = ParseToken(token, "other")
		assert.True(t, errors.Is(err, errcode.ErrTokenInvalid))
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := GenerateToken(42, testSecret, -time.Minute)
		require.NoError(t, err)

		_, err = ParseToken(token, testSecret)
		assert.True(t, errors.Is(err, errcode.ErrTokenExpired))
	})

	t.Run("subject fallback", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		parsed, err := ParseToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, int64(7), parsed.UserId)
	})
}
