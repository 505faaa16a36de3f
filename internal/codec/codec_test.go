package codec

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewFromBase64(key)
	require.NoError(t, err)
	return c
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec(t)

	cases := []string{
		"",
		"hi",
		"héllo wörld 你好 👋",
		strings.Repeat("long message ", 500),
		"line1\nline2\t\x00null",
	}
	for _, plain := range cases {
		blob, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, blob)

		got, err := c.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestCodec_NonceIsRandom(t *testing.T) {
	c := newTestCodec(t)

	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCodec_Placeholder(t *testing.T) {
	c := newTestCodec(t)
	other := newTestCodec(t)

	blob, err := other.Encrypt("secret")
	require.NoError(t, err)

	assert.Equal(t, constant.UndecryptablePlaceholder, c.DecryptOrPlaceholder(blob))
	assert.Equal(t, constant.UndecryptablePlaceholder, c.DecryptOrPlaceholder("not base64 !!"))
	assert.Equal(t, constant.UndecryptablePlaceholder, c.DecryptOrPlaceholder("c2hvcnQ"))

	// flip one byte of valid ciphertext
	own, err := c.Encrypt("secret")
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(own)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	assert.Equal(t, constant.UndecryptablePlaceholder, c.DecryptOrPlaceholder(base64.RawURLEncoding.EncodeToString(raw)))

	assert.Equal(t, "secret", c.DecryptOrPlaceholder(own))
}

func TestNewFromBase64_InvalidKey(t *testing.T) {
	_, err := NewFromBase64("")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewFromBase64(base64.StdEncoding.EncodeToString([]byte("too short")))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewFromBase64("%%%")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
