package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := New(testKey)
	require.NoError(t, err)

	sealed, err := codec.Seal("ck_live_abc123")
	require.NoError(t, err)
	assert.NotEqual(t, "ck_live_abc123", sealed)

	opened, err := codec.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ck_live_abc123", opened)
}

func TestCodec_SealIsNonDeterministic(t *testing.T) {
	codec, err := New(testKey)
	require.NoError(t, err)

	a, err := codec.Seal("secret")
	require.NoError(t, err)
	b, err := codec.Seal("secret")
	require.NoError(t, err)

	// Fresh nonce per seal: same plaintext, different tokens.
	assert.NotEqual(t, a, b)
}

func TestCodec_BadKey(t *testing.T) {
	_, err := New("deadbeef")
	assert.ErrorIs(t, err, ErrBadKey)

	_, err = New("not hex at all")
	assert.ErrorIs(t, err, ErrBadKey)
}

func TestCodec_FailsClosed(t *testing.T) {
	codec, err := New(testKey)
	require.NoError(t, err)

	// Not base64
	_, err = codec.Open("%%%%")
	assert.ErrorIs(t, err, ErrBadCiphertext)

	// Too short
	_, err = codec.Open("aaaa")
	assert.ErrorIs(t, err, ErrBadCiphertext)

	// Tampered
	sealed, err := codec.Seal("secret")
	require.NoError(t, err)
	tampered := strings.Map(func(r rune) rune {
		if r == 'A' {
			return 'B'
		}
		return 'A'
	}, sealed)
	_, err = codec.Open(tampered)
	assert.ErrorIs(t, err, ErrBadCiphertext)
}

func TestCodec_WrongKey(t *testing.T) {
	codec1, err := New(testKey)
	require.NoError(t, err)
	codec2, err := New("0000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)

	sealed, err := codec1.Seal("secret")
	require.NoError(t, err)

	_, err = codec2.Open(sealed)
	assert.ErrorIs(t, err, ErrBadCiphertext)
}
