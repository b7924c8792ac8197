package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap keeps the suite fast; format and verification do not depend on cost.
var cheap = Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashAndCheck(t *testing.T) {
	h, err := HashPasswordWith("s3cret", cheap)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := CheckPassword("s3cret", h)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword("wrong", h)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	a, _ := HashPasswordWith("same", cheap)
	b, _ := HashPasswordWith("same", cheap)
	assert.NotEqual(t, a, b)
}

func TestCheckMalformed(t *testing.T) {
	for _, h := range []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=1$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$!!$aGFzaA",
	} {
		_, err := CheckPassword("pw", h)
		assert.ErrorIs(t, err, ErrMalformedHash, h)
	}
}

func TestNewToken(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, _ := NewToken()
	assert.Len(t, a, 2*TokenBytes)
	assert.NotEqual(t, a, b)
}
