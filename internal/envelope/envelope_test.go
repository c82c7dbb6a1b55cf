package envelope

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	testKey Key
)

// PBKDF2 на 100k итераций заметно медленный — выводим ключ один раз на пакет.
func key(t *testing.T) Key {
	t.Helper()
	keyOnce.Do(func() { testKey = DeriveKey("install-secret") })
	return testKey
}

func TestDeriveKeyDeterministic(t *testing.T) {
	k := key(t)
	assert.Equal(t, k, DeriveKey("install-secret"))
	assert.NotEqual(t, k, DeriveKey("other-secret"))
}

func TestRoundTrip(t *testing.T) {
	k := key(t)
	for _, pt := range []string{"hello", "", "юникод и эмодзи 🎲", strings.Repeat("x", 10000), "a:b:c"} {
		env, err := Encrypt(pt, k)
		require.NoError(t, err)
		assert.True(t, LooksLikeEnvelope(env))
		assert.Equal(t, pt, Decrypt(env, k))
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	k := key(t)
	a, err := Encrypt("same", k)
	require.NoError(t, err)
	b, err := Encrypt("same", k)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, strings.SplitN(a, ":", 2)[0], NonceSize*2)
}

func TestDecryptMalformedReturnsPlaceholder(t *testing.T) {
	k := key(t)
	cases := []string{
		"",
		"plain text",
		":",
		"zz:zz",
		"00ff:",
		":00ff",
		"0011223344556677889900aa:00",
		"001122:00112233445566778899aabbccddeeff00",
	}
	for _, c := range cases {
		assert.Equal(t, Placeholder, Decrypt(c, k), "input %q", c)
		assert.False(t, LooksLikeEnvelope(c), "input %q", c)
	}
}

func TestDecryptTamperedOrWrongKey(t *testing.T) {
	k := key(t)
	env, err := Encrypt("secret plan", k)
	require.NoError(t, err)

	nonce, ct, _ := strings.Cut(env, ":")
	flipped := []byte(ct)
	if flipped[0] == '0' {
		flipped[0] = '1'
	} else {
		flipped[0] = '0'
	}
	assert.Equal(t, Placeholder, Decrypt(nonce+":"+string(flipped), k))

	var other Key
	other[0] = 1
	assert.Equal(t, Placeholder, Decrypt(env, other))
}

func TestNewSecret(t *testing.T) {
	a, err := NewSecret()
	require.NoError(t, err)
	b, err := NewSecret()
	require.NoError(t, err)
	assert.Len(t, a, 128)
	assert.NotEqual(t, a, b)
}
