package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_Disabled(t *testing.T) {
	t.Setenv(EnvEnableEncryption, "")

	enc, err := NewEncryptor()
	require.NoError(t, err)
	assert.False(t, enc.Enabled())

	out, err := enc.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestEncryptor_RoundTrip(t *testing.T) {
	t.Setenv(EnvEnableEncryption, "true")
	t.Setenv(EnvEncryptionSecret, "0123456789abcdef0123456789abcdef")

	enc, err := NewEncryptor()
	require.NoError(t, err)
	require.True(t, enc.Enabled())

	a, err := enc.Encrypt("queue snapshot")
	require.NoError(t, err)
	b, err := enc.Encrypt("queue snapshot")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonces must differ")

	plain, err := enc.Decrypt(a)
	require.NoError(t, err)
	assert.Equal(t, "queue snapshot", plain)

	empty, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEncryptor_RejectsBadInput(t *testing.T) {
	t.Setenv(EnvEnableEncryption, "true")
	t.Setenv(EnvEncryptionSecret, "0123456789abcdef0123456789abcdef")

	enc, err := NewEncryptor()
	require.NoError(t, err)

	_, err = enc.Decrypt("not base64!")
	assert.Error(t, err)

	_, err = enc.Decrypt("AAAA")
	assert.Error(t, err)
}

func TestEncryptor_ShortSecret(t *testing.T) {
	t.Setenv(EnvEnableEncryption, "true")
	t.Setenv(EnvEncryptionSecret, "short")

	_, err := NewEncryptor()
	assert.Error(t, err)
}
