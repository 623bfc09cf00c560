package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox_EncryptDecrypt(t *testing.T) {
	box, err := NewBox("not-a-fernet-key")
	require.NoError(t, err)

	tok, err := box.Encrypt("flex-token-123")
	require.NoError(t, err)
	assert.NotEqual(t, "flex-token-123", tok)

	plain, err := box.Decrypt(tok, NoExpiry)
	require.NoError(t, err)
	assert.Equal(t, "flex-token-123", plain)
}

func TestBox_WrongKeyRejected(t *testing.T) {
	a, err := NewBox("key-a")
	require.NoError(t, err)
	b, err := NewBox("key-b")
	require.NoError(t, err)

	tok, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(tok, NoExpiry)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBox_Garbage(t *testing.T) {
	box, err := NewBox("key")
	require.NoError(t, err)

	_, err = box.Decrypt("definitely-not-a-token", NoExpiry)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewBox_EmptySecret(t *testing.T) {
	_, err := NewBox("")
	assert.Error(t, err)
}
