package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadSignerRawKey(t *testing.T) {
	t.Parallel()

	s, err := LoadSigner(KeyConfig{RawPrivateKey: testKeyHex})
	require.NoError(t, err)
	require.Equal(t, testKeyAddr, s.Address().Hex())
}

func TestLoadSignerRawKeyTakesPrecedence(t *testing.T) {
	t.Parallel()

	// A configured raw key wins even when a (nonexistent) file path is set.
	s, err := LoadSigner(KeyConfig{
		RawPrivateKey:    testKeyHex,
		EncryptedKeyPath: filepath.Join(t.TempDir(), "absent.enc"),
		KeyPassword:      "whatever",
	})
	require.NoError(t, err)
	require.Equal(t, testKeyAddr, s.Address().Hex())
}

func TestLoadSignerSealedKeyRoundTrip(t *testing.T) {
	t.Parallel()

	sealed, err := EncryptKey(testKeyHex, "correct horse")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "payer.key.enc")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	s, err := LoadSigner(KeyConfig{
		EncryptedKeyPath: path,
		KeyPassword:      "correct horse",
	})
	require.NoError(t, err)
	require.Equal(t, testKeyAddr, s.Address().Hex())
}

func TestLoadSignerWrongPassword(t *testing.T) {
	t.Parallel()

	sealed, err := EncryptKey(testKeyHex, "right")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "payer.key.enc")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	_, err = LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "wrong"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "wrong password")
}

func TestLoadSignerNoSource(t *testing.T) {
	t.Parallel()

	_, err := LoadSigner(KeyConfig{})
	require.Error(t, err)
}

func TestEncryptKeyValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := EncryptKey(testKeyHex, "")
	require.Error(t, err, "empty password must be rejected")

	_, err = EncryptKey("not hex", "pw")
	require.Error(t, err)

	_, err = EncryptKey("deadbeef", "pw")
	require.Error(t, err, "short keys must be rejected")

	// The 0x prefix is tolerated, matching NewSigner.
	_, err = EncryptKey("0x"+testKeyHex, "pw")
	require.NoError(t, err)
}

func TestEncryptKeyRandomized(t *testing.T) {
	t.Parallel()

	// Fresh salt and nonce per call: sealing the same key twice must not
	// produce identical files.
	a, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	b, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	require.NotEqual(t, string(a), string(b))
}

func TestOpenKeyFileRejectsUnknownVersion(t *testing.T) {
	t.Parallel()

	_, err := openKeyFile([]byte(`{"version":99,"salt":"","nonce":"","ciphertext":""}`), "pw")
	require.Error(t, err)
	require.Contains(t, err.Error(), "version")
}
