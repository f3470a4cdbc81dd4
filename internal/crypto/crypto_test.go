package crypto

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

const (
	seedA = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	seedB = "4ccd089b28ff96da9db6c346ec114e0f5b8a319f35aba624da8cf6ed4fb8a6fb"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+seedA, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, seedA, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	_, err := EncryptKey(seedA, "")
	assert.Error(t, err)
	_, err = EncryptKey("zz", "pw")
	assert.Error(t, err)
	_, err = EncryptKey(seedA[:10], "pw")
	assert.Error(t, err)
}

func TestKeyringFromFile(t *testing.T) {
	blobA, err := EncryptKey(seedA, "pw")
	require.NoError(t, err)
	blobB, err := EncryptKey(seedB, "pw")
	require.NoError(t, err)

	file := map[string]json.RawMessage{"alice": blobA, "*": blobB}
	data, err := json.Marshal(file)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keyring.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	kr, err := LoadKeyring(KeyringConfig{Path: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, 2, kr.Len())

	ctx := context.Background()
	key, err := kr.SigningKey(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, seedA, key)

	key, err = kr.SigningKey(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, seedB, key, "unknown users fall back to the * entry")

	_, err = LoadKeyring(KeyringConfig{Path: path, Password: "nope"})
	assert.Error(t, err)
}

func TestKeyringWithoutFallback(t *testing.T) {
	kr := &Keyring{seeds: map[string]string{}}
	require.NoError(t, kr.Add("alice", strings.ToUpper(seedA)))

	_, err := kr.SigningKey(context.Background(), "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	key, err := kr.SigningKey(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, seedA, key)

	_, err = LoadKeyring(KeyringConfig{})
	assert.Error(t, err)

	kr, err = LoadKeyring(KeyringConfig{DefaultSeed: seedB})
	require.NoError(t, err)
	key, err = kr.SigningKey(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Equal(t, seedB, key)
}

func TestRequestSignerSignAndVerify(t *testing.T) {
	signer, err := NewRequestSigner(seedA)
	require.NoError(t, err)
	// RFC 8032 test vector 1 public key.
	assert.Equal(t, "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a", signer.Account())

	sig := signer.Sign("POST", "/offers", `{"amount":"1"}`, 1700000000)
	require.NoError(t, Verify(signer.Account(), sig, "POST", "/offers", `{"amount":"1"}`, 1700000000))
	assert.Error(t, Verify(signer.Account(), sig, "POST", "/offers", `{"amount":"2"}`, 1700000000))
	assert.Error(t, Verify("nothex", sig, "POST", "/offers", "", 1))

	assert.NotContains(t, signer.String(), seedA)
}

func TestHMACHeadersAt(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("topsecret"))
	auth := &HMACAuth{Key: "key-123", Secret: secret, Passphrase: "pass"}

	headers := auth.HeadersAt("DELETE", "/offers/42", "", 1700000000)

	mac := hmac.New(sha256.New, []byte("topsecret"))
	mac.Write([]byte("1700000000DELETE/offers/42"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, "key-123", headers[HeaderAPIKey])
	assert.Equal(t, "1700000000", headers[HeaderTimestamp])
	assert.Equal(t, "pass", headers[HeaderPassphrase])
	assert.Equal(t, want, headers[HeaderSignature])
	assert.Equal(t, headers, auth.HeadersAt("DELETE", "/offers/42", "", 1700000000))
}

func TestHMACStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdefgh", Secret: "supersecret"}
	s := auth.String()
	assert.Contains(t, s, "abcd****")
	assert.NotContains(t, s, "supersecret")
}
