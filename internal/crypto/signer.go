package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
)

// RequestSigner signs venue requests with an ed25519 key derived from a
// user's seed. The venue verifies the signature against the account id.
type RequestSigner struct {
	key ed25519.PrivateKey
}

// NewRequestSigner builds a signer from a hex-encoded 32-byte seed.
func NewRequestSigner(seedHex string) (*RequestSigner, error) {
	seed, err := decodeSeed(seedHex)
	if err != nil {
		return nil, err
	}
	return &RequestSigner{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Account returns the hex-encoded public key identifying the signer.
func (s *RequestSigner) Account() string {
	return hex.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

// Sign returns the base64 signature of timestamp+method+path+body.
func (s *RequestSigner) Sign(method, path, body string, unixTS int64) string {
	msg := strconv.FormatInt(unixTS, 10) + method + path + body
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, []byte(msg)))
}

// Verify checks a signature produced by Sign for the given account.
func Verify(account, signature, method, path, body string, unixTS int64) error {
	pub, err := hex.DecodeString(account)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("crypto: invalid account %q", account)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("crypto: decoding signature: %w", err)
	}
	msg := strconv.FormatInt(unixTS, 10) + method + path + body
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(msg), sig) {
		return fmt.Errorf("crypto: signature mismatch for account %s", account)
	}
	return nil
}

// String returns a redacted representation suitable for logging.
func (s *RequestSigner) String() string {
	return fmt.Sprintf("RequestSigner{account=%s}", s.Account())
}
