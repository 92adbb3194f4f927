package manifest

import (
	"crypto/cipher"
	"encoding/base64"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
)

const nonceDomain = "assetpipe/manifest/nonce"

// CipherCodec is the reversible token strategy: the token is the
// XChaCha20-Poly1305 ciphertext of the joined file list, base64url encoded.
//
// The nonce is derived from the secret alone, so equal lists encode to equal
// tokens. That determinism is what makes bundle URLs stable across processes
// without shared state; the cost is that repeated manifests are observable
// as repeated ciphertexts.
type CipherCodec struct {
	aead  cipher.AEAD
	nonce []byte
}

// NewCipherCodec derives the cipher key and static nonce from secret.
func NewCipherCodec(secret string) (*CipherCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("cipher codec requires a secret key")
	}
	key := blake3.Sum256([]byte(secret))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	h := blake3.New()
	h.Write([]byte(nonceDomain))
	h.Write([]byte(secret))
	nonce := h.Sum(nil)[:chacha20poly1305.NonceSizeX]

	return &CipherCodec{aead: aead, nonce: nonce}, nil
}

// Encode encrypts the joined list into a URL-safe token.
func (c *CipherCodec) Encode(files []string) (string, error) {
	sealed := c.aead.Seal(nil, c.nonce, []byte(joinList(files)), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode recovers the file list, or an empty list when the token is
// malformed, truncated, or sealed under a different secret.
func (c *CipherCodec) Decode(token string) []string {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil
	}
	joined, err := c.aead.Open(nil, c.nonce, raw, nil)
	if err != nil {
		return nil
	}
	return splitList(string(joined))
}
