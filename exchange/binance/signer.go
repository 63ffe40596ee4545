package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes the request authentication signature the exchange
// verifies: HMAC-SHA256 over the exact query string, keyed by the API
// secret, hex encoded. Signing is a pure function of (secret, payload).
type Signer struct {
	secret string
}

// NewSigner returns a signer keyed by secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the signature for payload. The payload must be byte
// identical to the query string that is sent; the server recomputes the
// MAC over what it receives.
func (s *Signer) Sign(payload string) (string, error) {
	if s.secret == "" {
		return "", ErrNotAuthenticated
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
