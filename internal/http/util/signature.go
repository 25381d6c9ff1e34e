package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// PayloadSigner produces compact HMAC signatures for outbound webhook
// bodies, so callback receivers can verify the payload came from us.
type PayloadSigner struct {
	secret []byte
}

// NewPayloadSigner returns a signer. An empty secret disables signing.
func NewPayloadSigner(secret []byte) *PayloadSigner {
	return &PayloadSigner{secret: secret}
}

// Enabled reports whether a secret is configured.
func (s *PayloadSigner) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Sign returns the base64url-encoded HMAC-SHA256 of the payload.
func (s *PayloadSigner) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func (s *PayloadSigner) Verify(payload []byte, signature string) bool {
	provided, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hmac.Equal(provided, mac.Sum(nil))
}
