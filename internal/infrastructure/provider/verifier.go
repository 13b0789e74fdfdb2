package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// WebhookVerifier validates inbound webhook signatures. The provider signs
// the raw body with HMAC-SHA256 and sends the hex digest in a header,
// optionally prefixed with "sha256=".
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier creates a verifier for the given shared secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Verify checks the signature header against the raw payload.
func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return fmt.Errorf("missing signature header")
	}

	signature := strings.TrimPrefix(signatureHeader, "sha256=")
	declared, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	if !hmac.Equal(declared, mac.Sum(nil)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}
