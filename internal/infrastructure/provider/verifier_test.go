package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifier_ValidSignature(t *testing.T) {
	payload := []byte(`{"type":"test"}`)
	verifier := NewWebhookVerifier("secret")

	require.NoError(t, verifier.Verify(payload, sign("secret", payload)))
}

func TestWebhookVerifier_Sha256Prefix(t *testing.T) {
	payload := []byte(`{"type":"test"}`)
	verifier := NewWebhookVerifier("secret")

	require.NoError(t, verifier.Verify(payload, "sha256="+sign("secret", payload)))
}

func TestWebhookVerifier_WrongSecret(t *testing.T) {
	payload := []byte(`{"type":"test"}`)
	verifier := NewWebhookVerifier("secret")

	assert.Error(t, verifier.Verify(payload, sign("other-secret", payload)))
}

func TestWebhookVerifier_TamperedPayload(t *testing.T) {
	payload := []byte(`{"type":"test"}`)
	verifier := NewWebhookVerifier("secret")
	signature := sign("secret", payload)

	assert.Error(t, verifier.Verify([]byte(`{"type":"tampered"}`), signature))
}

func TestWebhookVerifier_MissingSignature(t *testing.T) {
	verifier := NewWebhookVerifier("secret")
	assert.Error(t, verifier.Verify([]byte("body"), ""))
}

func TestWebhookVerifier_MalformedSignature(t *testing.T) {
	verifier := NewWebhookVerifier("secret")
	assert.Error(t, verifier.Verify([]byte("body"), "not-hex!!"))
}
