package github

import (
	"testing"
)

func TestSign(t *testing.T) {
	secret := "secret"
	payload := []byte("payload")

	// Calculated using: echo -n "payload" | openssl dgst -sha256 -hmac "secret"
	expected := "b82fcb791acec57859b989b430a826488ce2e479fdf92326bd0a2e8375a42ba4"

	got := Sign(secret, payload)

	if got != expected {
		t.Errorf("Sign() = %v, want %v", got, expected)
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"action":"opened"}`)

	if !VerifySignature(secret, payload, Sign(secret, payload)) {
		t.Error("Expected matching signature to verify")
	}
	if VerifySignature(secret, payload, Sign("wrong-secret", payload)) {
		t.Error("Expected signature under wrong secret to fail")
	}
	if VerifySignature(secret, []byte(`{"action":"closed"}`), Sign(secret, payload)) {
		t.Error("Expected tampered payload to fail")
	}
}
