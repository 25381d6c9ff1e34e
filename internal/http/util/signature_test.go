package util

import "testing"

func TestPayloadSigner_SignAndVerify(t *testing.T) {
	signer := NewPayloadSigner([]byte("topsecret"))
	payload := []byte(`{"id":"entry-1","slug":"abc123"}`)

	sig := signer.Sign(payload)
	if sig == "" {
		t.Fatal("expected a non-empty signature")
	}
	if !signer.Verify(payload, sig) {
		t.Fatal("signature must verify against the original payload")
	}
	if signer.Verify([]byte(`{"id":"tampered"}`), sig) {
		t.Fatal("signature must not verify against a different payload")
	}
	if signer.Verify(payload, "not-base64!!") {
		t.Fatal("malformed signatures must not verify")
	}
}

func TestPayloadSigner_DifferentSecrets(t *testing.T) {
	payload := []byte("payload")
	sig := NewPayloadSigner([]byte("secret-a")).Sign(payload)
	if NewPayloadSigner([]byte("secret-b")).Verify(payload, sig) {
		t.Fatal("a signature from one secret must not verify under another")
	}
}

func TestPayloadSigner_Enabled(t *testing.T) {
	if NewPayloadSigner(nil).Enabled() {
		t.Fatal("empty secret must disable signing")
	}
	if !NewPayloadSigner([]byte("x")).Enabled() {
		t.Fatal("non-empty secret must enable signing")
	}
	var nilSigner *PayloadSigner
	if nilSigner.Enabled() {
		t.Fatal("nil signer must report disabled")
	}
}
