package webhook

import (
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test_secret"
	payload := []byte(`{"id":"evt_1","type":"course.activity"}`)
	valid := Sign(payload, secret)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		want      bool
	}{
		{name: "valid signature", payload: payload, signature: valid, secret: secret, want: true},
		{name: "valid with sha256 prefix", payload: payload, signature: "sha256=" + valid, secret: secret, want: true},
		{name: "wrong secret", payload: payload, signature: valid, secret: "other_secret", want: false},
		{name: "tampered payload", payload: []byte(`{"id":"evt_2"}`), signature: valid, secret: secret, want: false},
		{name: "empty signature", payload: payload, signature: "", secret: secret, want: false},
		{name: "not hex", payload: payload, signature: "zzzz", secret: secret, want: false},
		{name: "truncated signature", payload: payload, signature: valid[:16], secret: secret, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.payload, tt.signature, tt.secret); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSign_Deterministic(t *testing.T) {
	payload := []byte("payload")
	a := Sign(payload, "secret")
	b := Sign(payload, "secret")
	if a != b {
		t.Errorf("Sign() not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Sign() length = %d, want 64 hex chars", len(a))
	}
	if strings.ToLower(a) != a {
		t.Errorf("Sign() = %q, want lowercase hex", a)
	}
}
