package security

import (
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event_type":"payment.completed","transaction_token":"tok-1"}`)
	secret := "whsec-test"
	sig := SignPayload(body, secret)

	tests := []struct {
		name   string
		body   []byte
		header string
		secret string
		want   bool
	}{
		{name: "valid", body: body, header: sig, secret: secret, want: true},
		{name: "prefixed", body: body, header: "sha256=" + sig, secret: secret, want: true},
		{name: "upperCaseHex", body: body, header: strings.ToUpper(sig), secret: secret, want: true},
		{name: "tamperedBody", body: []byte(`{"event_type":"payment.completed","transaction_token":"tok-2"}`), header: sig, secret: secret, want: false},
		{name: "wrongSecret", body: body, header: sig, secret: "other", want: false},
		{name: "missingHeader", body: body, header: "", secret: secret, want: false},
		{name: "garbageHeader", body: body, header: "zz-not-hex", secret: secret, want: false},
		{name: "noSecret", body: body, header: sig, secret: "", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := VerifySignature(tc.body, tc.header, tc.secret); got != tc.want {
				t.Fatalf("VerifySignature() = %v, want %v", got, tc.want)
			}
		})
	}
}

func FuzzVerifySignatureNeverAcceptsForeignSecret(f *testing.F) {
	f.Add([]byte(`{}`), "")
	f.Add([]byte(`{"event_type":"x"}`), "sha256=00")
	f.Add([]byte(strings.Repeat("a", 4096)), strings.Repeat("f", 64))

	f.Fuzz(func(t *testing.T, body []byte, header string) {
		forged := SignPayload(body, "attacker")
		if VerifySignature(body, forged, "real-secret") {
			t.Fatal("signature under a different secret must not verify")
		}
		if VerifySignature(body, header, "") {
			t.Fatal("an empty secret must never verify")
		}
	})
}
