package webhook

import (
	"strings"
	"testing"
)

func TestSignIsDeterministic(t *testing.T) {
	payload := []byte(`{"id":"abc","type":"email.sent"}`)
	a := Sign("secret", 1700000000, payload)
	b := Sign("secret", 1700000000, payload)
	if a != b {
		t.Fatalf("same inputs produced different signatures: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars for a sha256 digest, got %d", len(a))
	}
}

func TestSignVariesWithEveryInput(t *testing.T) {
	payload := []byte(`{"id":"abc"}`)
	base := Sign("secret", 1700000000, payload)

	if Sign("other-secret", 1700000000, payload) == base {
		t.Error("changing the secret did not change the signature")
	}
	if Sign("secret", 1700000001, payload) == base {
		t.Error("changing the timestamp did not change the signature")
	}
	if Sign("secret", 1700000000, []byte(`{"id":"abd"}`)) == base {
		t.Error("changing the payload did not change the signature")
	}
}

func TestSignatureHeaderScheme(t *testing.T) {
	h := SignatureHeader("secret", 1700000000, []byte("body"))
	if !strings.HasPrefix(h, "sha256=") {
		t.Fatalf("header value %q missing sha256= scheme", h)
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"abc","type":"email.sent"}`)
	good := SignatureHeader("secret", 1700000000, payload)

	cases := []struct {
		name      string
		secret    string
		timestamp int64
		payload   []byte
		signature string
		want      bool
	}{
		{"valid", "secret", 1700000000, payload, good, true},
		{"wrong secret", "other", 1700000000, payload, good, false},
		{"wrong timestamp", "secret", 1700000001, payload, good, false},
		{"tampered payload", "secret", 1700000000, []byte(`{"id":"xyz"}`), good, false},
		{"bare hex without scheme", "secret", 1700000000, payload, strings.TrimPrefix(good, "sha256="), false},
		{"truncated", "secret", 1700000000, payload, good[:len(good)-2], false},
		{"empty", "secret", 1700000000, payload, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VerifySignature(tc.secret, tc.timestamp, tc.payload, tc.signature); got != tc.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 200); got != "short" {
		t.Errorf("truncate() altered a short string: %q", got)
	}
	long := strings.Repeat("x", 300)
	if got := truncate(long, maxErrorLen); len(got) != maxErrorLen {
		t.Errorf("truncate() length = %d, want %d", len(got), maxErrorLen)
	}
}
