package tracking

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateShortCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := generateShortCode()
		if err != nil {
			t.Fatalf("generateShortCode() error: %v", err)
		}
		if len(code) != shortCodeLen {
			t.Fatalf("code %q has length %d, want %d", code, len(code), shortCodeLen)
		}
		for _, c := range code {
			if !strings.ContainsRune(shortCodeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the base62 alphabet", code, c)
			}
		}
		if seen[code] {
			t.Fatalf("code %q repeated within 100 draws", code)
		}
		seen[code] = true
	}
}

func TestOpenTrackingIDRoundTrip(t *testing.T) {
	id := uuid.New()
	decoded, err := DecodeOpenTrackingID(openTrackingID(id))
	if err != nil {
		t.Fatalf("DecodeOpenTrackingID() error: %v", err)
	}
	if decoded != id {
		t.Errorf("round trip = %s, want %s", decoded, id)
	}
}

func TestDecodeOpenTrackingIDRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "!!!", "dG9vLXNob3J0"} {
		if _, err := DecodeOpenTrackingID(in); err == nil {
			t.Errorf("DecodeOpenTrackingID(%q) succeeded, want error", in)
		}
	}
}

func TestInjectPixelBeforeBodyClose(t *testing.T) {
	r := &Rewriter{baseURL: "https://track.example.com"}
	id := uuid.New()

	out := r.InjectPixel("<html><body><p>hi</p></body></html>", id)
	if !strings.Contains(out, "/t/"+openTrackingID(id)+"/open.gif") {
		t.Fatalf("pixel src missing from %q", out)
	}
	if !strings.Contains(out, `/open.gif" width="1" height="1"`) {
		t.Errorf("pixel attributes missing from %q", out)
	}
	if idx := strings.Index(out, "<img"); idx > strings.Index(out, "</body>") {
		t.Errorf("pixel injected after </body>: %q", out)
	}
}

func TestInjectPixelAppendsWithoutBodyTag(t *testing.T) {
	r := &Rewriter{baseURL: "https://track.example.com"}
	out := r.InjectPixel("<p>no body tag</p>", uuid.New())
	if !strings.HasSuffix(out, "/>") || !strings.Contains(out, "open.gif") {
		t.Errorf("pixel not appended at document end: %q", out)
	}
}

func TestTransparentGIF(t *testing.T) {
	gif := TransparentGIF()
	if len(gif) != 43 {
		t.Fatalf("pixel is %d bytes, want 43", len(gif))
	}
	if string(gif[:6]) != "GIF89a" {
		t.Errorf("pixel does not start with GIF89a header")
	}
}

func TestParseDeviceInfo(t *testing.T) {
	cases := []struct {
		name, ua                 string
		wantType, wantOS, wantBr string
		wantBot                  bool
	}{
		{"chrome on windows", "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0", "desktop", "Windows", "Chrome", false},
		{"iphone safari", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile Safari/604.1", "mobile", "iOS", "Safari", false},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 16_0) Safari", "tablet", "iOS", "Safari", false},
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1)", "desktop", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := ParseDeviceInfo(tc.ua)
			if d.Type != tc.wantType || d.OS != tc.wantOS || d.Browser != tc.wantBr || d.IsBot != tc.wantBot {
				t.Errorf("ParseDeviceInfo() = %+v", d)
			}
		})
	}
	if ParseDeviceInfo("") != nil {
		t.Error("empty user agent should yield nil")
	}
}
