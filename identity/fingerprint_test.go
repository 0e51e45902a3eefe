package identity

import (
	"strings"
	"testing"

	"bizscout/models"
)

func TestFingerprintPrefersURL(t *testing.T) {
	a := &models.RawListing{SourceName: "quietlight", Title: "Brand A", DetailURL: "https://quietlight.com/listings/123/?utm_source=x#top"}
	b := &models.RawListing{SourceName: "quietlight", Title: "Brand A renamed", DetailURL: "https://QuietLight.com/listings/123/"}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("expected same fingerprint for same canonical URL")
	}

	c := &models.RawListing{SourceName: "bizbuysell", Title: "Brand A", DetailURL: "https://quietlight.com/listings/123/"}
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatalf("expected source to be part of the fingerprint")
	}
}

func TestFingerprintFallsBackToTitle(t *testing.T) {
	a := &models.RawListing{SourceName: "s", Title: "  Pool Service -- Phoenix, AZ "}
	b := &models.RawListing{SourceName: "s", Title: "pool service phoenix az"}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("expected normalized titles to match")
	}
	if len(Fingerprint(a)) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(Fingerprint(a)))
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com/business-for-sale/x/123456/", "https://example.com/business-for-sale/x/123456/"},
		{"https://Example.com/a?utm_medium=email&id=4", "https://example.com/a?id=4"},
		{"/relative/path", ""},
		{"javascript:void(0)", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalURL(tt.in); got != tt.want {
			t.Fatalf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanNameTruncates(t *testing.T) {
	long := strings.Repeat("é", models.MaxNameLength+20)
	name := CleanName(long)
	if n := len([]rune(name)); n != models.MaxNameLength {
		t.Fatalf("expected %d runes, got %d", models.MaxNameLength, n)
	}
	if CleanName("  Two\n\tWords ") != "Two Words" {
		t.Fatalf("expected whitespace collapsed")
	}
}
