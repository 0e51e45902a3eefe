package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"bizscout/models"
)

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nonAlnumRegex   = regexp.MustCompile(`[^a-z0-9\s]`)
	trackingParams  = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "ref", "gclid", "fbclid"}
)

// Fingerprint keys a raw listing within one run so pagination can tell new
// items from ones already seen. The detail URL wins when present.
func Fingerprint(listing *models.RawListing) string {
	input := listing.SourceName + "|"
	if u := CanonicalURL(listing.DetailURL); u != "" {
		input += "url|" + u
	} else {
		input += "title|" + NormalizeTitle(listing.Title)
	}
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

// NormalizeTitle lowercases and strips punctuation for comparison only.
func NormalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	title = nonAlnumRegex.ReplaceAllString(title, " ")
	title = multiSpaceRegex.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}

// CleanName collapses whitespace and truncates to the persisted name length
// on a rune boundary.
func CleanName(title string) string {
	name := strings.TrimSpace(multiSpaceRegex.ReplaceAllString(title, " "))
	runes := []rune(name)
	if len(runes) > models.MaxNameLength {
		name = strings.TrimSpace(string(runes[:models.MaxNameLength]))
	}
	return name
}

// CanonicalURL returns an absolute http(s) URL without fragment or
// tracking parameters, or "" if raw is not one.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	if u.RawQuery != "" {
		q := u.Query()
		for _, p := range trackingParams {
			q.Del(p)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
