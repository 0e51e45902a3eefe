package transport

import "strings"

// blockSignatures are substrings that only show up on anti-bot interstitials.
var blockSignatures = []string{
	"Request unsuccessful. Incapsula",
	"Incapsula incident ID",
	"_Incapsula_Resource",
	"Attention Required! | Cloudflare",
	"cf-browser-verification",
	"cf_chl_opt",
	"Just a moment...",
	"Checking your browser before accessing",
	"Pardon Our Interruption",
	"px-captcha",
	"Please verify you are a human",
	"This request was blocked",
	"You don't have permission to access",
	"Reference #18.",
	"/distil_r_captcha.html",
	"captcha-delivery.com",
}

// DetectBlocked returns the first block signature found in html, or "".
// An empty body on a 200 also counts as blocked.
func DetectBlocked(html string) string {
	if strings.TrimSpace(html) == "" {
		return "empty body"
	}
	for _, sig := range blockSignatures {
		if strings.Contains(html, sig) {
			return sig
		}
	}
	return ""
}
