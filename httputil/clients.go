package httputil

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"bizscout/config"
)

type Clients struct {
	Scraping *http.Client // target sites, through PROXY_URL when set
	API      *http.Client // render service, Supabase
}

func NewClients(proxyCfg config.ProxyConfig) *Clients {
	return &Clients{
		Scraping: &http.Client{
			Timeout:   60 * time.Second,
			Transport: ScrapingTransport(proxyCfg),
		},
		API: &http.Client{Timeout: 90 * time.Second},
	}
}

// ScrapingTransport clones the default transport and routes it through the
// configured proxy. An unparsable proxy URL is logged and ignored.
func ScrapingTransport(proxyCfg config.ProxyConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyCfg.URL == "" {
		return transport
	}

	proxyURL, err := url.Parse(proxyCfg.URL)
	if err != nil || proxyURL.Host == "" {
		log.Printf("Warning: ignoring invalid PROXY_URL: %v", err)
		return transport
	}
	transport.Proxy = http.ProxyURL(proxyURL)
	return transport
}

// BrowserHeaders are sent on direct fetches so they look like a browser
// navigation.
func BrowserHeaders() map[string]string {
	return map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Cache-Control":             "no-cache",
		"Upgrade-Insecure-Requests": "1",
	}
}

// MaskURL hides the password part of a connection string or proxy URL.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
