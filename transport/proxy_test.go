package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProxyRenderFetcher_Query(t *testing.T) {
	var gotKey, gotURL, gotRender string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotKey = q.Get("api_key")
		gotURL = q.Get("url")
		gotRender = q.Get("render_js")
		fmt.Fprint(w, "<html><body><div class=\"listing\">ok</div></body></html>")
	}))
	defer srv.Close()

	f := NewProxyRenderFetcher(srv.URL+"/api/v1/", "secret", srv.Client())
	doc, err := f.Fetch(context.Background(), "https://www.bizbuysell.com/businesses-for-sale/2/", Options{RenderJS: true, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if gotKey != "secret" {
		t.Fatalf("expected api key, got %q", gotKey)
	}
	if gotURL != "https://www.bizbuysell.com/businesses-for-sale/2/" {
		t.Fatalf("unexpected target url %q", gotURL)
	}
	if gotRender != "true" {
		t.Fatalf("expected render_js=true, got %q", gotRender)
	}
	if doc.Strategy != StrategyProxyRender {
		t.Fatalf("expected proxy_render strategy, got %s", doc.Strategy)
	}
	if doc.URL != gotURL {
		t.Fatalf("document url should be the target, got %s", doc.URL)
	}
}

func TestProxyRenderFetcher_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		initial  string
		body     string
		kind     Kind
		fallback bool
	}{
		{"service 500", 500, "", "error", KindHTTP, true},
		{"target 404", 200, "404", "<html>gone</html>", KindHTTP, false},
		{"blocked body", 200, "", "<html>px-captcha</html>", KindBlocked, true},
		{"unauthorized", 401, "", "bad key", KindHTTP, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tt.initial != "" {
				w.Header().Set("Spb-Initial-Status-Code", tt.initial)
			}
			w.WriteHeader(tt.status)
			fmt.Fprint(w, tt.body)
		}))

		f := NewProxyRenderFetcher(srv.URL, "k", srv.Client())
		_, err := f.Fetch(context.Background(), "https://example.com/a", Options{Timeout: 5 * time.Second})
		srv.Close()

		if !IsKind(err, tt.kind) {
			t.Fatalf("%s: expected %s, got %v", tt.name, tt.kind, err)
		}
		if ShouldFallback(err) != tt.fallback {
			t.Fatalf("%s: ShouldFallback = %v, want %v", tt.name, !tt.fallback, tt.fallback)
		}
	}
}

func TestProxyRenderFetcher_DefaultEndpoint(t *testing.T) {
	f := NewProxyRenderFetcher("", "k", nil)
	if f.endpoint != DefaultProxyRenderEndpoint {
		t.Fatalf("expected default endpoint, got %s", f.endpoint)
	}
	if f.Strategy() != StrategyProxyRender {
		t.Fatalf("unexpected strategy %s", f.Strategy())
	}
}
