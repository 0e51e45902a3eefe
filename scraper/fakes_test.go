package scraper

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bizscout/config"
	"bizscout/transport"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return string(data)
}

// scriptedFetcher serves canned pages by URL. Unknown URLs are a 404.
type scriptedFetcher struct {
	strategy transport.Strategy
	pages    map[string]string
	errs     map[string]error

	mu     sync.Mutex
	calls  []string
	delays []time.Duration
}

func newScriptedFetcher(s transport.Strategy) *scriptedFetcher {
	return &scriptedFetcher{
		strategy: s,
		pages:    make(map[string]string),
		errs:     make(map[string]error),
	}
}

func (f *scriptedFetcher) Strategy() transport.Strategy {
	return f.strategy
}

func (f *scriptedFetcher) Fetch(ctx context.Context, url string, opts transport.Options) (*transport.Document, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.delays = append(f.delays, opts.Delay)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	html, ok := f.pages[url]
	if !ok {
		return nil, &transport.Error{Kind: transport.KindHTTP, Status: 404, URL: url, Strategy: f.strategy}
	}
	return &transport.Document{URL: url, HTML: html, StatusCode: 200, Strategy: f.strategy, FetchedAt: time.Now()}, nil
}

func (f *scriptedFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func blocked(url string, s transport.Strategy) error {
	return &transport.Error{Kind: transport.KindBlocked, Signature: "incapsula", URL: url, Strategy: s}
}

func testSite(id, adapter, base string) *config.SiteConfig {
	return &config.SiteConfig{
		ID:       id,
		Name:     id,
		Adapter:  adapter,
		BaseURL:  base,
		Primary:  "direct",
		Identity: "name_url",
	}
}

func mustSource(t *testing.T, site *config.SiteConfig, f Fetchers) Source {
	t.Helper()
	src, err := NewSource(site, f)
	if err != nil {
		t.Fatalf("NewSource(%s): %v", site.ID, err)
	}
	return src
}
