package scraper

import (
	"context"
	"strings"
	"testing"
	"time"

	"bizscout/config"
	"bizscout/transport"
)

func TestFetchChain_FallbackOnBlocked(t *testing.T) {
	const target = "https://bbs.test/businesses-for-sale/"
	proxy := newScriptedFetcher(transport.StrategyProxyRender)
	proxy.errs[target] = blocked(target, transport.StrategyProxyRender)
	direct := newScriptedFetcher(transport.StrategyDirect)
	direct.pages[target] = "<html><body>ok</body></html>"

	chain := fetchChain{primary: proxy, fallback: direct}
	doc, err := chain.fetch(context.Background(), target, transport.Options{Delay: 3 * time.Second})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if doc.Strategy != transport.StrategyDirect {
		t.Fatalf("expected document from direct, got %s", doc.Strategy)
	}
	if proxy.delays[0] != 3*time.Second {
		t.Fatalf("primary should carry the delay, got %s", proxy.delays[0])
	}
	if direct.delays[0] != 0 {
		t.Fatalf("fallback must not be delayed again, got %s", direct.delays[0])
	}
}

func TestFetchChain_FallbackOnServerError(t *testing.T) {
	const target = "https://ql.test/listings/"
	direct := newScriptedFetcher(transport.StrategyDirect)
	direct.errs[target] = &transport.Error{Kind: transport.KindHTTP, Status: 503, URL: target, Strategy: transport.StrategyDirect}
	proxy := newScriptedFetcher(transport.StrategyProxyRender)
	proxy.pages[target] = "<html><body>ok</body></html>"

	chain := fetchChain{primary: direct, fallback: proxy}
	if _, err := chain.fetch(context.Background(), target, transport.Options{}); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if len(proxy.Calls()) != 1 {
		t.Fatalf("expected one fallback call, got %d", len(proxy.Calls()))
	}
}

func TestFetchChain_NoFallbackOnNotFound(t *testing.T) {
	direct := newScriptedFetcher(transport.StrategyDirect)
	proxy := newScriptedFetcher(transport.StrategyProxyRender)

	chain := fetchChain{primary: direct, fallback: proxy}
	_, err := chain.fetch(context.Background(), "https://ql.test/missing/", transport.Options{})
	if !transport.IsKind(err, transport.KindHTTP) {
		t.Fatalf("expected http error, got %v", err)
	}
	if len(proxy.Calls()) != 0 {
		t.Fatalf("404 must not fall back, proxy saw %v", proxy.Calls())
	}
}

func TestFetchChain_BothFail(t *testing.T) {
	const target = "https://bbs.test/businesses-for-sale/"
	proxy := newScriptedFetcher(transport.StrategyProxyRender)
	proxy.errs[target] = blocked(target, transport.StrategyProxyRender)
	direct := newScriptedFetcher(transport.StrategyDirect)
	direct.errs[target] = &transport.Error{Kind: transport.KindHTTP, Status: 403, URL: target, Strategy: transport.StrategyDirect}

	chain := fetchChain{primary: proxy, fallback: direct}
	_, err := chain.fetch(context.Background(), target, transport.Options{})
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "blocked_content") || !strings.Contains(msg, "http_error 403") {
		t.Fatalf("expected both failures in %q", msg)
	}
	if len(direct.Calls()) != 1 || len(proxy.Calls()) != 1 {
		t.Fatalf("expected exactly one call per strategy")
	}
}

func TestChainFor(t *testing.T) {
	direct := newScriptedFetcher(transport.StrategyDirect)
	proxy := newScriptedFetcher(transport.StrategyProxyRender)

	site := &config.SiteConfig{ID: "bbs", Primary: "proxy_render"}
	chain, err := chainFor(site, Fetchers{Direct: direct, ProxyRender: proxy})
	if err != nil {
		t.Fatalf("chainFor: %v", err)
	}
	if chain.primary != proxy || chain.fallback != direct {
		t.Fatalf("expected proxy primary with direct fallback")
	}

	chain, err = chainFor(site, Fetchers{Direct: direct})
	if err != nil {
		t.Fatalf("chainFor without proxy: %v", err)
	}
	if chain.primary != direct || chain.fallback != nil {
		t.Fatalf("expected direct promoted to primary with no fallback")
	}

	if _, err := chainFor(&config.SiteConfig{ID: "x", Primary: "carrier_pigeon"}, Fetchers{Direct: direct}); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
	if _, err := chainFor(&config.SiteConfig{ID: "x"}, Fetchers{}); err == nil {
		t.Fatalf("expected error with no transports")
	}
}
