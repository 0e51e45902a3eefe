package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bizscout/logging"
)

const DefaultProxyRenderEndpoint = "https://app.scrapingbee.com/api/v1/"

const maxBodySize = 10 << 20

// ProxyRenderFetcher hands the URL to a ScrapingBee-style render service,
// which fetches and optionally renders it from its own network.
type ProxyRenderFetcher struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewProxyRenderFetcher(endpoint, apiKey string, client *http.Client) *ProxyRenderFetcher {
	if endpoint == "" {
		endpoint = DefaultProxyRenderEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &ProxyRenderFetcher{endpoint: endpoint, apiKey: apiKey, client: client}
}

func (f *ProxyRenderFetcher) Strategy() Strategy {
	return StrategyProxyRender
}

func (f *ProxyRenderFetcher) Fetch(ctx context.Context, target string, opts Options) (*Document, error) {
	if err := Wait(ctx, opts.Delay); err != nil {
		return nil, classify(target, StrategyProxyRender, err)
	}

	params := url.Values{}
	params.Set("api_key", f.apiKey)
	params.Set("url", target)
	params.Set("render_js", strconv.FormatBool(opts.RenderJS))
	if opts.UserAgent != "" {
		params.Set("forward_headers", "true")
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOf(opts))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: target, Strategy: StrategyProxyRender, Err: err}
	}
	if opts.UserAgent != "" {
		req.Header.Set("Spb-User-Agent", opts.UserAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(target, StrategyProxyRender, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classify(target, StrategyProxyRender, err)
	}
	logging.Debugf("proxy_render %s status=%d bytes=%d in %s", target, resp.StatusCode, len(body), time.Since(start))

	status := resp.StatusCode
	// the service reports the target's own status separately
	if initial, err := strconv.Atoi(resp.Header.Get("Spb-Initial-Status-Code")); err == nil && initial >= 400 {
		status = initial
	}
	if status < 200 || status >= 300 {
		e := httpError(target, StrategyProxyRender, status)
		e.Err = fmt.Errorf("%s", snippet(body))
		return nil, e
	}

	html := string(body)
	if sig := DetectBlocked(html); sig != "" {
		return nil, blockedError(target, StrategyProxyRender, sig)
	}

	return &Document{
		URL:        target,
		HTML:       html,
		StatusCode: status,
		Strategy:   StrategyProxyRender,
		FetchedAt:  time.Now(),
	}, nil
}

func snippet(body []byte) string {
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
