package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"bizscout/logging"
)

// BrowserEngine renders a page in a real browser and returns the final DOM.
type BrowserEngine interface {
	Render(ctx context.Context, url string, opts Options) (html string, status int, err error)
	Close() error
}

// DirectFetcher talks to the target site itself: a colly request for
// static pages, a browser session when RenderJS is set.
type DirectFetcher struct {
	roundTripper http.RoundTripper
	browser      BrowserEngine
	headers      map[string]string
	userAgent    string
}

func NewDirectFetcher(rt http.RoundTripper, browser BrowserEngine, headers map[string]string, userAgent string) *DirectFetcher {
	return &DirectFetcher{
		roundTripper: rt,
		browser:      browser,
		headers:      headers,
		userAgent:    userAgent,
	}
}

func (f *DirectFetcher) Strategy() Strategy {
	return StrategyDirect
}

func (f *DirectFetcher) Fetch(ctx context.Context, url string, opts Options) (*Document, error) {
	if err := Wait(ctx, opts.Delay); err != nil {
		return nil, classify(url, StrategyDirect, err)
	}

	if opts.RenderJS {
		return f.render(ctx, url, opts)
	}
	return f.get(ctx, url, opts)
}

func (f *DirectFetcher) get(ctx context.Context, url string, opts Options) (*Document, error) {
	ua := opts.UserAgent
	if ua == "" {
		ua = f.userAgent
	}

	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(timeoutOf(opts))
	// Every status reaches OnResponse; only >= 400 is a failure.
	c.ParseHTTPErrorResponse = true
	if f.roundTripper != nil {
		c.WithTransport(f.roundTripper)
	}

	c.OnRequest(func(r *colly.Request) {
		for k, v := range f.headers {
			r.Headers.Set(k, v)
		}
	})

	doc := &Document{URL: url, Strategy: StrategyDirect}
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		doc.StatusCode = r.StatusCode
		doc.HTML = string(r.Body)
		doc.URL = r.Request.URL.String()
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = httpError(url, StrategyDirect, r.StatusCode)
			return
		}
		fetchErr = classify(url, StrategyDirect, err)
	})

	start := time.Now()
	visitErr := c.Visit(url)
	logging.Debugf("direct GET %s status=%d bytes=%d in %s", url, doc.StatusCode, len(doc.HTML), time.Since(start))

	if fetchErr != nil {
		return nil, fetchErr
	}
	if visitErr != nil {
		return nil, classify(url, StrategyDirect, visitErr)
	}
	if doc.StatusCode >= 400 {
		return nil, httpError(url, StrategyDirect, doc.StatusCode)
	}

	if sig := DetectBlocked(doc.HTML); sig != "" {
		return nil, blockedError(url, StrategyDirect, sig)
	}

	doc.FetchedAt = time.Now()
	return doc, nil
}

func (f *DirectFetcher) render(ctx context.Context, url string, opts Options) (*Document, error) {
	if f.browser == nil {
		return nil, &Error{Kind: KindNetwork, URL: url, Strategy: StrategyDirect, Err: fmt.Errorf("no browser engine configured")}
	}

	if opts.UserAgent == "" {
		opts.UserAgent = f.userAgent
	}

	start := time.Now()
	html, status, err := f.browser.Render(ctx, url, opts)
	logging.Debugf("direct render %s status=%d bytes=%d in %s", url, status, len(html), time.Since(start))
	if err != nil {
		return nil, classify(url, StrategyDirect, err)
	}
	if status >= 400 {
		return nil, httpError(url, StrategyDirect, status)
	}
	if sig := DetectBlocked(html); sig != "" {
		return nil, blockedError(url, StrategyDirect, sig)
	}

	return &Document{
		URL:        url,
		HTML:       html,
		StatusCode: status,
		Strategy:   StrategyDirect,
		FetchedAt:  time.Now(),
	}, nil
}

// Close shuts down the browser engine, if any.
func (f *DirectFetcher) Close() error {
	if f.browser == nil {
		return nil
	}
	return f.browser.Close()
}
