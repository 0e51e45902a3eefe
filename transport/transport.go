// Package transport fetches one URL per call through either a direct
// strategy (plain HTTP, or a browser when JS rendering is needed) or an
// external render service. Fetchers keep no state between calls.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type Strategy string

const (
	StrategyDirect      Strategy = "direct"
	StrategyProxyRender Strategy = "proxy_render"
)

type Options struct {
	RenderJS  bool
	Timeout   time.Duration
	Delay     time.Duration // slept before the request is issued
	UserAgent string
	Headless  bool
}

type Document struct {
	URL        string
	HTML       string
	StatusCode int
	Strategy   Strategy
	FetchedAt  time.Time
}

func (d *Document) Parse() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(d.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse html from %s: %w", d.URL, err)
	}
	return doc, nil
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (*Document, error)
	Strategy() Strategy
}

// Wait sleeps for d unless ctx is done first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const defaultTimeout = 45 * time.Second

func timeoutOf(opts Options) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	return defaultTimeout
}
