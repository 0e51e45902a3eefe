package scraper

import (
	"context"
	"errors"

	"bizscout/logging"
	"bizscout/transport"
)

// fetchChain is a source's primary strategy and the one it falls back to.
type fetchChain struct {
	primary  transport.Fetcher
	fallback transport.Fetcher
	renderJS bool
}

// fetch tries the primary strategy and, when the failure warrants it, the
// fallback once. The fallback is not delayed again.
func (c fetchChain) fetch(ctx context.Context, url string, opts transport.Options) (*transport.Document, error) {
	doc, err := c.primary.Fetch(ctx, url, opts)
	if err == nil {
		return doc, nil
	}
	if c.fallback == nil || !transport.ShouldFallback(err) {
		return nil, err
	}

	logging.Debugf("%s failed for %s, retrying with %s: %v", c.primary.Strategy(), url, c.fallback.Strategy(), err)
	opts.Delay = 0
	doc, ferr := c.fallback.Fetch(ctx, url, opts)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return doc, nil
}

func (c fetchChain) options(opts CrawlOptions, delay bool) transport.Options {
	o := transport.Options{
		RenderJS:  c.renderJS,
		Timeout:   opts.Timeout,
		UserAgent: opts.UserAgent,
		Headless:  opts.Headless,
	}
	if delay {
		o.Delay = opts.Delay
	}
	return o
}
