package scraper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"sort"
	"time"

	"bizscout/config"
	"bizscout/models"
	"bizscout/transport"
)

// Source is one external listings site.
type Source interface {
	Name() string
	// ListIndexPages walks the index pages in order. Page-level failures
	// are yielded as *PageError and traversal continues.
	ListIndexPages(ctx context.Context, opts CrawlOptions) iter.Seq2[models.RawListing, error]
	FetchDetail(ctx context.Context, raw models.RawListing, opts CrawlOptions) (models.RawListing, error)
	NeedsDetail(raw models.RawListing) bool
	IdentityByURL() bool
}

type CrawlOptions struct {
	MaxPages  int
	Delay     time.Duration
	Timeout   time.Duration
	Headless  bool
	UserAgent string
}

func CrawlOptionsFrom(o config.RunOptions, userAgent string) CrawlOptions {
	return CrawlOptions{
		MaxPages:  o.MaxPages,
		Delay:     o.Delay(),
		Timeout:   o.Timeout(),
		Headless:  o.Headless,
		UserAgent: userAgent,
	}
}

// Fetchers are the transport strategies available to sources. ProxyRender
// is nil when no render service is configured.
type Fetchers struct {
	Direct      transport.Fetcher
	ProxyRender transport.Fetcher
}

var (
	ErrNoContainers = errors.New("no listing containers matched")
	ErrNoDetail     = errors.New("no detail content matched")
	ErrNoIdentity   = errors.New("listing has no absolute detail url")
)

// PageError is a failed index page. The source moves on to the next page.
type PageError struct {
	Page int
	URL  string
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d (%s): %v", e.Page, e.URL, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

type adapterFunc func(site *config.SiteConfig, chain fetchChain) *htmlSource

var adapters = map[string]adapterFunc{
	"bizbuysell":     newBizBuySell,
	"quietlight":     newQuietLight,
	"websiteclosers": newWebsiteClosers,
}

// Adapters lists the registered adapter names.
func Adapters() []string {
	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewSource(site *config.SiteConfig, f Fetchers) (Source, error) {
	build, ok := adapters[site.Adapter]
	if !ok {
		return nil, fmt.Errorf("site %s: unknown adapter %q", site.ID, site.Adapter)
	}

	chain, err := chainFor(site, f)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", site.ID, err)
	}
	return build(site, chain), nil
}

// NewSources builds a source for every enabled site. Sites that cannot be
// built are logged and left out.
func NewSources(cfg *config.Config, f Fetchers) map[string]Source {
	sources := make(map[string]Source)
	for _, id := range cfg.SiteIDs() {
		src, err := NewSource(cfg.Sites[id], f)
		if err != nil {
			log.Printf("Warning: %v", err)
			continue
		}
		sources[id] = src
	}
	return sources
}

func chainFor(site *config.SiteConfig, f Fetchers) (fetchChain, error) {
	chain := fetchChain{renderJS: site.RenderJS}

	switch transport.Strategy(site.Primary) {
	case transport.StrategyProxyRender:
		chain.primary, chain.fallback = f.ProxyRender, f.Direct
	case transport.StrategyDirect, "":
		chain.primary, chain.fallback = f.Direct, f.ProxyRender
	default:
		return chain, fmt.Errorf("unknown primary strategy %q", site.Primary)
	}

	if chain.primary == nil {
		chain.primary, chain.fallback = chain.fallback, nil
	}
	if chain.primary == nil {
		return chain, errors.New("no transport available")
	}
	return chain, nil
}
