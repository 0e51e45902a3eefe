package scraper

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"bizscout/models"
	"bizscout/transport"
)

func collect(t *testing.T, src Source, opts CrawlOptions) ([]models.RawListing, []error) {
	t.Helper()
	var listings []models.RawListing
	var errs []error
	for raw, err := range src.ListIndexPages(context.Background(), opts) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		listings = append(listings, raw)
	}
	return listings, errs
}

func TestListIndexPages_StopsWhenPageHasNothingNew(t *testing.T) {
	direct := newScriptedFetcher(transport.StrategyDirect)
	direct.pages["https://ql.test/listings/"] = loadFixture(t, "quietlight_page1.html")
	direct.pages["https://ql.test/listings/page/2/"] = loadFixture(t, "quietlight_page2.html")
	direct.pages["https://ql.test/listings/page/3/"] = loadFixture(t, "quietlight_page2.html")

	src := mustSource(t, testSite("quietlight", "quietlight", "https://ql.test"), Fetchers{Direct: direct})
	listings, errs := collect(t, src, CrawlOptions{MaxPages: 10, Delay: 2 * time.Second})

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(listings) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(listings))
	}
	calls := direct.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected traversal to stop after page 3, fetched %v", calls)
	}
	if direct.delays[0] != 0 {
		t.Fatalf("first page should not be delayed, got %s", direct.delays[0])
	}
	for i, d := range direct.delays[1:] {
		if d != 2*time.Second {
			t.Fatalf("page %d: expected 2s delay, got %s", i+2, d)
		}
	}

	first := listings[0]
	if first.Title != "Kitchen Gadget Brand $17.4M Revenue | $2.56M SDE" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if first.DetailURL != "https://ql.test/listings/16294/" {
		t.Fatalf("unexpected detail url %q", first.DetailURL)
	}
	if first.PriceText != "Asking Price: $9,950,000" {
		t.Fatalf("unexpected price text %q", first.PriceText)
	}
	if first.Industry != "Amazon FBA" {
		t.Fatalf("unexpected industry %q", first.Industry)
	}
}

func TestListIndexPages_RespectsMaxPages(t *testing.T) {
	direct := newScriptedFetcher(transport.StrategyDirect)
	direct.pages["https://ql.test/listings/"] = loadFixture(t, "quietlight_page1.html")
	direct.pages["https://ql.test/listings/page/2/"] = loadFixture(t, "quietlight_page2.html")

	src := mustSource(t, testSite("quietlight", "quietlight", "https://ql.test"), Fetchers{Direct: direct})
	listings, _ := collect(t, src, CrawlOptions{MaxPages: 1})

	if len(listings) != 2 {
		t.Fatalf("expected 2 listings from one page, got %d", len(listings))
	}
	if calls := direct.Calls(); len(calls) != 1 {
		t.Fatalf("expected one fetch, got %v", calls)
	}
}

func TestListIndexPages_PageErrorContinues(t *testing.T) {
	direct := newScriptedFetcher(transport.StrategyDirect)
	direct.pages["https://ql.test/listings/"] = loadFixture(t, "empty_index.html")
	direct.pages["https://ql.test/listings/page/2/"] = loadFixture(t, "quietlight_page2.html")

	src := mustSource(t, testSite("quietlight", "quietlight", "https://ql.test"), Fetchers{Direct: direct})
	listings, errs := collect(t, src, CrawlOptions{MaxPages: 2})

	if len(listings) != 1 {
		t.Fatalf("expected 1 listing from page 2, got %d", len(listings))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 page error, got %v", errs)
	}
	var pe *PageError
	if !errors.As(errs[0], &pe) || pe.Page != 1 {
		t.Fatalf("expected PageError for page 1, got %v", errs[0])
	}
	if !errors.Is(errs[0], ErrNoContainers) {
		t.Fatalf("expected ErrNoContainers, got %v", errs[0])
	}
}

func TestListIndexPages_FetchErrorIsPageError(t *testing.T) {
	direct := newScriptedFetcher(transport.StrategyDirect)
	direct.errs["https://ql.test/listings/"] = blocked("https://ql.test/listings/", transport.StrategyDirect)

	src := mustSource(t, testSite("quietlight", "quietlight", "https://ql.test"), Fetchers{Direct: direct})
	listings, errs := collect(t, src, CrawlOptions{MaxPages: 1})

	if len(listings) != 0 {
		t.Fatalf("expected no listings, got %d", len(listings))
	}
	if len(errs) != 1 || !transport.IsKind(errs[0], transport.KindBlocked) {
		t.Fatalf("expected blocked page error, got %v", errs)
	}
}

func TestBizBuySell_Cards(t *testing.T) {
	proxy := newScriptedFetcher(transport.StrategyProxyRender)
	proxy.pages["https://bbs.test/businesses-for-sale/"] = loadFixture(t, "bizbuysell_index.html")

	site := testSite("bizbuysell", "bizbuysell", "https://bbs.test")
	site.Primary = "proxy_render"
	src := mustSource(t, site, Fetchers{Direct: newScriptedFetcher(transport.StrategyDirect), ProxyRender: proxy})

	listings, errs := collect(t, src, CrawlOptions{MaxPages: 1})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(listings) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(listings))
	}

	hvac := listings[0]
	if hvac.DetailURL != "https://bbs.test/business-for-sale/profitable-hvac-company/2345678/" {
		t.Fatalf("unexpected detail url %q", hvac.DetailURL)
	}
	if hvac.FinancialText != "Asking Price: $1,250,000 | Cash Flow: $410,000" {
		t.Fatalf("unexpected financial text %q", hvac.FinancialText)
	}
	if src.NeedsDetail(hvac) {
		t.Fatalf("card with price and description should not need detail")
	}
	if !src.NeedsDetail(listings[1]) {
		t.Fatalf("card without price should need detail")
	}
	if listings[2].DetailURL != "" {
		t.Fatalf("card without link should have no detail url, got %q", listings[2].DetailURL)
	}
	if src.NeedsDetail(listings[2]) {
		t.Fatalf("card without detail url cannot need detail")
	}
}

func TestWebsiteClosers_AlwaysNeedsDetail(t *testing.T) {
	direct := newScriptedFetcher(transport.StrategyDirect)
	direct.pages["https://wc.test/businesses-for-sale/"] = loadFixture(t, "websiteclosers_index.html")
	direct.pages["https://www.websiteclosers.com/businesses/pet-supplies-ecommerce/"] = loadFixture(t, "websiteclosers_detail.html")

	src := mustSource(t, testSite("websiteclosers", "websiteclosers", "https://wc.test"), Fetchers{Direct: direct})
	listings, _ := collect(t, src, CrawlOptions{MaxPages: 1})
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	raw := listings[0]
	if !src.NeedsDetail(raw) {
		t.Fatalf("websiteclosers listings always need detail")
	}

	detail, err := src.FetchDetail(context.Background(), raw, CrawlOptions{})
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	want := "Asking Price: $2,100,000 | Gross Revenue: $3,800,000 | Cash Flow: $720,000"
	if detail.FinancialText != want {
		t.Fatalf("financial text:\n got %q\nwant %q", detail.FinancialText, want)
	}
	if detail.Location != "Florida" {
		t.Fatalf("unexpected location %q", detail.Location)
	}
	if !strings.HasPrefix(detail.DescriptionText, "Direct-to-consumer pet supplies brand") {
		t.Fatalf("unexpected description %q", detail.DescriptionText)
	}
}

func TestFetchDetail_NoMatcher(t *testing.T) {
	direct := newScriptedFetcher(transport.StrategyDirect)
	direct.pages["https://ql.test/listings/x/"] = "<html><body><p>gone</p></body></html>"

	src := mustSource(t, testSite("quietlight", "quietlight", "https://ql.test"), Fetchers{Direct: direct})
	_, err := src.FetchDetail(context.Background(), models.RawListing{Title: "X", DetailURL: "https://ql.test/listings/x/"}, CrawlOptions{})
	if !errors.Is(err, ErrNoDetail) {
		t.Fatalf("expected ErrNoDetail, got %v", err)
	}
}

func TestResolveDetailLink(t *testing.T) {
	base, _ := url.Parse("https://example.test/search/")
	pattern := regexp.MustCompile(`/listings/[\w-]+/?$`)

	tests := []struct {
		name  string
		html  string
		title string
		want  string
	}{
		{
			name:  "title anchor wins over earlier pattern match",
			html:  `<div><a href="/listings/other-thing/">Featured</a><h3><a href="/listings/alpha-brand/">Alpha Brand</a></h3></div>`,
			title: "Alpha Brand",
			want:  "https://example.test/listings/alpha-brand/",
		},
		{
			name:  "anchor wrapping heading",
			html:  `<div><a href="/contact/">Contact</a><a href="/biz/123"><h2>Gamma</h2></a></div>`,
			title: "Gamma",
			want:  "https://example.test/biz/123",
		},
		{
			name:  "falls back to pattern",
			html:  `<div><a href="/about/">About us</a><a href="/listings/beta-co/">View listing</a><h3>Beta Co</h3></div>`,
			title: "Beta Co",
			want:  "https://example.test/listings/beta-co/",
		},
		{
			name:  "skips javascript and fragments",
			html:  `<div><a href="javascript:void(0)">Delta</a><a href="#top">Delta</a></div>`,
			title: "Delta",
			want:  "",
		},
		{
			name:  "nothing usable",
			html:  `<div><a href="/about/">About</a><h3>Epsilon</h3></div>`,
			title: "Epsilon",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(tt.html))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got := resolveDetailLink(doc.Find("div").First(), tt.title, pattern, base)
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
