package scraper

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bizscout/config"
	"bizscout/identity"
	"bizscout/logging"
	"bizscout/models"
	"bizscout/transport"
)

// ContainerMatcher locates listing cards on an index page.
type ContainerMatcher struct {
	Name string
	Find func(doc *goquery.Document) *goquery.Selection
}

// DetailMatcher copies what it finds on a detail page into l and reports
// whether anything matched.
type DetailMatcher struct {
	Name    string
	Extract func(doc *goquery.Document, l *models.RawListing) bool
}

// htmlSource is the shared engine behind every adapter. Adapters only
// supply the site-specific pieces.
type htmlSource struct {
	name  string
	base  *url.URL
	byURL bool
	chain fetchChain

	indexURL   func(page int) string
	containers []ContainerMatcher
	card       func(card *goquery.Selection, l *models.RawListing)
	detailLink *regexp.Regexp
	details    []DetailMatcher

	// alwaysDetail is set for sites whose index never carries enough to
	// skip the detail page.
	alwaysDetail bool
}

func newHTMLSource(site *config.SiteConfig, chain fetchChain) *htmlSource {
	base, err := url.Parse(site.BaseURL)
	if err != nil {
		base = &url.URL{}
	}
	return &htmlSource{
		name:  site.ID,
		base:  base,
		byURL: site.IdentityByURL(),
		chain: chain,
	}
}

func (s *htmlSource) Name() string {
	return s.name
}

func (s *htmlSource) IdentityByURL() bool {
	return s.byURL
}

func (s *htmlSource) NeedsDetail(raw models.RawListing) bool {
	if raw.DetailURL == "" {
		return false
	}
	return s.alwaysDetail || raw.PriceText == "" || raw.DescriptionText == ""
}

func (s *htmlSource) ListIndexPages(ctx context.Context, opts CrawlOptions) iter.Seq2[models.RawListing, error] {
	return func(yield func(models.RawListing, error) bool) {
		maxPages := max(opts.MaxPages, 1)
		seen := make(map[string]struct{})

		for page := 1; page <= maxPages; page++ {
			if err := ctx.Err(); err != nil {
				yield(models.RawListing{}, err)
				return
			}

			pageURL := s.indexURL(page)
			cards, base, err := s.indexPage(ctx, pageURL, s.chain.options(opts, page > 1))
			if err != nil {
				if !yield(models.RawListing{}, &PageError{Page: page, URL: pageURL, Err: err}) {
					return
				}
				continue
			}

			fresh := 0
			for i := range cards.Length() {
				raw := s.extractCard(cards.Eq(i), base)
				if raw.Title == "" {
					continue
				}
				if _, dup := seen[raw.Fingerprint]; dup {
					continue
				}
				seen[raw.Fingerprint] = struct{}{}
				fresh++
				if !yield(raw, nil) {
					return
				}
			}

			logging.Debugf("%s: page %d yielded %d new of %d cards", s.name, page, fresh, cards.Length())
			if fresh == 0 {
				return
			}
		}
	}
}

func (s *htmlSource) indexPage(ctx context.Context, pageURL string, opts transport.Options) (*goquery.Selection, *url.URL, error) {
	doc, err := s.chain.fetch(ctx, pageURL, opts)
	if err != nil {
		return nil, nil, err
	}

	gq, err := doc.Parse()
	if err != nil {
		return nil, nil, err
	}

	for _, m := range s.containers {
		if sel := m.Find(gq); sel != nil && sel.Length() > 0 {
			logging.Debugf("%s: %s matched %d containers on %s", s.name, m.Name, sel.Length(), pageURL)
			return sel, s.resolveBase(doc.URL), nil
		}
	}
	return nil, nil, ErrNoContainers
}

func (s *htmlSource) extractCard(card *goquery.Selection, base *url.URL) models.RawListing {
	raw := models.RawListing{SourceName: s.name}
	s.card(card, &raw)

	raw.Title = collapse(raw.Title)
	raw.PriceText = collapse(raw.PriceText)
	raw.DescriptionText = collapse(raw.DescriptionText)
	raw.Location = collapse(raw.Location)
	if raw.DetailURL == "" {
		raw.DetailURL = resolveDetailLink(card, raw.Title, s.detailLink, base)
	}
	raw.Fingerprint = identity.Fingerprint(&raw)
	return raw
}

func (s *htmlSource) FetchDetail(ctx context.Context, raw models.RawListing, opts CrawlOptions) (models.RawListing, error) {
	if raw.DetailURL == "" {
		return raw, ErrNoIdentity
	}

	doc, err := s.chain.fetch(ctx, raw.DetailURL, s.chain.options(opts, true))
	if err != nil {
		return raw, err
	}
	gq, err := doc.Parse()
	if err != nil {
		return raw, err
	}

	enriched := raw
	enriched.Highlights = append([]string(nil), raw.Highlights...)
	for _, m := range s.details {
		if m.Extract(gq, &enriched) {
			logging.Debugf("%s: detail matcher %s matched %s", s.name, m.Name, raw.DetailURL)
			enriched.DescriptionText = collapse(enriched.DescriptionText)
			enriched.FinancialText = collapse(enriched.FinancialText)
			enriched.Location = collapse(enriched.Location)
			return enriched, nil
		}
	}
	return raw, fmt.Errorf("%s: %w", raw.DetailURL, ErrNoDetail)
}

func (s *htmlSource) resolveBase(docURL string) *url.URL {
	if u, err := url.Parse(docURL); err == nil && u.IsAbs() {
		return u
	}
	return s.base
}

const headingSelector = "h1, h2, h3, h4"

// resolveDetailLink picks the card's link to its detail page. An anchor
// tied to the title (its text, or a heading around or inside it) wins;
// otherwise the first href matching the site pattern.
func resolveDetailLink(card *goquery.Selection, title string, pattern *regexp.Regexp, base *url.URL) string {
	anchors := card.Find("a[href]")
	if card.Is("a[href]") {
		anchors = card.AddSelection(anchors)
	}

	wantTitle := identity.NormalizeTitle(title)
	var preferred, fallback string

	anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		abs := absoluteLink(href, base)
		if abs == "" {
			return true
		}

		text := identity.NormalizeTitle(a.Text())
		nearTitle := (wantTitle != "" && text != "" && (text == wantTitle || strings.Contains(text, wantTitle))) ||
			a.Find(headingSelector).Length() > 0 ||
			a.Closest(headingSelector).Length() > 0
		if nearTitle {
			preferred = abs
			return false
		}
		if fallback == "" && pattern != nil && pattern.MatchString(abs) {
			fallback = abs
		}
		return true
	})

	if preferred != "" {
		return preferred
	}
	return fallback
}

func absoluteLink(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// firstText returns the trimmed text of the first selector in sels that
// matches something non-empty inside s.
func firstText(s *goquery.Selection, sels ...string) string {
	for _, sel := range sels {
		var found string
		s.Find(sel).EachWithBreak(func(_ int, m *goquery.Selection) bool {
			found = strings.TrimSpace(m.Text())
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// listItems collects up to n non-empty li texts under sel.
func listItems(s *goquery.Selection, sel string, n int) []string {
	var items []string
	s.Find(sel).EachWithBreak(func(_ int, li *goquery.Selection) bool {
		if t := collapse(li.Text()); t != "" {
			items = append(items, t)
		}
		return len(items) < n
	})
	return items
}

var spaceRe = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
