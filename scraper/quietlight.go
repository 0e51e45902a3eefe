package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bizscout/config"
	"bizscout/models"
)

// Quiet Light puts the numbers in the title ("$17.4M Revenue | $2.56M SDE")
// and paginates with WordPress style page/{n}/ paths.
var quietLightLink = regexp.MustCompile(`/listings/[\w-]+/?$`)

func newQuietLight(site *config.SiteConfig, chain fetchChain) *htmlSource {
	s := newHTMLSource(site, chain)
	base := strings.TrimSuffix(site.BaseURL, "/")

	s.indexURL = func(page int) string {
		if page <= 1 {
			return base + "/listings/"
		}
		return fmt.Sprintf("%s/listings/page/%d/", base, page)
	}
	s.detailLink = quietLightLink

	s.containers = []ContainerMatcher{
		{Name: "listing cards", Find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(".listing-card")
		}},
		{Name: "listing articles", Find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("article.listing, article.type-listings")
		}},
		{Name: "heading links", Find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("h2 a[href*='/listings/'], h3 a[href*='/listings/']").ParentsFiltered("article, li, div")
		}},
	}

	s.card = func(card *goquery.Selection, l *models.RawListing) {
		l.Title = firstText(card, ".listing-card__title", ".entry-title", "h2", "h3")
		l.PriceText = firstText(card, ".listing-card__price", ".asking-price")
		l.DescriptionText = firstText(card, ".listing-card__excerpt", ".entry-summary", "p")
		l.Industry = firstText(card, ".listing-card__category", ".category")
		l.FinancialText = firstText(card, ".listing-card__financials", ".financials")
	}

	s.details = []DetailMatcher{
		{Name: "listing content", Extract: func(doc *goquery.Document, l *models.RawListing) bool {
			content := doc.Find(".listing-content, .single-listing__content").First()
			if content.Length() == 0 {
				return false
			}
			setLonger(&l.DescriptionText, textOfParagraphs(content))
			if fin := doc.Find(".listing-financials, .listing-stats").First(); fin.Length() > 0 {
				l.FinancialText = labeledPairs(fin)
			}
			setIfEmpty(&l.Industry, firstText(doc.Selection, ".listing-category", ".category"))
			if len(l.Highlights) == 0 {
				l.Highlights = listItems(content, "ul li", models.MaxHighlights)
			}
			return true
		}},
		{Name: "entry content", Extract: func(doc *goquery.Document, l *models.RawListing) bool {
			content := doc.Find(".entry-content, article").First()
			if content.Length() == 0 {
				return false
			}
			setLonger(&l.DescriptionText, textOfParagraphs(content))
			return true
		}},
	}

	return s
}

func textOfParagraphs(sel *goquery.Selection) string {
	var parts []string
	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := collapse(p.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}
