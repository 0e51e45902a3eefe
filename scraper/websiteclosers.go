package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bizscout/config"
	"bizscout/models"
)

// Website Closers shows little more than a title and price on the index,
// so every listing goes through its detail page.
var websiteClosersLink = regexp.MustCompile(`/businesses/[\w-]+/?$|/\d{5,}/?$`)

func newWebsiteClosers(site *config.SiteConfig, chain fetchChain) *htmlSource {
	s := newHTMLSource(site, chain)
	base := strings.TrimSuffix(site.BaseURL, "/")

	s.indexURL = func(page int) string {
		if page <= 1 {
			return base + "/businesses-for-sale/"
		}
		return fmt.Sprintf("%s/businesses-for-sale/page/%d/", base, page)
	}
	s.detailLink = websiteClosersLink
	s.alwaysDetail = true

	s.containers = []ContainerMatcher{
		{Name: "post items", Find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(".post_item")
		}},
		{Name: "listing articles", Find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("article.type-listing, article.listing")
		}},
		{Name: "business links", Find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("a[href*='/businesses/']").FilterFunction(func(_ int, a *goquery.Selection) bool {
				return strings.TrimSpace(a.Text()) != ""
			})
		}},
	}

	s.card = func(card *goquery.Selection, l *models.RawListing) {
		l.Title = firstText(card, ".post_title", "h3", "h2")
		if l.Title == "" && card.Is("a") {
			l.Title = card.Text()
		}
		l.PriceText = firstText(card, ".price", ".asking_price")
		l.Industry = firstText(card, ".cat", ".category")
	}

	s.details = []DetailMatcher{
		{Name: "financials box", Extract: func(doc *goquery.Document, l *models.RawListing) bool {
			box := doc.Find(".financials_box, .listing_financials").First()
			if box.Length() == 0 {
				return false
			}
			l.FinancialText = labeledPairs(box)
			setLonger(&l.DescriptionText, textOfParagraphs(doc.Find(".post_content, .entry-content").First()))
			setIfEmpty(&l.Industry, firstText(doc.Selection, ".listing_category", ".cat"))
			setIfEmpty(&l.Location, firstText(doc.Selection, ".listing_location", ".location"))
			if len(l.Highlights) == 0 {
				l.Highlights = listItems(doc.Selection, ".key_points li, .highlights li", models.MaxHighlights)
			}
			return true
		}},
		{Name: "post content", Extract: func(doc *goquery.Document, l *models.RawListing) bool {
			content := doc.Find(".post_content, .entry-content").First()
			if content.Length() == 0 {
				return false
			}
			setLonger(&l.DescriptionText, textOfParagraphs(content))
			return true
		}},
	}

	return s
}
