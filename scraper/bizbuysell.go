package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bizscout/config"
	"bizscout/models"
)

// BizBuySell renders its results client side, so the render service is the
// primary strategy. Listing links look like
// /business-for-sale/<slug>/<numeric id>/.
var bizBuySellLink = regexp.MustCompile(`/business-for-sale/[^?#]*?\d{5,}/?$`)

func newBizBuySell(site *config.SiteConfig, chain fetchChain) *htmlSource {
	s := newHTMLSource(site, chain)
	base := strings.TrimSuffix(site.BaseURL, "/")

	s.indexURL = func(page int) string {
		if page <= 1 {
			return base + "/businesses-for-sale/"
		}
		return fmt.Sprintf("%s/businesses-for-sale/%d/", base, page)
	}
	s.detailLink = bizBuySellLink

	s.containers = []ContainerMatcher{
		{Name: "listing components", Find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("app-listing-showcase, app-listing-diamond, app-listing-basic")
		}},
		{Name: "result cards", Find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("div.listing, div.result-card, div[data-listing-id]")
		}},
		{Name: "listing links", Find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("a[href*='/business-for-sale/']").FilterFunction(func(_ int, a *goquery.Selection) bool {
				href, _ := a.Attr("href")
				return bizBuySellLink.MatchString(href) && strings.TrimSpace(a.Text()) != ""
			})
		}},
	}

	s.card = func(card *goquery.Selection, l *models.RawListing) {
		l.Title = firstText(card, "h3.title", ".title", "h2", "h3")
		if l.Title == "" && card.Is("a") {
			l.Title = card.Text()
		}
		l.PriceText = firstText(card, ".asking-price", ".price")
		l.DescriptionText = firstText(card, ".description", "p.desc")
		l.Location = firstText(card, ".location", ".address")

		var fin []string
		if l.PriceText != "" {
			fin = append(fin, "Asking Price: "+strings.TrimSpace(l.PriceText))
		}
		if cf := firstText(card, ".cash-flow", ".cashflow"); cf != "" {
			fin = append(fin, "Cash Flow: "+cf)
		}
		l.FinancialText = strings.Join(fin, " | ")
		l.Highlights = listItems(card, "ul.highlights li", models.MaxHighlights)
	}

	s.details = []DetailMatcher{
		{Name: "financials panel", Extract: func(doc *goquery.Document, l *models.RawListing) bool {
			panel := doc.Find(".financials, .financial-details, #financials").First()
			if panel.Length() == 0 {
				return false
			}
			l.FinancialText = labeledPairs(panel)
			setLonger(&l.DescriptionText, firstText(doc.Selection, ".businessDescription", ".business-description", "#listingDescription"))
			setIfEmpty(&l.Location, firstText(doc.Selection, ".location", "h2.gray"))
			setIfEmpty(&l.Industry, lastCrumb(doc))
			if len(l.Highlights) == 0 {
				l.Highlights = listItems(doc.Selection, ".highlights li, .listingProfile_details li", models.MaxHighlights)
			}
			return true
		}},
		{Name: "detail table", Extract: func(doc *goquery.Document, l *models.RawListing) bool {
			table := doc.Find("dl.listing-details, table.listing-details").First()
			if table.Length() == 0 {
				return false
			}
			l.FinancialText = labeledPairs(table)
			setLonger(&l.DescriptionText, firstText(doc.Selection, "article p", "main p"))
			return true
		}},
	}

	return s
}

// labeledPairs flattens "Label: value" rows of a financial block into one
// line the financial parser can read.
func labeledPairs(sel *goquery.Selection) string {
	var parts []string
	sel.Find("p, li, tr, dt, dd").Each(func(_ int, row *goquery.Selection) {
		if row.Is("dt") {
			label := collapse(row.Text())
			value := collapse(row.Next().Filter("dd").Text())
			if label != "" && value != "" {
				parts = append(parts, strings.TrimSuffix(label, ":")+": "+value)
			}
			return
		}
		if row.Is("dd") || row.Find("p, li, tr").Length() > 0 {
			return
		}
		if t := collapse(row.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return collapse(sel.Text())
	}
	return strings.Join(parts, " | ")
}

func lastCrumb(doc *goquery.Document) string {
	crumbs := doc.Find(".breadcrumb li, nav.breadcrumbs a")
	if crumbs.Length() < 2 {
		return ""
	}
	return collapse(crumbs.Eq(crumbs.Length() - 2).Text())
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = collapse(v)
	}
}

func setLonger(dst *string, v string) {
	v = collapse(v)
	if len([]rune(v)) > len([]rune(*dst)) {
		*dst = v
	}
}
