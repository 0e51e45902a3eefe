// Package financial pulls asking price, revenue and profit figures out of
// the free text found on business-for-sale listings.
package financial

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"bizscout/models"
)

type Role string

const (
	RoleRevenue Role = "revenue"
	RoleSDE     Role = "sde"
	RoleMRR     Role = "mrr"
	RoleProfit  Role = "profit"
	RolePrice   Role = "price"
	RoleGeneric Role = "generic"
)

// revenueLike roles all feed the revenue figure; profitLike also feed the
// optional profit figure.
func (r Role) revenueLike() bool {
	return r == RoleRevenue || r == RoleSDE || r == RoleMRR || r == RoleProfit
}

func (r Role) profitLike() bool {
	return r == RoleSDE || r == RoleProfit
}

const (
	amount  = `\$\s?(\d[\d,]*(?:\.\d+)?)\s*(million|thousand|mm|m|k)?\b`
	sep     = `\s*(?:\((?:ttm|annual|yearly)\))?\s*[:\-]?\s*`
	revWord = `(?:revenues?|sales)`
	sdeWord = `(?:sde|seller'?s?\s+discretionary\s+earnings|cash\s+flow)`
	prfWord = `(?:net\s+profit|profit|net\s+income|ebitda|earnings)`
)

type pattern struct {
	role Role
	re   *regexp.Regexp
	// suffix patterns put the label after the amount ("$2m revenue").
	suffix bool
}

func mustPattern(role Role, expr string) pattern {
	return pattern{role: role, re: regexp.MustCompile(expr), suffix: strings.HasPrefix(expr, amount)}
}

// span is the byte range of an amount within the lower-cased text.
type span struct{ start, end int }

func (a span) overlaps(b span) bool {
	return a.start < b.end && b.start < a.end
}

// find returns the amount token of the first acceptable match and where it
// sits. A suffix match is skipped when its label is followed by a colon and
// another amount, since the label then heads that amount instead
// ("$1.2m cash flow: $300k"). Matches whose amount overlaps claimed are
// skipped too.
func (p pattern) find(text string, claimed ...span) (string, span, bool) {
next:
	for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
		if p.suffix && labelHeadRe.MatchString(text[loc[1]:]) {
			continue
		}
		at := span{loc[2], loc[3]}
		token := text[loc[2]:loc[3]]
		if loc[4] >= 0 {
			at.end = loc[5]
			token += text[loc[4]:loc[5]]
		}
		for _, c := range claimed {
			if at.overlaps(c) {
				continue next
			}
		}
		return token, at, true
	}
	return "", span{}, false
}

// patterns are tried in order; within the revenue-like group the first
// match wins.
var patterns = []pattern{
	mustPattern(RoleRevenue, amount+`\s*(?:in\s+)?(?:annual\s+|gross\s+|yearly\s+|ttm\s+|total\s+)?`+revWord+`\b`),
	mustPattern(RoleRevenue, `(?:gross\s+|annual\s+|total\s+|yearly\s+)?`+revWord+sep+amount),
	mustPattern(RoleSDE, amount+`\s*(?:in\s+)?(?:annual\s+|ttm\s+)?`+sdeWord+`\b`),
	mustPattern(RoleSDE, sdeWord+sep+amount),
	mustPattern(RoleMRR, amount+`\s*(?:/\s*mo(?:nth)?\s+)?mrr\b`),
	mustPattern(RoleMRR, `mrr`+sep+amount),
	mustPattern(RoleProfit, amount+`\s*(?:in\s+)?(?:annual\s+|ttm\s+)?`+prfWord+`\b`),
	mustPattern(RoleProfit, prfWord+sep+amount),
	mustPattern(RolePrice, `(?:asking\s+price|asking|list\s+price|price|listed\s+(?:at|for))`+sep+amount),
	mustPattern(RolePrice, amount+`\s*(?:asking(?:\s+price)?|list\s+price)\b`),
}

var (
	genericPattern = mustPattern(RoleGeneric, `\$\s?(\d[\d,]*(?:\.\d+)?)\s*(million|thousand|mm|m|k)\b`)
	labelHeadRe    = regexp.MustCompile(`^\s*(?:\((?:ttm|annual|yearly)\))?\s*[:\-]\s*\$`)
	numberRe       = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*(?:(million|thousand|mm|m|k)\b)?`)
)

// Extraction holds the raw amount tokens found in one text, e.g. "17.4m".
type Extraction struct {
	PriceText   string
	RevenueText string
	RevenueRole Role
	ProfitText  string
}

// Figures are parsed, clamped amounts in whole currency units.
type Figures struct {
	AskingPrice   int64
	AnnualRevenue int64
	AnnualProfit  int64
}

func (f Figures) String() string {
	return fmt.Sprintf("price=%d revenue=%d profit=%d", f.AskingPrice, f.AnnualRevenue, f.AnnualProfit)
}

// Extract applies the role patterns to text. It never fails; a text with no
// recognisable figures yields an empty Extraction.
func Extract(text string) Extraction {
	var ex Extraction
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "$") {
		return ex
	}

	// The asking price is settled first so a revenue label after it
	// ("asking $500k revenue $1.2m") cannot reuse the price amount.
	var claimed []span
	for _, p := range patterns {
		if p.role != RolePrice {
			continue
		}
		if token, at, ok := p.find(lower); ok {
			ex.PriceText = token
			claimed = append(claimed, at)
			break
		}
	}

	for _, p := range patterns {
		if !p.role.revenueLike() {
			continue
		}
		token, _, ok := p.find(lower, claimed...)
		if !ok {
			continue
		}
		if ex.RevenueText == "" {
			ex.RevenueText = token
			ex.RevenueRole = p.role
		}
		if p.role.profitLike() && ex.ProfitText == "" {
			ex.ProfitText = token
		}
	}

	if ex.RevenueText == "" && ex.PriceText == "" {
		if token, _, ok := genericPattern.find(lower); ok {
			ex.RevenueText = token
			ex.RevenueRole = RoleGeneric
		}
	}

	return ex
}

// Parse extracts figures from each text in turn; for every field the first
// non-zero value wins.
func Parse(texts ...string) Figures {
	var f Figures
	for _, text := range texts {
		if text == "" {
			continue
		}
		ex := Extract(text)
		if f.AskingPrice == 0 {
			f.AskingPrice = ParseAmount(ex.PriceText)
		}
		if f.AnnualRevenue == 0 {
			f.AnnualRevenue = ParseAmount(ex.RevenueText)
		}
		if f.AnnualProfit == 0 {
			f.AnnualProfit = ParseAmount(ex.ProfitText)
		}
	}
	return f
}

// ParseAmount reads the first number in text with an optional k/m unit.
// Unparsable input gives 0; overflow caps at models.MaxSafeInteger.
func ParseAmount(text string) int64 {
	m := numberRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) && v > 0 {
			return models.MaxSafeInteger
		}
		return 0
	}

	return Clamp(v * multiplier(m[2]))
}

func multiplier(unit string) float64 {
	switch unit {
	case "m", "mm", "million":
		return 1_000_000
	case "k", "thousand":
		return 1_000
	default:
		return 1
	}
}

// Clamp rounds v into [0, models.MaxSafeInteger].
func Clamp(v float64) int64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= float64(models.MaxSafeInteger) {
		return models.MaxSafeInteger
	}
	return int64(math.Round(v))
}
