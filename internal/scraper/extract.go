package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricetracker/internal/model"
)

// Promotional copy that looks like a price but is not one. A selector hit
// whose text matches any of these is skipped, not parsed.
var promoTextRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)£?\s*\d+[\d,.]*\s*off`),
	regexp.MustCompile(`(?i)save\s*£?\s*\d+`),
	regexp.MustCompile(`(?i)£?\s*\d+[\d,.]*\s*discount`),
	regexp.MustCompile(`(?i)up to\s*£?\s*\d+`),
	regexp.MustCompile(`(?i)from\s*£?\s*\d+`),
	regexp.MustCompile(`(?i)orders? over`),
}

func looksPromotional(text string) bool {
	for _, re := range promoTextRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Challenge markers that mean the page is an anti-bot wall, not a product.
var blockMarkers = []string{
	"captcha",
	"are you a robot",
	"access denied",
	"unusual traffic",
	"cf-challenge",
}

func looksBlocked(body string) bool {
	lower := strings.ToLower(body)
	for _, m := range blockMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// extractFromDocument applies the target's selector config to a parsed page.
// Price selectors are tried in order; the first hit that parses cleanly and
// does not read like promotional copy wins.
func extractFromDocument(doc *goquery.Document, sel model.SelectorConfig) (pence int64, currency string, inStock bool, err error) {
	found := false
	for _, s := range sel.Price {
		doc.Find(s).EachWithBreak(func(_ int, n *goquery.Selection) bool {
			text := strings.TrimSpace(n.Text())
			if text == "" || looksPromotional(text) {
				return true
			}
			p, c, perr := model.ParsePrice(text)
			if perr != nil {
				return true
			}
			pence, currency, found = p, c, true
			return false
		})
		if found {
			break
		}
	}
	if !found {
		return 0, "", false, fmt.Errorf("no price matched selectors %v", sel.Price)
	}

	inStock = true
	if sel.Availability != "" {
		avail := strings.ToLower(strings.TrimSpace(doc.Find(sel.Availability).First().Text()))
		if avail == "" {
			// Availability node missing usually means the buy box is gone.
			inStock = false
		}
		for _, marker := range sel.OutOfStockMarkers {
			if strings.Contains(avail, strings.ToLower(marker)) {
				inStock = false
				break
			}
		}
	}

	return pence, currency, inStock, nil
}
