// Package extract parses fetched item pages into structured catalog
// records. Everything here is pure: no I/O, no logging, selectors and
// patterns matching the storefront markup in one place.
package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
)

const identitySeparator = " - "

var (
	materialPattern   = regexp.MustCompile(`-Material\s*:\s*(.+?)(?:\n|$)`)
	sizeHeaderPattern = regexp.MustCompile(`SIZE\s*\n?`)
	descHeaderPattern = regexp.MustCompile(`DESCRIPTION\s*\n?`)
	noticePattern     = regexp.MustCompile(`(?s)※Notice.*`)
	lineBreakPattern  = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	newlinePattern    = regexp.MustCompile(`\n+`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

// sizePatterns are applied in this order; the flattened size value keeps it.
var sizePatterns = []struct {
	label   string
	pattern *regexp.Regexp
}{
	{"Lens Width", regexp.MustCompile(`Lens Width\s*:\s*(.+?)(?:\n|$)`)},
	{"Lens Height", regexp.MustCompile(`Lens Height\s*:\s*(.+?)(?:\n|$)`)},
	{"Bridge Width", regexp.MustCompile(`Bridge [Ww]idth\s*:\s*(.+?)(?:\n|$)`)},
	{"Frame Width", regexp.MustCompile(`Frame [Ww]idth\s*:\s*(.+?)(?:\n|$)`)},
	{"Temple Length", regexp.MustCompile(`Temple Length\s*:\s*(.+?)(?:\n|$)`)},
}

// Product extracts one locale's observation from an item page. The second
// return is false when the page carries no identity-bearing display name;
// callers treat that as a skip, not an error.
func Product(doc *goquery.Document, locale catalog.Locale) (catalog.Extraction, bool) {
	displayName, colorVariant, ok := identity(doc)
	if !ok {
		return catalog.Extraction{}, false
	}

	record := catalog.Extraction{
		DisplayName:  displayName,
		ColorVariant: colorVariant,
		Price:        doc.Find("strong#span_product_price_text").First().Text(),
		RewardPoints: doc.Find("span#span_mileage_text").First().Text(),
		SoldOut:      soldOut(doc),
	}
	record.Description, record.Material, record.Size = description(doc, locale)
	return record, true
}

// identity reads the keywords meta tag: the first comma-separated token
// splits on the first " - " into display name and color variant.
func identity(doc *goquery.Document) (string, string, bool) {
	content, ok := doc.Find(`meta[name='keywords']`).Attr("content")
	if !ok {
		return "", "", false
	}
	first := content
	if idx := strings.Index(first, ","); idx >= 0 {
		first = first[:idx]
	}
	first = strings.TrimSpace(first)
	if first == "" {
		return "", "", false
	}
	displayName, colorVariant, found := strings.Cut(first, identitySeparator)
	if !found {
		return first, "", true
	}
	return strings.TrimSpace(displayName), strings.TrimSpace(colorVariant), true
}

// description locates the DESCRIPTION block and peels material and size
// sub-fields out of it, returning the cleaned remainder plus both fields.
func description(doc *goquery.Document, locale catalog.Locale) (desc, material, size string) {
	block := doc.Find("p").FilterFunction(func(_ int, s *goquery.Selection) bool {
		anchored := false
		s.ChildrenFiltered("b").Each(func(_ int, b *goquery.Selection) {
			if strings.Contains(b.Text(), "DESCRIPTION") {
				anchored = true
			}
		})
		return anchored
	}).First()
	if block.Length() == 0 {
		return "", "", ""
	}
	blockHTML, err := block.Html()
	if err != nil {
		return "", "", ""
	}

	text := lineBreakPattern.ReplaceAllString(blockHTML, "\n")
	text = tagPattern.ReplaceAllString(text, "")

	if m := materialPattern.FindStringSubmatch(text); m != nil {
		material = cleanText(m[1])
		text = strings.ReplaceAll(text, m[0], "")
	}

	var sizeParts []string
	for _, sp := range sizePatterns {
		m := sp.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if value := cleanText(m[1]); value != "" {
			sizeParts = append(sizeParts, sp.label+": "+value)
		}
		text = strings.ReplaceAll(text, m[0], "")
	}
	size = strings.Join(sizeParts, ", ")

	text = sizeHeaderPattern.ReplaceAllString(text, "")
	if locale == catalog.LocaleGlobal {
		if loc := noticePattern.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
		}
	}
	text = descHeaderPattern.ReplaceAllString(text, "")
	text = newlinePattern.ReplaceAllString(text, " ")
	return cleanText(text), material, size
}

// soldOut inspects the hidden sold-out control. The storefront keeps the
// marker in the markup (visually hidden) while an item is purchasable and
// removes it once the item sells out, so presence means available.
func soldOut(doc *goquery.Document) bool {
	available := false
	doc.Find(`span[class*='button_left displaynone']`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if normalizeSpace(s.Text()) == "sold out" {
			available = true
			return false
		}
		return true
	})
	return !available
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText decodes HTML entities and collapses whitespace.
func cleanText(text string) string {
	if text == "" {
		return ""
	}
	cleaned := html.UnescapeString(text)
	cleaned = spacePattern.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
