package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const imageContainerSelector = `div[class*='xans-element- xans-product xans-product-addimage swiper-wrapper'] img[class='ThumbImage']`

// ImageURLs collects the item's gallery image sources in document order.
// Protocol-relative sources gain an https scheme, absolute sources pass
// through, anything else is dropped as unrecognized.
func ImageURLs(doc *goquery.Document) []string {
	var urls []string
	doc.Find(imageContainerSelector).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok {
			return
		}
		if normalized, recognized := normalizeImageURL(src); recognized {
			urls = append(urls, normalized)
		}
	})
	return urls
}

func normalizeImageURL(src string) (string, bool) {
	switch {
	case strings.HasPrefix(src, "//"):
		return "https:" + src, true
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return src, true
	default:
		return "", false
	}
}
