package fetch

import (
	"bytes"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/use-agent/noctipede/models"
)

// minContentLength is the minimum TextContent length (in characters) for
// readability output to be considered valid, mirroring
// cleaner/readability.go's fallback threshold.
const minContentLength = 50

// extractTitle runs go-readability against rawHTML and falls back to a
// raw HTML title-tag scan when the article comes back too short, exactly
// the two-stage discipline cleaner/readability.go documents.
func extractTitle(rawHTML, sourceURL string) string {
	base, err := url.Parse(sourceURL)
	if err != nil {
		return scanTitleTag(rawHTML)
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), base)
	if err != nil {
		slog.Debug("readability extraction failed, falling back to title scan", "url", sourceURL, "error", err)
		return scanTitleTag(rawHTML)
	}
	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		return scanTitleTag(rawHTML)
	}
	return article.Title
}

// extractPlainText returns go-readability's extracted TextContent for
// rawHTML, or "" if extraction fails. Used to feed the Frontier's
// content-level near-duplicate SimHash.
func extractPlainText(rawHTML, sourceURL string) string {
	base, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), base)
	if err != nil {
		return ""
	}
	return article.TextContent
}

// scanTitleTag extracts the <title> content directly, the same
// tokenizer walk httpfetch.go's extractTitle uses.
func scanTitleTag(rawHTML string) string {
	tokenizer := html.NewTokenizer(bytes.NewReader([]byte(rawHTML)))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				if tokenizer.Next() == html.TextToken {
					return strings.TrimSpace(string(tokenizer.Text()))
				}
				return ""
			}
		}
	}
}

// extractLinksAndMedia walks rawHTML once, resolving relative URLs
// against finalURL, mirroring cleaner/extract.go's ExtractLinks /
// ExtractImages but merged into a single goquery pass.
func extractLinksAndMedia(rawHTML, finalURL string) ([]string, []models.MediaRef) {
	base, err := url.Parse(finalURL)
	if err != nil {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, nil
	}

	var links []string
	seenLinks := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			return
		}
		abs := resolved.String()
		if _, dup := seenLinks[abs]; dup {
			return
		}
		seenLinks[abs] = struct{}{}
		links = append(links, abs)
	})

	var media []models.MediaRef
	seenMedia := make(map[string]struct{})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return
		}
		resolved, err := base.Parse(src)
		if err != nil || resolved.Scheme == "data" {
			return
		}
		abs := resolved.String()
		if _, dup := seenMedia[abs]; dup {
			return
		}
		seenMedia[abs] = struct{}{}
		media = append(media, models.MediaRef{
			URL:        abs,
			Kind:       models.MediaImage,
			ParentPage: finalURL,
		})
	})

	return links, media
}
