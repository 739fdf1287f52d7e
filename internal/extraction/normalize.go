// Package extraction turns raw filing documents into plain text and extracts
// financial facts from that text with a declarative pattern table.
package extraction

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NormalizeDocument converts a raw filing document body into extraction-ready
// plain text: script, style and noscript subtrees are dropped, all remaining
// markup is stripped, and whitespace runs collapse to single spaces.
//
// Normalization is deterministic: the same body always yields the same text,
// which keeps fact extraction reproducible across parse-job retries.
func NormalizeDocument(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse filing document: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	return CollapseWhitespace(doc.Text()), nil
}

// CollapseWhitespace reduces every run of whitespace (including newlines and
// tabs) to a single space and trims the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
