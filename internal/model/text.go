package model

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var urlRegex = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'` + "`" + `]+`)

// ExtractLinks pulls URLs out of free text, deduplicating while preserving
// first-seen order. Trailing sentence punctuation is trimmed so that
// "see https://example.com." yields a clean URL.
func ExtractLinks(text string) []string {
	if text == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var links []string
	for _, match := range urlRegex.FindAllString(text, -1) {
		link := strings.TrimRight(match, ".,;:!?)]}")
		if link == "" {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	return links
}

// MergeLinks combines structured link fields with links extracted from text,
// deduplicating while preserving order.
func MergeLinks(structured []string, text string) []string {
	seen := make(map[string]struct{})
	var links []string
	add := func(link string) {
		if link == "" {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	for _, l := range structured {
		add(l)
	}
	for _, l := range ExtractLinks(text) {
		add(l)
	}
	return links
}

// StripHTML flattens an HTML fragment to plain text with single-space
// separators and normalized whitespace. Mastodon statuses and HackerNews
// item bodies arrive as HTML and go through this before normalization.
func StripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	if !strings.ContainsRune(fragment, '<') {
		return normalizeSpace(fragment)
	}
	// A space before every tag keeps adjacent elements from fusing
	// ("<p>a</p><p>b</p>" -> "a b", not "ab") once tags are dropped.
	spaced := strings.ReplaceAll(fragment, "<", " <")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(spaced))
	if err != nil {
		return normalizeSpace(fragment)
	}
	return normalizeSpace(doc.Text())
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SanitizeUsername strips Unicode control and format characters (zero-width
// spaces, bidi overrides, and the like) that could be used to smuggle a
// visually identical but distinct target name.
func SanitizeUsername(username string) string {
	return strings.Map(func(r rune) rune {
		if unicode.In(r, unicode.C) {
			return -1
		}
		return r
	}, username)
}
