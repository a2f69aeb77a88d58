package platforms

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mfreitag/socialosint/internal/apierr"
	"github.com/mfreitag/socialosint/internal/fetcher"
)

func newRSSServer(t *testing.T) (string, *RSS) {
	t.Helper()
	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		longBody := strings.Repeat("A full writeup of the incident response process. ", 6)
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Example Blog</title>
<link>%s/blog</link>
<description>Security notes</description>
<item>
  <title>Post One</title>
  <link>%s/blog/one</link>
  <guid>post-one</guid>
  <pubDate>Mon, 06 May 2024 10:00:00 GMT</pubDate>
  <description>%s</description>
  <enclosure url="%s/img.jpg" type="image/jpeg" length="4"/>
</item>
<item>
  <title>Post Two</title>
  <link>https://offsite.example/two</link>
  <guid>post-two</guid>
  <pubDate>Sun, 05 May 2024 10:00:00 GMT</pubDate>
  <description>Short teaser</description>
</item>
</channel></rss>`, base, base, longBody, base)
	})
	mux.HandleFunc("/img.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	base = srv.URL

	return srv.URL + "/feed.xml", NewRSS(testDeps(t))
}

func TestRSSProfileFromFeedMetadata(t *testing.T) {
	feedURL, rss := newRSSServer(t)

	profile, err := rss.FetchProfile(context.Background(), feedURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.ID != feedURL || profile.Username != feedURL {
		t.Errorf("feed URL is the identity: %+v", profile)
	}
	if profile.DisplayName != "Example Blog" || profile.Bio != "Security notes" {
		t.Errorf("feed metadata not mapped: %+v", profile)
	}
	if profile.Metrics["items"] != 2 {
		t.Errorf("item count metric missing: %v", profile.Metrics)
	}
}

func TestRSSInvalidFeedURL(t *testing.T) {
	_, rss := newRSSServer(t)

	_, err := rss.FetchProfile(context.Background(), "not a url")
	if !apierr.IsKind(err, apierr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRSSItems(t *testing.T) {
	feedURL, rss := newRSSServer(t)

	page, err := rss.FetchPage(context.Background(), fetcher.PageQuery{Username: feedURL, Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Posts) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Posts))
	}
	if page.NextCursor != "" {
		t.Errorf("feeds have a single page, got cursor %q", page.NextCursor)
	}

	one := page.Posts[0]
	if one.ID != "post-one" || one.Type != "article" {
		t.Errorf("bad item: %+v", one)
	}
	if !strings.HasPrefix(one.Text, "Post One\n") {
		t.Errorf("title not prepended: %q", one.Text)
	}
	if one.Context["feed"] != feedURL {
		t.Errorf("feed context missing: %v", one.Context)
	}
	// The enclosure is hosted on the feed's own domain, so the download is
	// trusted and lands in the media cache.
	if len(one.Media) != 1 || one.Media[0].LocalPath == "" {
		t.Errorf("enclosure not downloaded: %+v", one.Media)
	}
	if !strings.HasSuffix(one.Media[0].LocalPath, ".jpg") {
		t.Errorf("extension not derived from content type: %q", one.Media[0].LocalPath)
	}

	// The second item is a teaser, but its article link is offsite: the
	// enrichment gate must leave it alone without fetching anything.
	two := page.Posts[1]
	if two.Text != "Post Two\nShort teaser" {
		t.Errorf("offsite teaser should stay unenriched: %q", two.Text)
	}
	if len(two.ExternalLinks) == 0 || two.ExternalLinks[0] != "https://offsite.example/two" {
		t.Errorf("item link missing from external links: %v", two.ExternalLinks)
	}
}

func TestRSSLimitBoundsItems(t *testing.T) {
	feedURL, rss := newRSSServer(t)

	page, err := rss.FetchPage(context.Background(), fetcher.PageQuery{Username: feedURL, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Posts) != 1 {
		t.Errorf("limit not applied, got %d items", len(page.Posts))
	}
}
