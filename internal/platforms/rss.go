package platforms

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/mfreitag/socialosint/internal/apierr"
	"github.com/mfreitag/socialosint/internal/fetcher"
	"github.com/mfreitag/socialosint/internal/model"
)

// rssMinBodyLen is the body length below which an entry is considered a
// teaser worth enriching with the full article text.
const rssMinBodyLen = 200

// RSS treats a feed URL as the "username": blogs and personal sites are
// as much an OSINT source as social accounts. One fetch parses the feed
// once; there is no pagination. Teaser-only entries are optionally
// enriched by extracting the linked article's readable text.
type RSS struct {
	deps       *Deps
	parser     *gofeed.Parser
	enrich     bool
	maxEnrich  int
	enrichDone int
}

func NewRSS(deps *Deps) *RSS {
	parser := gofeed.NewParser()
	parser.Client = deps.HTTP
	parser.UserAgent = "socialosint"
	return &RSS{
		deps:      deps,
		parser:    parser,
		enrich:    deps.Cfg.Platforms.RSS.EnrichContent,
		maxEnrich: deps.Cfg.Platforms.RSS.MaxEnrich,
	}
}

func (r *RSS) Name() string     { return "rss" }
func (r *RSS) MaxPageSize() int { return 1000 }

func (r *RSS) parseFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	if _, err := url.ParseRequestURI(feedURL); err != nil || !strings.Contains(feedURL, "://") {
		return nil, apierr.Validation("invalid feed URL %q", feedURL)
	}
	feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		if strings.Contains(err.Error(), "404") {
			return nil, apierr.NotFound("feed %q not found", feedURL)
		}
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}
	return feed, nil
}

func (r *RSS) FetchProfile(ctx context.Context, feedURL string) (*model.Profile, error) {
	feed, err := r.parseFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	profile := &model.Profile{
		Platform:    "rss",
		ID:          feedURL,
		Username:    feedURL,
		DisplayName: feed.Title,
		Bio:         model.StripHTML(feed.Description),
		ProfileURL:  feed.Link,
		Metrics:     map[string]float64{"items": float64(len(feed.Items))},
	}
	if feed.UpdatedParsed != nil {
		updated := model.NewTime(*feed.UpdatedParsed)
		profile.CreatedAt = &updated
	}
	return profile, nil
}

func (r *RSS) FetchPage(ctx context.Context, pq fetcher.PageQuery) (*fetcher.Page, error) {
	feed, err := r.parseFeed(ctx, pq.Username)
	if err != nil {
		return nil, err
	}

	// Media and article fetches may only touch the feed's own host.
	trusted := hostsOf(pq.Username, feed.Link)

	page := &fetcher.Page{}
	for i, item := range feed.Items {
		if i >= pq.Limit {
			break
		}
		post, err := r.normalizeItem(ctx, item, pq.Username, trusted)
		if err != nil {
			return nil, err
		}
		page.Posts = append(page.Posts, post)
	}
	return page, nil
}

func (r *RSS) normalizeItem(ctx context.Context, item *gofeed.Item, feedURL string, trusted []string) (model.Post, error) {
	id := item.GUID
	if id == "" {
		id = item.Link
	}

	body := model.StripHTML(firstNonEmpty(item.Content, item.Description))
	if r.enrich && len(body) < rssMinBodyLen && item.Link != "" && r.enrichDone < r.maxEnrich {
		if full := r.extractArticle(item.Link, trusted); full != "" {
			body = full
			r.enrichDone++
		}
	}

	text := item.Title
	if body != "" {
		if text != "" {
			text += "\n"
		}
		text += body
	}

	var mediaItems []model.Media
	if item.Image != nil && item.Image.URL != "" {
		localPath, err := r.deps.Media.Download(item.Image.URL, "rss", trusted, "")
		if err != nil {
			return model.Post{}, err
		}
		mediaItems = append(mediaItems, model.Media{URL: item.Image.URL, LocalPath: localPath, Type: "image"})
	}
	for _, enc := range item.Enclosures {
		if !strings.HasPrefix(enc.Type, "image/") || enc.URL == "" {
			continue
		}
		localPath, err := r.deps.Media.Download(enc.URL, "rss", trusted, "")
		if err != nil {
			return model.Post{}, err
		}
		mediaItems = append(mediaItems, model.Media{URL: enc.URL, LocalPath: localPath, Type: "image"})
	}

	created := model.Time{}
	if item.PublishedParsed != nil {
		created = model.NewTime(*item.PublishedParsed)
	} else if item.UpdatedParsed != nil {
		created = model.NewTime(*item.UpdatedParsed)
	}

	author := ""
	if item.Author != nil {
		author = item.Author.Name
	}

	var links []string
	if item.Link != "" {
		links = append(links, item.Link)
	}

	return model.Post{
		Platform:       "rss",
		ID:             id,
		CreatedAt:      created,
		AuthorUsername: author,
		Text:           text,
		Media:          mediaItems,
		ExternalLinks:  model.MergeLinks(links, body),
		PostURL:        item.Link,
		Type:           "article",
		Context:        map[string]any{"feed": feedURL},
	}, nil
}

// extractArticle pulls the readable text of a linked article. The link
// must be on the feed's own host; feeds routinely link offsite and those
// pages are not fetched.
func (r *RSS) extractArticle(link string, trusted []string) string {
	u, err := url.Parse(link)
	if err != nil || !hostTrusted(u.Hostname(), trusted) {
		return ""
	}

	article, err := readability.FromURL(link, 15*time.Second)
	if err != nil {
		log.Printf("Readability extraction failed for %s: %v", link, err)
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}

func hostsOf(urls ...string) []string {
	var hosts []string
	for _, raw := range urls {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			hosts = append(hosts, u.Hostname())
		}
	}
	return hosts
}

func hostTrusted(host string, trusted []string) bool {
	for _, t := range trusted {
		if strings.EqualFold(host, t) {
			return true
		}
	}
	return false
}
