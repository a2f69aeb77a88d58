package platforms

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/mfreitag/socialosint/internal/fetcher"
	"github.com/mfreitag/socialosint/internal/model"
)

// Bluesky fetches through the public AppView XRPC endpoints, which need
// no authentication for public profiles and feeds.
type Bluesky struct {
	deps       *Deps
	appviewURL string
}

func NewBluesky(deps *Deps) *Bluesky {
	return &Bluesky{deps: deps, appviewURL: deps.Cfg.Platforms.Bluesky.AppViewURL}
}

func (b *Bluesky) Name() string     { return "bluesky" }
func (b *Bluesky) MaxPageSize() int { return 100 }

func (b *Bluesky) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	q := url.Values{"actor": {username}}
	var resp struct {
		DID            string     `json:"did"`
		Handle         string     `json:"handle"`
		DisplayName    string     `json:"displayName"`
		Description    string     `json:"description"`
		FollowersCount float64    `json:"followersCount"`
		FollowsCount   float64    `json:"followsCount"`
		PostsCount     float64    `json:"postsCount"`
		CreatedAt      model.Time `json:"createdAt"`
	}
	u := buildURL(b.appviewURL, "/xrpc/app.bsky.actor.getProfile", q)
	if err := b.deps.getJSON(ctx, u, nil, "bluesky", username, &resp); err != nil {
		return nil, err
	}

	created := resp.CreatedAt
	return &model.Profile{
		Platform:    "bluesky",
		ID:          resp.DID,
		Username:    resp.Handle,
		DisplayName: resp.DisplayName,
		Bio:         resp.Description,
		CreatedAt:   &created,
		ProfileURL:  "https://bsky.app/profile/" + resp.Handle,
		Metrics: map[string]float64{
			"followers": resp.FollowersCount,
			"following": resp.FollowsCount,
			"posts":     resp.PostsCount,
		},
	}, nil
}

type blueskyFeedItem struct {
	Post struct {
		URI    string `json:"uri"`
		Author struct {
			Handle string `json:"handle"`
		} `json:"author"`
		Record struct {
			Text      string     `json:"text"`
			CreatedAt model.Time `json:"createdAt"`
		} `json:"record"`
		Embed struct {
			Images []struct {
				Fullsize string `json:"fullsize"`
				Alt      string `json:"alt"`
			} `json:"images"`
			Media struct {
				Images []struct {
					Fullsize string `json:"fullsize"`
					Alt      string `json:"alt"`
				} `json:"images"`
			} `json:"media"`
		} `json:"embed"`
		LikeCount   float64 `json:"likeCount"`
		RepostCount float64 `json:"repostCount"`
		ReplyCount  float64 `json:"replyCount"`
	} `json:"post"`
	Reason struct {
		Type string `json:"$type"`
	} `json:"reason"`
}

func (b *Bluesky) FetchPage(ctx context.Context, pq fetcher.PageQuery) (*fetcher.Page, error) {
	q := url.Values{
		"actor": {pq.Username},
		"limit": {strconv.Itoa(pq.Limit)},
	}
	if pq.Cursor != "" {
		q.Set("cursor", pq.Cursor)
	}

	var resp struct {
		Feed   []blueskyFeedItem `json:"feed"`
		Cursor string            `json:"cursor"`
	}
	u := buildURL(b.appviewURL, "/xrpc/app.bsky.feed.getAuthorFeed", q)
	if err := b.deps.getJSON(ctx, u, nil, "bluesky", pq.Username, &resp); err != nil {
		return nil, err
	}

	page := &fetcher.Page{NextCursor: resp.Cursor}
	for _, item := range resp.Feed {
		post, err := b.normalizeFeedItem(item)
		if err != nil {
			return nil, err
		}
		page.Posts = append(page.Posts, post)
	}
	return page, nil
}

func (b *Bluesky) normalizeFeedItem(item blueskyFeedItem) (model.Post, error) {
	p := item.Post

	// The AppView serves full-size image URLs on the first-party CDN,
	// both for direct image embeds and for media-with-record embeds.
	images := p.Embed.Images
	images = append(images, p.Embed.Media.Images...)

	var mediaItems []model.Media
	for _, img := range images {
		if img.Fullsize == "" {
			continue
		}
		localPath, err := b.deps.Media.Download(img.Fullsize, "bluesky", nil, "")
		if err != nil {
			return model.Post{}, err
		}
		mediaItems = append(mediaItems, model.Media{URL: img.Fullsize, LocalPath: localPath, Type: "image"})
	}

	postType := "post"
	if item.Reason.Type == "app.bsky.feed.defs#reasonRepost" {
		postType = "repost"
	}

	return model.Post{
		Platform:       "bluesky",
		ID:             p.URI,
		CreatedAt:      p.Record.CreatedAt,
		AuthorUsername: p.Author.Handle,
		Text:           p.Record.Text,
		Media:          mediaItems,
		ExternalLinks:  model.ExtractLinks(p.Record.Text),
		PostURL:        blueskyPostURL(p.Author.Handle, p.URI),
		Metrics: map[string]float64{
			"likes":   p.LikeCount,
			"reposts": p.RepostCount,
			"replies": p.ReplyCount,
		},
		Type: postType,
	}, nil
}

// blueskyPostURL converts an at:// URI into the public web URL.
func blueskyPostURL(handle, uri string) string {
	// at://did:plc:xyz/app.bsky.feed.post/3k44dke2bl52x
	const marker = "/app.bsky.feed.post/"
	if i := strings.LastIndex(uri, marker); i >= 0 {
		return "https://bsky.app/profile/" + handle + "/post/" + uri[i+len(marker):]
	}
	return "https://bsky.app/profile/" + handle
}
