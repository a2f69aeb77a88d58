package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mfreitag/socialosint/internal/fetcher"
	"github.com/mfreitag/socialosint/internal/model"
)

// Reddit fetches via the public .json endpoints, no OAuth involved.
// Submissions and comments are two separate listings, so the pagination
// cursor is a composite of both streams' "after" tokens.
type Reddit struct {
	deps      *Deps
	baseURL   string
	userAgent string
}

func NewReddit(deps *Deps) *Reddit {
	return &Reddit{
		deps:      deps,
		baseURL:   deps.Cfg.Platforms.Reddit.BaseURL,
		userAgent: deps.Cfg.Platforms.Reddit.UserAgent,
	}
}

func (r *Reddit) Name() string     { return "reddit" }
func (r *Reddit) MaxPageSize() int { return 100 }

func (r *Reddit) header() http.Header {
	// Reddit throttles the default Go user agent aggressively.
	return http.Header{"User-Agent": {r.userAgent}}
}

// redditCursor tracks both listing streams. A stream is finished when its
// after token comes back empty.
type redditCursor struct {
	SubmittedAfter string `json:"submitted_after,omitempty"`
	CommentsAfter  string `json:"comments_after,omitempty"`
	SubmittedDone  bool   `json:"submitted_done,omitempty"`
	CommentsDone   bool   `json:"comments_done,omitempty"`
}

func (c redditCursor) encode() string {
	if c.SubmittedDone && c.CommentsDone {
		return ""
	}
	data, _ := json.Marshal(c)
	return string(data)
}

func decodeRedditCursor(s string) redditCursor {
	var c redditCursor
	if s != "" {
		json.Unmarshal([]byte(s), &c)
	}
	return c
}

func (r *Reddit) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	var resp struct {
		Data struct {
			ID           string  `json:"id"`
			Name         string  `json:"name"`
			CreatedUTC   float64 `json:"created_utc"`
			LinkKarma    float64 `json:"link_karma"`
			CommentKarma float64 `json:"comment_karma"`
			Subreddit    struct {
				PublicDescription string `json:"public_description"`
			} `json:"subreddit"`
		} `json:"data"`
	}
	u := r.baseURL + "/user/" + url.PathEscape(username) + "/about.json"
	if err := r.deps.getJSON(ctx, u, r.header(), "reddit", username, &resp); err != nil {
		return nil, err
	}

	created := model.NewTime(model.ParseTime(resp.Data.CreatedUTC))
	return &model.Profile{
		Platform:   "reddit",
		ID:         resp.Data.ID,
		Username:   resp.Data.Name,
		Bio:        resp.Data.Subreddit.PublicDescription,
		CreatedAt:  &created,
		ProfileURL: "https://www.reddit.com/user/" + resp.Data.Name,
		Metrics: map[string]float64{
			"link_karma":    resp.Data.LinkKarma,
			"comment_karma": resp.Data.CommentKarma,
		},
	}, nil
}

// redditThing is the union of submission and comment listing children.
type redditThing struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Body       string  `json:"body"`
	Score      float64 `json:"score"`
	Subreddit  string  `json:"subreddit"`
	CreatedUTC float64 `json:"created_utc"`
	URL        string  `json:"url"`
	IsSelf     bool    `json:"is_self"`
	Permalink  string  `json:"permalink"`
	IsGallery  bool    `json:"is_gallery"`

	MediaMetadata map[string]struct {
		S struct {
			U string `json:"u"`
		} `json:"s"`
	} `json:"media_metadata"`
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data redditThing `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (r *Reddit) FetchPage(ctx context.Context, pq fetcher.PageQuery) (*fetcher.Page, error) {
	cursor := decodeRedditCursor(pq.Cursor)
	page := &fetcher.Page{}

	if !cursor.SubmittedDone {
		listing, err := r.fetchListing(ctx, pq.Username, "submitted", pq.Limit, cursor.SubmittedAfter)
		if err != nil {
			return nil, err
		}
		for _, child := range listing.Data.Children {
			post, err := r.normalizeSubmission(child.Data, pq.Username)
			if err != nil {
				return nil, err
			}
			page.Posts = append(page.Posts, post)
		}
		cursor.SubmittedAfter = listing.Data.After
		cursor.SubmittedDone = listing.Data.After == ""
	}

	if !cursor.CommentsDone {
		listing, err := r.fetchListing(ctx, pq.Username, "comments", pq.Limit, cursor.CommentsAfter)
		if err != nil {
			return nil, err
		}
		for _, child := range listing.Data.Children {
			page.Posts = append(page.Posts, r.normalizeComment(child.Data, pq.Username))
		}
		cursor.CommentsAfter = listing.Data.After
		cursor.CommentsDone = listing.Data.After == ""
	}

	page.NextCursor = cursor.encode()
	return page, nil
}

func (r *Reddit) fetchListing(ctx context.Context, username, kind string, limit int, after string) (*redditListing, error) {
	q := url.Values{"limit": {fmt.Sprint(limit)}, "raw_json": {"1"}}
	if after != "" {
		q.Set("after", after)
	}
	u := buildURL(r.baseURL, "/user/"+url.PathEscape(username)+"/"+kind+".json", q)

	var listing redditListing
	if err := r.deps.getJSON(ctx, u, r.header(), "reddit", username, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *Reddit) normalizeSubmission(thing redditThing, username string) (model.Post, error) {
	text := thing.Title
	if thing.Selftext != "" {
		text += "\n" + thing.Selftext
	}

	var mediaItems []model.Media
	var links []string

	if !thing.IsSelf && thing.URL != "" {
		if isDirectMediaURL(thing.URL) {
			localPath, err := r.deps.Media.Download(thing.URL, "reddit", nil, "")
			if err != nil {
				return model.Post{}, err
			}
			mediaType := "image"
			if !model.IsImagePath(thing.URL) {
				mediaType = "video"
			}
			mediaItems = append(mediaItems, model.Media{URL: thing.URL, LocalPath: localPath, Type: mediaType})
		} else {
			links = append(links, thing.URL)
		}
	}
	for _, item := range thing.MediaMetadata {
		if item.S.U == "" {
			continue
		}
		localPath, err := r.deps.Media.Download(item.S.U, "reddit", nil, "")
		if err != nil {
			return model.Post{}, err
		}
		mediaItems = append(mediaItems, model.Media{URL: item.S.U, LocalPath: localPath, Type: "gallery_image"})
	}

	return model.Post{
		Platform:       "reddit",
		ID:             thing.Name,
		CreatedAt:      model.NewTime(model.ParseTime(thing.CreatedUTC)),
		AuthorUsername: username,
		Text:           text,
		Media:          mediaItems,
		ExternalLinks:  model.MergeLinks(links, thing.Selftext),
		PostURL:        "https://www.reddit.com" + thing.Permalink,
		Metrics:        map[string]float64{"score": thing.Score},
		Type:           "submission",
		Context:        map[string]any{"subreddit": thing.Subreddit},
	}, nil
}

func (r *Reddit) normalizeComment(thing redditThing, username string) model.Post {
	return model.Post{
		Platform:       "reddit",
		ID:             thing.Name,
		CreatedAt:      model.NewTime(model.ParseTime(thing.CreatedUTC)),
		AuthorUsername: username,
		Text:           thing.Body,
		ExternalLinks:  model.ExtractLinks(thing.Body),
		PostURL:        "https://www.reddit.com" + thing.Permalink,
		Metrics:        map[string]float64{"score": thing.Score},
		Type:           "comment",
		Context:        map[string]any{"subreddit": thing.Subreddit},
	}
}

func isDirectMediaURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ext := range append(append([]string{}, model.SupportedImageExts...), model.SupportedVideoExts...) {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
