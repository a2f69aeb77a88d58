package platforms

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mfreitag/socialosint/internal/apierr"
	"github.com/mfreitag/socialosint/internal/fetcher"
	"github.com/mfreitag/socialosint/internal/model"
)

// algoliaMaxHits is the search API's per-page ceiling.
const algoliaMaxHits = 1000

// HackerNews combines two public APIs: the Firebase API for the user
// profile and the Algolia search API for the activity stream. Pagination
// is Algolia's numeric page index.
type HackerNews struct {
	deps        *Deps
	algoliaURL  string
	firebaseURL string
}

func NewHackerNews(deps *Deps) *HackerNews {
	return &HackerNews{
		deps:        deps,
		algoliaURL:  deps.Cfg.Platforms.HackerNews.AlgoliaURL,
		firebaseURL: deps.Cfg.Platforms.HackerNews.FirebaseURL,
	}
}

func (h *HackerNews) Name() string     { return "hackernews" }
func (h *HackerNews) MaxPageSize() int { return algoliaMaxHits }

func (h *HackerNews) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	// Firebase returns a bare "null" body for unknown users, so decode
	// into a pointer and check for nil.
	var user *struct {
		ID      string  `json:"id"`
		Created float64 `json:"created"`
		Karma   float64 `json:"karma"`
		About   string  `json:"about"`
	}
	u := h.firebaseURL + "/user/" + url.PathEscape(username) + ".json"
	if err := h.deps.getJSON(ctx, u, nil, "hackernews", username, &user); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apierr.NotFound("hackernews user %q not found", username)
	}

	created := model.NewTime(model.ParseTime(user.Created))
	return &model.Profile{
		Platform:   "hackernews",
		ID:         user.ID,
		Username:   user.ID,
		Bio:        model.StripHTML(user.About),
		CreatedAt:  &created,
		ProfileURL: "https://news.ycombinator.com/user?id=" + url.QueryEscape(username),
		Metrics:    map[string]float64{"karma": user.Karma},
	}, nil
}

type algoliaHit struct {
	ObjectID    string   `json:"objectID"`
	Tags        []string `json:"_tags"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	StoryText   string   `json:"story_text"`
	CommentText string   `json:"comment_text"`
	CreatedAtI  float64  `json:"created_at_i"`
	Points      float64  `json:"points"`
	NumComments float64  `json:"num_comments"`
}

func (h *HackerNews) FetchPage(ctx context.Context, pq fetcher.PageQuery) (*fetcher.Page, error) {
	pageIdx := 0
	if pq.Cursor != "" {
		pageIdx, _ = strconv.Atoi(pq.Cursor)
	}

	q := url.Values{
		"tags":        {"author_" + pq.Username},
		"hitsPerPage": {strconv.Itoa(pq.Limit)},
		"page":        {strconv.Itoa(pageIdx)},
	}
	var resp struct {
		Hits    []algoliaHit `json:"hits"`
		NbPages int          `json:"nbPages"`
	}
	u := buildURL(h.algoliaURL, "/search_by_date", q)
	if err := h.deps.getJSON(ctx, u, nil, "hackernews", pq.Username, &resp); err != nil {
		return nil, err
	}

	page := &fetcher.Page{}
	for _, hit := range resp.Hits {
		page.Posts = append(page.Posts, h.normalizeHit(hit, pq.Username))
	}
	if pageIdx+1 < resp.NbPages {
		page.NextCursor = strconv.Itoa(pageIdx + 1)
	}
	return page, nil
}

func (h *HackerNews) normalizeHit(hit algoliaHit, username string) model.Post {
	itemType := "story"
	for _, tag := range hit.Tags {
		if tag == "comment" {
			itemType = "comment"
			break
		}
	}

	text := hit.Title
	if body := model.StripHTML(firstNonEmpty(hit.StoryText, hit.CommentText)); body != "" {
		if text != "" {
			text += "\n"
		}
		text += body
	}

	var links []string
	if hit.URL != "" {
		links = append(links, hit.URL)
	}

	return model.Post{
		Platform:       "hackernews",
		ID:             hit.ObjectID,
		CreatedAt:      model.NewTime(model.ParseTime(hit.CreatedAtI)),
		AuthorUsername: username,
		Text:           text,
		ExternalLinks:  model.MergeLinks(links, text),
		PostURL:        fmt.Sprintf("https://news.ycombinator.com/item?id=%s", hit.ObjectID),
		Metrics: map[string]float64{
			"points":       hit.Points,
			"num_comments": hit.NumComments,
		},
		Type: itemType,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
