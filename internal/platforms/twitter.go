package platforms

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/mfreitag/socialosint/internal/apierr"
	"github.com/mfreitag/socialosint/internal/fetcher"
	"github.com/mfreitag/socialosint/internal/model"
)

// Twitter fetches via the v2 API with an app bearer token. Pagination
// uses the API's opaque next_token.
type Twitter struct {
	deps    *Deps
	baseURL string
	bearer  string
}

func NewTwitter(deps *Deps) *Twitter {
	return &Twitter{
		deps:    deps,
		baseURL: deps.Cfg.Platforms.Twitter.BaseURL,
		bearer:  os.Getenv(deps.Cfg.Platforms.Twitter.BearerTokenEnv),
	}
}

func (t *Twitter) Name() string     { return "twitter" }
func (t *Twitter) MaxPageSize() int { return 100 }

// HasCredentials reports whether a bearer token is configured.
func (t *Twitter) HasCredentials() bool { return t.bearer != "" }

func (t *Twitter) authHeader() map[string][]string {
	return map[string][]string{"Authorization": {"Bearer " + t.bearer}}
}

type twitterUser struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Username      string             `json:"username"`
	CreatedAt     model.Time         `json:"created_at"`
	Description   string             `json:"description"`
	Location      string             `json:"location"`
	PublicMetrics map[string]float64 `json:"public_metrics"`
}

func (t *Twitter) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	if t.bearer == "" {
		return nil, apierr.Validation("twitter bearer token is not configured")
	}

	q := url.Values{"user.fields": {"created_at,public_metrics,description,location,verified"}}
	var resp struct {
		Data   *twitterUser `json:"data"`
		Errors []struct {
			Title string `json:"title"`
		} `json:"errors"`
	}
	u := buildURL(t.baseURL, "/2/users/by/username/"+url.PathEscape(username), q)
	if err := t.deps.getJSON(ctx, u, t.authHeader(), "twitter", username, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		// The v2 API reports unknown users inside a 200 body.
		return nil, apierr.NotFound("twitter user %q not found", username)
	}

	created := resp.Data.CreatedAt
	return &model.Profile{
		Platform:    "twitter",
		ID:          resp.Data.ID,
		Username:    resp.Data.Username,
		DisplayName: resp.Data.Name,
		Bio:         resp.Data.Description,
		CreatedAt:   &created,
		ProfileURL:  "https://twitter.com/" + resp.Data.Username,
		Metrics:     resp.Data.PublicMetrics,
	}, nil
}

type twitterMedia struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
	AltText         string `json:"alt_text"`
}

type twitterTweet struct {
	ID            string             `json:"id"`
	Text          string             `json:"text"`
	CreatedAt     model.Time         `json:"created_at"`
	PublicMetrics map[string]float64 `json:"public_metrics"`
	Attachments   struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

func (t *Twitter) FetchPage(ctx context.Context, pq fetcher.PageQuery) (*fetcher.Page, error) {
	q := url.Values{
		"max_results":  {strconv.Itoa(pq.Limit)},
		"tweet.fields": {"created_at,public_metrics,attachments,entities,referenced_tweets"},
		"expansions":   {"attachments.media_keys"},
		"media.fields": {"url,preview_image_url,type,media_key,alt_text"},
	}
	if pq.Cursor != "" {
		q.Set("pagination_token", pq.Cursor)
	}

	var resp struct {
		Data     []twitterTweet `json:"data"`
		Includes struct {
			Media []twitterMedia `json:"media"`
		} `json:"includes"`
		Meta struct {
			NextToken string `json:"next_token"`
		} `json:"meta"`
	}
	u := buildURL(t.baseURL, "/2/users/"+url.PathEscape(pq.Profile.ID)+"/tweets", q)
	if err := t.deps.getJSON(ctx, u, t.authHeader(), "twitter", pq.Username, &resp); err != nil {
		return nil, err
	}

	mediaByKey := make(map[string]twitterMedia, len(resp.Includes.Media))
	for _, m := range resp.Includes.Media {
		mediaByKey[m.MediaKey] = m
	}

	page := &fetcher.Page{NextCursor: resp.Meta.NextToken}
	for _, tw := range resp.Data {
		post, err := t.normalizeTweet(tw, mediaByKey, pq.Username)
		if err != nil {
			return nil, err
		}
		page.Posts = append(page.Posts, post)
	}
	return page, nil
}

func (t *Twitter) normalizeTweet(tw twitterTweet, mediaByKey map[string]twitterMedia, username string) (model.Post, error) {
	postType := "post"
	for _, ref := range tw.ReferencedTweets {
		switch ref.Type {
		case "replied_to":
			postType = "reply"
		case "retweeted":
			postType = "repost"
		case "quoted":
			postType = "quote"
		}
	}

	var mediaItems []model.Media
	for _, key := range tw.Attachments.MediaKeys {
		m, ok := mediaByKey[key]
		if !ok {
			continue
		}
		mediaURL := m.URL
		if mediaURL == "" {
			mediaURL = m.PreviewImageURL
		}
		if mediaURL == "" {
			continue
		}
		localPath, err := t.deps.Media.Download(mediaURL, "twitter", nil, "Bearer "+t.bearer)
		if err != nil {
			return model.Post{}, err
		}
		mediaType := "image"
		if m.Type == "video" {
			mediaType = "video"
		}
		mediaItems = append(mediaItems, model.Media{
			URL:       mediaURL,
			LocalPath: localPath,
			Type:      mediaType,
		})
	}

	return model.Post{
		Platform:       "twitter",
		ID:             tw.ID,
		CreatedAt:      tw.CreatedAt,
		AuthorUsername: username,
		Text:           tw.Text,
		Media:          mediaItems,
		ExternalLinks:  model.ExtractLinks(tw.Text),
		PostURL:        fmt.Sprintf("https://twitter.com/%s/status/%s", username, tw.ID),
		Metrics:        tw.PublicMetrics,
		Type:           postType,
	}, nil
}
