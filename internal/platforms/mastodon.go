package platforms

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mfreitag/socialosint/internal/apierr"
	"github.com/mfreitag/socialosint/internal/config"
	"github.com/mfreitag/socialosint/internal/fetcher"
	"github.com/mfreitag/socialosint/internal/model"
)

// mastodonPageMax is the statuses endpoint's hard page cap.
const mastodonPageMax = 40

// Mastodon fetches from the REST API of the user's home instance.
// Usernames must be fully qualified (user@instance.domain); the instance
// part selects which configured client to use. Lookups through the
// default instance work for federated accounts but may be incomplete.
type Mastodon struct {
	deps      *Deps
	instances []config.MastodonInstance
}

func NewMastodon(deps *Deps) *Mastodon {
	return &Mastodon{deps: deps, instances: deps.Cfg.Platforms.Mastodon.Instances}
}

func (m *Mastodon) Name() string     { return "mastodon" }
func (m *Mastodon) MaxPageSize() int { return mastodonPageMax }

// HasInstances reports whether any instance is configured.
func (m *Mastodon) HasInstances() bool { return len(m.instances) > 0 }

// resolveInstance picks the configured client for the username's home
// instance. When the home instance is not configured, the default
// instance performs a cross-instance lookup instead; that path can miss
// statuses, which is worth a warning but not an error.
func (m *Mastodon) resolveInstance(username string) (config.MastodonInstance, string, error) {
	parts := strings.SplitN(username, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return config.MastodonInstance{}, "", apierr.Validation(
			"invalid mastodon username %q: expected user@instance.domain", username)
	}
	domain := parts[1]

	var fallback *config.MastodonInstance
	for i := range m.instances {
		u, err := url.Parse(m.instances[i].URL)
		if err != nil {
			continue
		}
		if strings.EqualFold(u.Hostname(), domain) {
			return m.instances[i], domain, nil
		}
		if m.instances[i].Default {
			fallback = &m.instances[i]
		}
	}
	if fallback != nil {
		log.Printf("Warning: no client configured for instance %s, using default instance %s for lookup; results may be incomplete", domain, fallback.URL)
		return *fallback, domain, nil
	}
	return config.MastodonInstance{}, "", apierr.Validation(
		"no mastodon client configured for instance %s and no default instance set", domain)
}

func (m *Mastodon) header(inst config.MastodonInstance) http.Header {
	h := http.Header{}
	if inst.TokenEnv != "" {
		if token := os.Getenv(inst.TokenEnv); token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	}
	return h
}

type mastodonAccount struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Acct           string     `json:"acct"`
	DisplayName    string     `json:"display_name"`
	Note           string     `json:"note"`
	URL            string     `json:"url"`
	FollowersCount float64    `json:"followers_count"`
	FollowingCount float64    `json:"following_count"`
	StatusesCount  float64    `json:"statuses_count"`
	CreatedAt      model.Time `json:"created_at"`
}

func (m *Mastodon) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	inst, _, err := m.resolveInstance(username)
	if err != nil {
		return nil, err
	}

	q := url.Values{"acct": {username}}
	var account mastodonAccount
	u := buildURL(strings.TrimRight(inst.URL, "/"), "/api/v1/accounts/lookup", q)
	if err := m.deps.getJSON(ctx, u, m.header(inst), "mastodon", username, &account); err != nil {
		return nil, err
	}

	created := account.CreatedAt
	return &model.Profile{
		Platform:    "mastodon",
		ID:          account.ID,
		Username:    username,
		DisplayName: account.DisplayName,
		Bio:         model.StripHTML(account.Note),
		CreatedAt:   &created,
		ProfileURL:  account.URL,
		Metrics: map[string]float64{
			"followers": account.FollowersCount,
			"following": account.FollowingCount,
			"statuses":  account.StatusesCount,
		},
	}, nil
}

type mastodonStatus struct {
	ID               string     `json:"id"`
	CreatedAt        model.Time `json:"created_at"`
	Content          string     `json:"content"`
	URL              string     `json:"url"`
	Reblog           *struct{}  `json:"reblog"`
	FavouritesCount  float64    `json:"favourites_count"`
	ReblogsCount     float64    `json:"reblogs_count"`
	MediaAttachments []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"media_attachments"`
}

func (m *Mastodon) FetchPage(ctx context.Context, pq fetcher.PageQuery) (*fetcher.Page, error) {
	inst, domain, err := m.resolveInstance(pq.Username)
	if err != nil {
		return nil, err
	}

	q := url.Values{"limit": {strconv.Itoa(pq.Limit)}}
	if pq.Cursor != "" {
		q.Set("max_id", pq.Cursor)
	}
	var statuses []mastodonStatus
	u := buildURL(strings.TrimRight(inst.URL, "/"), "/api/v1/accounts/"+url.PathEscape(pq.Profile.ID)+"/statuses", q)
	if err := m.deps.getJSON(ctx, u, m.header(inst), "mastodon", pq.Username, &statuses); err != nil {
		return nil, err
	}

	page := &fetcher.Page{}
	for _, status := range statuses {
		post, err := m.normalizeStatus(status, pq.Username, domain)
		if err != nil {
			return nil, err
		}
		page.Posts = append(page.Posts, post)
	}
	if len(statuses) > 0 {
		// max_id pagination: the next page starts below the oldest id.
		page.NextCursor = statuses[len(statuses)-1].ID
	}
	return page, nil
}

func (m *Mastodon) normalizeStatus(status mastodonStatus, username, homeDomain string) (model.Post, error) {
	// The account's home instance is trusted for this request only, since
	// self-hosted instances serve media from their own domain.
	trusted := []string{homeDomain}

	var mediaItems []model.Media
	for _, att := range status.MediaAttachments {
		if att.URL == "" {
			continue
		}
		localPath, err := m.deps.Media.Download(att.URL, "mastodon", trusted, "")
		if err != nil {
			return model.Post{}, err
		}
		mediaItems = append(mediaItems, model.Media{URL: att.URL, LocalPath: localPath, Type: att.Type})
	}

	text := model.StripHTML(status.Content)
	postType := "post"
	if status.Reblog != nil {
		postType = "repost"
	}

	return model.Post{
		Platform:       "mastodon",
		ID:             status.ID,
		CreatedAt:      status.CreatedAt,
		AuthorUsername: username,
		Text:           text,
		Media:          mediaItems,
		ExternalLinks:  model.ExtractLinks(text),
		PostURL:        status.URL,
		Metrics: map[string]float64{
			"favourites": status.FavouritesCount,
			"reblogs":    status.ReblogsCount,
		},
		Type: postType,
	}, nil
}
