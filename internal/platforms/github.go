package platforms

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/mfreitag/socialosint/internal/config"
	"github.com/mfreitag/socialosint/internal/fetcher"
	"github.com/mfreitag/socialosint/internal/model"
)

// securityKeywords trigger a deep dive when found in a commit message.
var securityKeywords = []string{
	"password", "secret", "token", "credential", "api_key", "apikey",
	"private key", "vulnerability", "cve-", "security", "auth",
}

// longCommitMessageLen marks a commit message as unusually detailed.
const longCommitMessageLen = 200

// GitHub synthesizes posts from the public events feed. Optionally it
// performs a bounded deep dive on sampled push events: the commit detail
// endpoint exposes committer email, touched files, and diff sizes that
// the events feed hides. Deep dives are best-effort enrichment; their
// failures never fail the fetch.
type GitHub struct {
	deps     *Deps
	baseURL  string
	token    string
	deepDive config.DeepDive

	// deepDivesDone counts deep dives in this fetcher's lifetime, which
	// the registry scopes to one target fetch.
	deepDivesDone int
	rng           *rand.Rand
}

func NewGitHub(deps *Deps) *GitHub {
	cfg := deps.Cfg.Platforms.GitHub
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		log.Printf("GitHub token is not set; using unauthenticated requests with lower rate limits")
	}
	return &GitHub{
		deps:     deps,
		baseURL:  cfg.BaseURL,
		token:    token,
		deepDive: cfg.DeepDive,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
}

func (g *GitHub) Name() string     { return "github" }
func (g *GitHub) MaxPageSize() int { return 100 }

func (g *GitHub) header() http.Header {
	h := http.Header{"Accept": {"application/vnd.github.v3+json"}}
	if g.token != "" {
		h.Set("Authorization", "Bearer "+g.token)
	}
	return h
}

func (g *GitHub) FetchProfile(ctx context.Context, username string) (*model.Profile, error) {
	var resp struct {
		ID          int64      `json:"id"`
		Login       string     `json:"login"`
		Name        string     `json:"name"`
		Bio         string     `json:"bio"`
		CreatedAt   model.Time `json:"created_at"`
		HTMLURL     string     `json:"html_url"`
		Followers   float64    `json:"followers"`
		Following   float64    `json:"following"`
		PublicRepos float64    `json:"public_repos"`
	}
	u := g.baseURL + "/users/" + url.PathEscape(username)
	if err := g.deps.getJSON(ctx, u, g.header(), "github", username, &resp); err != nil {
		return nil, err
	}

	created := resp.CreatedAt
	return &model.Profile{
		Platform:    "github",
		ID:          strconv.FormatInt(resp.ID, 10),
		Username:    resp.Login,
		DisplayName: resp.Name,
		Bio:         resp.Bio,
		CreatedAt:   &created,
		ProfileURL:  resp.HTMLURL,
		Metrics: map[string]float64{
			"followers":    resp.Followers,
			"following":    resp.Following,
			"public_repos": resp.PublicRepos,
		},
	}, nil
}

type githubEvent struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	CreatedAt model.Time `json:"created_at"`
	Actor     struct {
		Login string `json:"login"`
	} `json:"actor"`
	Repo struct {
		Name string `json:"name"`
	} `json:"repo"`
	Payload struct {
		Action  string `json:"action"`
		Commits []struct {
			SHA     string `json:"sha"`
			Message string `json:"message"`
			URL     string `json:"url"`
		} `json:"commits"`
		Issue struct {
			Number  int    `json:"number"`
			Title   string `json:"title"`
			HTMLURL string `json:"html_url"`
		} `json:"issue"`
		PullRequest struct {
			Number  int    `json:"number"`
			Title   string `json:"title"`
			HTMLURL string `json:"html_url"`
		} `json:"pull_request"`
	} `json:"payload"`
}

func (g *GitHub) FetchPage(ctx context.Context, pq fetcher.PageQuery) (*fetcher.Page, error) {
	pageIdx := 1
	if pq.Cursor != "" {
		pageIdx, _ = strconv.Atoi(pq.Cursor)
	}

	q := url.Values{
		"per_page": {strconv.Itoa(pq.Limit)},
		"page":     {strconv.Itoa(pageIdx)},
	}
	var events []githubEvent
	u := buildURL(g.baseURL, "/users/"+url.PathEscape(pq.Username)+"/events/public", q)
	if err := g.deps.getJSON(ctx, u, g.header(), "github", pq.Username, &events); err != nil {
		return nil, err
	}

	page := &fetcher.Page{}
	for _, event := range events {
		post := g.normalizeEvent(event)
		if event.Type == "PushEvent" {
			g.maybeDeepDive(ctx, event, &post)
		}
		page.Posts = append(page.Posts, post)
	}
	if len(events) > 0 {
		page.NextCursor = strconv.Itoa(pageIdx + 1)
	}
	return page, nil
}

func (g *GitHub) normalizeEvent(event githubEvent) model.Post {
	repoName := event.Repo.Name
	text := fmt.Sprintf("Performed an event of type %s on %s", event.Type, repoName)
	postURL := "https://github.com/" + repoName

	payload := event.Payload
	switch event.Type {
	case "PushEvent":
		text = fmt.Sprintf("Pushed %d commit(s) to %s", len(payload.Commits), repoName)
		for _, c := range payload.Commits {
			text += "\n- " + firstLine(c.Message)
		}
	case "IssuesEvent", "IssueCommentEvent":
		action := payload.Action
		if action == "" {
			action = "commented on"
		}
		text = fmt.Sprintf("%s issue #%d in %s: %s", capitalizeFirst(action), payload.Issue.Number, repoName, payload.Issue.Title)
		if payload.Issue.HTMLURL != "" {
			postURL = payload.Issue.HTMLURL
		}
	case "PullRequestEvent", "PullRequestReviewEvent", "PullRequestReviewCommentEvent":
		action := payload.Action
		if action == "" {
			action = "interacted with"
		}
		text = fmt.Sprintf("%s pull request #%d in %s: %s", capitalizeFirst(action), payload.PullRequest.Number, repoName, payload.PullRequest.Title)
		if payload.PullRequest.HTMLURL != "" {
			postURL = payload.PullRequest.HTMLURL
		}
	}

	return model.Post{
		Platform:       "github",
		ID:             event.ID,
		CreatedAt:      event.CreatedAt,
		AuthorUsername: event.Actor.Login,
		Text:           text,
		ExternalLinks:  model.ExtractLinks(text),
		PostURL:        postURL,
		Metrics:        map[string]float64{},
		Type:           event.Type,
		Context:        map[string]any{"repo": repoName},
	}
}

// maybeDeepDive inspects one commit of a push event when the heuristics
// fire: a security keyword in a commit message, an unusually long
// message, or random sampling. The result lands in the post's context.
func (g *GitHub) maybeDeepDive(ctx context.Context, event githubEvent, post *model.Post) {
	if !g.deepDive.Enabled || g.deepDivesDone >= g.deepDive.MaxPerFetch {
		return
	}
	commits := event.Payload.Commits
	if len(commits) == 0 {
		return
	}

	pick := -1
	for i, c := range commits {
		if hasSecurityKeyword(c.Message) || len(c.Message) > longCommitMessageLen {
			pick = i
			break
		}
	}
	if pick < 0 && g.rng.Float64() < g.deepDive.SampleRate {
		pick = 0
	}
	if pick < 0 || commits[pick].URL == "" {
		return
	}

	var detail struct {
		Commit struct {
			Author struct {
				Email string `json:"email"`
			} `json:"author"`
		} `json:"commit"`
		Stats struct {
			Additions float64 `json:"additions"`
			Deletions float64 `json:"deletions"`
		} `json:"stats"`
		Files []struct {
			Filename string `json:"filename"`
		} `json:"files"`
	}
	if err := g.deps.getJSON(ctx, commits[pick].URL, g.header(), "github", post.AuthorUsername, &detail); err != nil {
		// Best effort only. A rate limit here still should not kill the
		// whole fetch, just stop further dives.
		log.Printf("GitHub deep dive failed for %s: %v", commits[pick].SHA, err)
		g.deepDivesDone = g.deepDive.MaxPerFetch
		return
	}
	g.deepDivesDone++

	languages := make(map[string]bool)
	for _, f := range detail.Files {
		if lang := languageForFile(f.Filename); lang != "" {
			languages[lang] = true
		}
	}
	langList := make([]string, 0, len(languages))
	for lang := range languages {
		langList = append(langList, lang)
	}
	sort.Strings(langList)

	if post.Context == nil {
		post.Context = map[string]any{}
	}
	post.Context["patch"] = map[string]any{
		"commit_sha":      commits[pick].SHA,
		"committer_email": detail.Commit.Author.Email,
		"languages":       langList,
		"additions":       detail.Stats.Additions,
		"deletions":       detail.Stats.Deletions,
		"files_changed":   len(detail.Files),
	}
}

func hasSecurityKeyword(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range securityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var languageByExt = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".js":    "JavaScript",
	".ts":    "TypeScript",
	".rb":    "Ruby",
	".java":  "Java",
	".c":     "C",
	".h":     "C",
	".cpp":   "C++",
	".rs":    "Rust",
	".php":   "PHP",
	".sh":    "Shell",
	".sql":   "SQL",
	".yml":   "YAML",
	".yaml":  "YAML",
	".tf":    "Terraform",
	".swift": "Swift",
	".kt":    "Kotlin",
}

func languageForFile(filename string) string {
	return languageByExt[strings.ToLower(path.Ext(filename))]
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
