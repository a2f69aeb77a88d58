package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mfreitag/socialosint/internal/fetcher"
)

func newRedditServer(t *testing.T) *Reddit {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/user/spez/about.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" || r.Header.Get("User-Agent") == "Go-http-client/1.1" {
			t.Error("request sent without a custom user agent")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id": "1w72", "name": "spez",
				"created_utc":   1118030400,
				"link_karma":    180000,
				"comment_karma": 750000,
			},
		})
	})
	mux.HandleFunc("/user/spez/submitted.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") != "" {
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"after": "", "children": []any{}}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"after": "t3_aaa",
				"children": []map[string]any{
					{"data": map[string]any{
						"id": "aaa", "name": "t3_aaa",
						"title":       "An announcement",
						"selftext":    "Details at https://redditblog.com/post",
						"score":       1500,
						"subreddit":   "announcements",
						"created_utc": 1714650000,
						"url":         "https://www.reddit.com/r/announcements/comments/aaa",
						"is_self":     true,
						"permalink":   "/r/announcements/comments/aaa/an_announcement/",
					}},
				},
			},
		})
	})
	mux.HandleFunc("/user/spez/comments.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"after": "",
				"children": []map[string]any{
					{"data": map[string]any{
						"id": "bbb", "name": "t1_bbb",
						"body":        "Replying here",
						"score":       12,
						"subreddit":   "golang",
						"created_utc": 1714660000,
						"permalink":   "/r/golang/comments/xyz/comment/bbb/",
					}},
				},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	deps := testDeps(t)
	deps.Cfg.Platforms.Reddit.BaseURL = srv.URL
	return NewReddit(deps)
}

func TestRedditProfile(t *testing.T) {
	rd := newRedditServer(t)

	profile, err := rd.FetchProfile(context.Background(), "spez")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Username != "spez" || profile.Metrics["comment_karma"] != 750000 {
		t.Errorf("bad profile: %+v", profile)
	}
	if profile.CreatedAt == nil || profile.CreatedAt.Year() != 2005 {
		t.Errorf("created_utc not parsed: %v", profile.CreatedAt)
	}
}

func TestRedditTwoStreamPage(t *testing.T) {
	rd := newRedditServer(t)

	page, err := rd.FetchPage(context.Background(), fetcher.PageQuery{Username: "spez", Limit: 25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Posts) != 2 {
		t.Fatalf("expected submission + comment, got %d posts", len(page.Posts))
	}

	sub := page.Posts[0]
	if sub.Type != "submission" || sub.ID != "t3_aaa" {
		t.Errorf("bad submission: %+v", sub)
	}
	if sub.Context["subreddit"] != "announcements" {
		t.Errorf("subreddit context missing: %v", sub.Context)
	}
	if len(sub.ExternalLinks) != 1 || sub.ExternalLinks[0] != "https://redditblog.com/post" {
		t.Errorf("selftext links not extracted: %v", sub.ExternalLinks)
	}

	comment := page.Posts[1]
	if comment.Type != "comment" || comment.Text != "Replying here" {
		t.Errorf("bad comment: %+v", comment)
	}

	// Submissions have more pages, comments are done: the composite
	// cursor keeps only the live stream.
	cursor := decodeRedditCursor(page.NextCursor)
	if cursor.SubmittedAfter != "t3_aaa" || cursor.SubmittedDone {
		t.Errorf("bad submitted cursor state: %+v", cursor)
	}
	if !cursor.CommentsDone {
		t.Errorf("comments stream should be done: %+v", cursor)
	}

	// Following the cursor drains the submissions stream and ends.
	page, err = rd.FetchPage(context.Background(), fetcher.PageQuery{Username: "spez", Limit: 25, Cursor: page.NextCursor})
	if err != nil {
		t.Fatal(err)
	}
	if page.NextCursor != "" {
		t.Errorf("expected pagination to end, got cursor %q", page.NextCursor)
	}
}

func TestRedditCursorRoundTrip(t *testing.T) {
	c := redditCursor{SubmittedAfter: "t3_x", CommentsDone: true}
	decoded := decodeRedditCursor(c.encode())
	if decoded != c {
		t.Errorf("cursor did not round-trip: %+v != %+v", decoded, c)
	}
	if (redditCursor{SubmittedDone: true, CommentsDone: true}).encode() != "" {
		t.Error("fully-done cursor should encode empty")
	}
}
