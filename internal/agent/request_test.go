package agent

import (
	"strings"
	"testing"
)

var testAvailable = []string{"hackernews", "github", "reddit", "bluesky", "rss"}

func TestParseRequestValid(t *testing.T) {
	body := `{
		"platforms": {"GitHub": ["octocat", "octocat"], "reddit": ["spez"]},
		"query": "  what are they building  ",
		"fetch_options": {
			"default_count": 40,
			"targets": {"reddit:spez": {"count": 100}}
		}
	}`
	req, err := ParseRequest(strings.NewReader(body), testAvailable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Query != "what are they building" {
		t.Errorf("query not trimmed: %q", req.Query)
	}
	// Platform names are lowercased and duplicate usernames collapse.
	if got := req.Platforms["github"]; len(got) != 1 || got[0] != "octocat" {
		t.Errorf("bad github targets: %v", got)
	}

	targets := req.Targets()
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %v", targets)
	}
	if targets[0].Platform != "github" || targets[1].Platform != "reddit" {
		t.Errorf("targets not sorted: %v", targets)
	}

	if got := req.LimitFor("reddit", "spez", 20); got != 100 {
		t.Errorf("per-target override not applied: %d", got)
	}
	if got := req.LimitFor("github", "octocat", 20); got != 40 {
		t.Errorf("request default not applied: %d", got)
	}
}

func TestParseRequestConfigDefaultFallback(t *testing.T) {
	req, err := ParseRequest(strings.NewReader(`{"platforms": {"rss": ["https://example.com/feed"]}, "query": "q"}`), testAvailable)
	if err != nil {
		t.Fatal(err)
	}
	if got := req.LimitFor("rss", "https://example.com/feed", 20); got != 20 {
		t.Errorf("config default not applied: %d", got)
	}
}

func TestParseRequestRejectsEmptyQuery(t *testing.T) {
	_, err := ParseRequest(strings.NewReader(`{"platforms": {"reddit": ["spez"]}, "query": "   "}`), testAvailable)
	if err == nil {
		t.Fatal("expected error for blank query")
	}
}

func TestParseRequestRejectsNoPlatforms(t *testing.T) {
	_, err := ParseRequest(strings.NewReader(`{"platforms": {}, "query": "q"}`), testAvailable)
	if err == nil {
		t.Fatal("expected error for empty platform map")
	}
}

func TestParseRequestFiltersUnavailablePlatforms(t *testing.T) {
	body := `{"platforms": {"myspace": ["tom"], "reddit": ["spez"]}, "query": "q"}`
	req, err := ParseRequest(strings.NewReader(body), testAvailable)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := req.Platforms["myspace"]; ok {
		t.Error("unavailable platform survived filtering")
	}
	if _, ok := req.Platforms["reddit"]; !ok {
		t.Error("available platform dropped")
	}

	// All platforms unavailable is a hard error.
	_, err = ParseRequest(strings.NewReader(`{"platforms": {"myspace": ["tom"]}, "query": "q"}`), testAvailable)
	if err == nil {
		t.Fatal("expected error when nothing remains after filtering")
	}
}

func TestParseRequestSanitizesUsernames(t *testing.T) {
	// Control characters are stripped; a name that is only control
	// characters is dropped entirely.
	body := "{\"platforms\": {\"reddit\": [\"sp\\u0000ez\", \"\\u0001\\u0002\"]}, \"query\": \"q\"}"
	req, err := ParseRequest(strings.NewReader(body), testAvailable)
	if err != nil {
		t.Fatal(err)
	}
	if got := req.Platforms["reddit"]; len(got) != 1 || got[0] != "spez" {
		t.Errorf("bad sanitized usernames: %v", got)
	}
}

func TestParseRequestInvalidJSON(t *testing.T) {
	_, err := ParseRequest(strings.NewReader("{not json"), testAvailable)
	if err == nil {
		t.Fatal("expected decode error")
	}
}
