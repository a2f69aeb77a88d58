package platforms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mfreitag/socialosint/internal/apierr"
	"github.com/mfreitag/socialosint/internal/config"
	"github.com/mfreitag/socialosint/internal/media"
)

// testDeps builds Deps with default config and a throwaway media dir.
func testDeps(t *testing.T) *Deps {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	resolver, err := media.NewResolver(t.TempDir(), false, nil, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return &Deps{
		Cfg:   cfg,
		Media: resolver,
		HTTP:  &http.Client{Timeout: 5 * time.Second},
	}
}

func TestGetJSONTypedErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/limited":
			w.Header().Set("X-Ratelimit-Remaining", "0")
			w.Header().Set("X-Ratelimit-Reset", "1700000000")
			w.WriteHeader(http.StatusForbidden)
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	d := testDeps(t)
	var out struct{}

	err := d.getJSON(context.Background(), srv.URL+"/missing", nil, "test", "user", &out)
	if !apierr.IsKind(err, apierr.KindNotFound) {
		t.Errorf("expected not-found, got %v", err)
	}

	// Quota exhaustion reported as 403 must still classify as rate limit.
	err = d.getJSON(context.Background(), srv.URL+"/limited", nil, "test", "user", &out)
	if !apierr.IsRateLimited(err) {
		t.Errorf("expected rate-limited, got %v", err)
	}

	err = d.getJSON(context.Background(), srv.URL+"/forbidden", nil, "test", "user", &out)
	if !apierr.IsKind(err, apierr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestRegistryCoversAllPlatforms(t *testing.T) {
	d := testDeps(t)
	for _, name := range Names {
		p, err := New(name, d)
		if err != nil {
			t.Errorf("New(%q) failed: %v", name, err)
			continue
		}
		if p.Name() != name {
			t.Errorf("platform %q reports name %q", name, p.Name())
		}
		if p.MaxPageSize() <= 0 {
			t.Errorf("platform %q has no page size", name)
		}
	}
	if _, err := New("myspace", d); err == nil {
		t.Error("expected error for unknown platform")
	}
}

func TestAvailableFiltersByCredentials(t *testing.T) {
	d := testDeps(t)
	t.Setenv(d.Cfg.Platforms.Twitter.BearerTokenEnv, "")

	all := Available(d, false)
	if len(all) != len(Names) {
		t.Errorf("expected all %d platforms without cred check, got %v", len(Names), all)
	}

	checked := Available(d, true)
	for _, name := range checked {
		if name == "twitter" {
			t.Error("twitter listed available without a bearer token")
		}
		if name == "mastodon" {
			t.Error("mastodon listed available without configured instances")
		}
	}
	found := map[string]bool{}
	for _, name := range checked {
		found[name] = true
	}
	for _, want := range []string{"hackernews", "github", "reddit", "bluesky", "rss"} {
		if !found[want] {
			t.Errorf("public platform %q missing from available list", want)
		}
	}
}
