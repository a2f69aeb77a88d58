package platforms

import (
	"fmt"
	"os"
	"sort"

	"github.com/mfreitag/socialosint/internal/fetcher"
)

// Names lists every supported platform.
var Names = []string{"twitter", "reddit", "bluesky", "mastodon", "hackernews", "github", "rss"}

// New builds a fresh fetcher for one platform. Fetchers are cheap and
// carry per-fetch state (deep-dive and enrichment budgets), so the
// orchestrator creates one per target.
func New(name string, deps *Deps) (fetcher.Platform, error) {
	switch name {
	case "twitter":
		return NewTwitter(deps), nil
	case "reddit":
		return NewReddit(deps), nil
	case "bluesky":
		return NewBluesky(deps), nil
	case "mastodon":
		return NewMastodon(deps), nil
	case "hackernews":
		return NewHackerNews(deps), nil
	case "github":
		return NewGitHub(deps), nil
	case "rss":
		return NewRSS(deps), nil
	}
	return nil, fmt.Errorf("unknown platform %q", name)
}

// Available returns the platforms usable with the current configuration.
// With checkCreds false every supported platform is listed. With it true,
// platforms that cannot work without credentials or instance config are
// filtered out; the public-API platforms are always available.
func Available(deps *Deps, checkCreds bool) []string {
	if !checkCreds {
		out := make([]string, len(Names))
		copy(out, Names)
		return out
	}

	var available []string
	for _, name := range Names {
		switch name {
		case "twitter":
			if os.Getenv(deps.Cfg.Platforms.Twitter.BearerTokenEnv) != "" {
				available = append(available, name)
			}
		case "mastodon":
			if len(deps.Cfg.Platforms.Mastodon.Instances) > 0 {
				available = append(available, name)
			}
		default:
			// reddit, bluesky, hackernews, github, and rss run on public
			// endpoints (github merely degrades without a token).
			available = append(available, name)
		}
	}
	sort.Strings(available)
	return available
}
