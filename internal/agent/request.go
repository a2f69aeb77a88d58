package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/mfreitag/socialosint/internal/model"
	"github.com/mfreitag/socialosint/internal/platforms"
)

// Request is the JSON analysis request accepted on stdin and by the HTTP
// service.
type Request struct {
	Platforms    map[string][]string `json:"platforms"`
	Query        string              `json:"query"`
	FetchOptions FetchOptions        `json:"fetch_options"`
}

// FetchOptions tunes how many posts to request, globally and per target.
type FetchOptions struct {
	DefaultCount int                     `json:"default_count"`
	Targets      map[string]TargetOption `json:"targets"`
}

// TargetOption overrides fetch behavior for one "platform:username" key.
type TargetOption struct {
	Count int `json:"count"`
}

// Target identifies one (platform, username) pair to fetch.
type Target struct {
	Platform string
	Username string
}

// ParseRequest decodes and validates a request. Unknown platforms and
// unsanitizable usernames are dropped with a warning rather than failing
// the whole request; an empty query or no usable targets is an error.
func ParseRequest(r io.Reader, available []string) (*Request, error) {
	var req Request
	dec := json.NewDecoder(r)
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request JSON: %w", err)
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, fmt.Errorf("request is missing a query")
	}
	if len(req.Platforms) == 0 {
		return nil, fmt.Errorf("request names no platforms")
	}

	known := make(map[string]bool, len(available))
	for _, name := range available {
		known[name] = true
	}

	cleaned := make(map[string][]string)
	for platform, usernames := range req.Platforms {
		platform = strings.ToLower(strings.TrimSpace(platform))
		if !known[platform] {
			log.Printf("Skipping unavailable platform %q", platform)
			continue
		}
		var users []string
		seen := make(map[string]bool)
		for _, u := range usernames {
			safe := model.SanitizeUsername(u)
			if safe == "" {
				log.Printf("Skipping invalid username %q for %s", u, platform)
				continue
			}
			if !seen[safe] {
				seen[safe] = true
				users = append(users, safe)
			}
		}
		if len(users) > 0 {
			cleaned[platform] = users
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("no valid targets after filtering to available platforms")
	}
	req.Platforms = cleaned
	return &req, nil
}

// Targets flattens the platform map into a stable, sorted target list.
func (r *Request) Targets() []Target {
	var targets []Target
	for platform, usernames := range r.Platforms {
		for _, u := range usernames {
			targets = append(targets, Target{Platform: platform, Username: u})
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Platform != targets[j].Platform {
			return targets[i].Platform < targets[j].Platform
		}
		return targets[i].Username < targets[j].Username
	})
	return targets
}

// LimitFor resolves the post count for one target: per-target override,
// then the request default, then the configured default.
func (r *Request) LimitFor(platform, username string, configDefault int) int {
	key := platform + ":" + username
	if opt, ok := r.FetchOptions.Targets[key]; ok && opt.Count > 0 {
		return opt.Count
	}
	if r.FetchOptions.DefaultCount > 0 {
		return r.FetchOptions.DefaultCount
	}
	return configDefault
}

// AvailableFor lists the platforms a request may use, honoring credential
// checks the same way interactive mode does.
func AvailableFor(deps *platforms.Deps) []string {
	return platforms.Available(deps, true)
}
