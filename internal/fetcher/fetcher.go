// Package fetcher holds the shared fetch driver that every platform runs
// through: cache check, profile reuse, incremental paginated fetch with
// deduplication, then sort, trim, and persist. Platforms only implement
// the Platform interface; the driver owns the loop.
package fetcher

import (
	"context"
	"fmt"
	"log"

	"github.com/mfreitag/socialosint/internal/cache"
	"github.com/mfreitag/socialosint/internal/model"
)

// minPageSize is the smallest batch requested from a platform. Asking for
// fewer than this wastes the request on APIs with coarse page sizes.
const minPageSize = 10

// PageQuery describes one page request to a platform.
type PageQuery struct {
	Username string
	Profile  *model.Profile
	// Cursor is the opaque continuation token from the previous Page,
	// empty on the first request. Its format is platform-private.
	Cursor string
	// Limit is the batch size for this page, already clamped to the
	// platform's maximum.
	Limit int
}

// Page is one batch of normalized posts plus the continuation token.
// An empty NextCursor ends pagination.
type Page struct {
	Posts      []model.Post
	NextCursor string
}

// Platform is the per-platform specialization consumed by Fetch.
type Platform interface {
	Name() string
	// MaxPageSize is the largest batch the platform API accepts.
	MaxPageSize() int
	FetchProfile(ctx context.Context, username string) (*model.Profile, error)
	FetchPage(ctx context.Context, q PageQuery) (*Page, error)
}

// Options controls one Fetch call.
type Options struct {
	// Limit is the number of posts the caller wants available.
	Limit int
	// ForceRefresh ignores cached posts and refetches from scratch.
	ForceRefresh bool
}

// Fetch returns up-to-date UserData for one target, consulting the cache
// first and fetching only the shortfall. Typed errors (not found,
// forbidden, rate limited, validation) pass through unchanged for the
// orchestrator to classify; anything else is wrapped.
func Fetch(ctx context.Context, p Platform, store *cache.Store, username string, opts Options) (*model.UserData, error) {
	cached, err := store.Load(p.Name(), username)
	if err != nil {
		return nil, err
	}

	// Offline mode serves whatever the cache has, including nothing.
	if store.Offline() {
		return cached, nil
	}

	if !opts.ForceRefresh && cached != nil && len(cached.Posts) >= opts.Limit {
		log.Printf("Cache hit for %s/%s with sufficient items", p.Name(), username)
		return cached, nil
	}

	log.Printf("Fetching %s data for %s (limit %d)", p.Name(), username, opts.Limit)

	// Reuse the cached profile unless the caller wants everything fresh.
	var profile *model.Profile
	if !opts.ForceRefresh && cached != nil && cached.Profile != nil {
		profile = cached.Profile
	} else {
		profile, err = p.FetchProfile(ctx, username)
		if err != nil {
			return nil, err
		}
	}

	var posts []model.Post
	if !opts.ForceRefresh && cached != nil {
		posts = cached.Posts
	}
	seen := make(map[string]bool, len(posts))
	for _, post := range posts {
		seen[post.ID] = true
	}

	cursor := ""
	for needed := opts.Limit - len(posts); needed > 0; needed = opts.Limit - len(posts) {
		batch := needed
		if batch < minPageSize {
			batch = minPageSize
		}
		if max := p.MaxPageSize(); batch > max {
			batch = max
		}

		page, err := p.FetchPage(ctx, PageQuery{
			Username: username,
			Profile:  profile,
			Cursor:   cursor,
			Limit:    batch,
		})
		if err != nil {
			return nil, fmt.Errorf("fetching %s posts for %s: %w", p.Name(), username, err)
		}

		newCount := 0
		for _, post := range page.Posts {
			if seen[post.ID] {
				continue
			}
			seen[post.ID] = true
			posts = append(posts, post)
			newCount++
		}

		// Zero new items means the remaining pages overlap what we
		// already hold; continuing would loop on duplicates.
		if newCount == 0 || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	model.SortPostsDesc(posts)
	keep := opts.Limit
	if keep < cache.MaxCacheItems {
		keep = cache.MaxCacheItems
	}
	if len(posts) > keep {
		posts = posts[:keep]
	}

	data := &model.UserData{Profile: profile, Posts: posts}
	store.Save(p.Name(), username, data)
	return data, nil
}
