// Package cache persists normalized UserData as one JSON file per
// (platform, username) target, with staleness and validation rules.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mfreitag/socialosint/internal/apierr"
	"github.com/mfreitag/socialosint/internal/model"
)

const (
	// MaxCacheItems is the retention ceiling: a cache file never holds
	// more posts than this, regardless of the requested fetch limit.
	MaxCacheItems = 200
	// Expiry is the staleness threshold for online mode.
	Expiry = 24 * time.Hour
)

// Store owns the on-disk cache below <baseDir>/cache. In offline mode
// stale entries are served instead of discarded.
type Store struct {
	baseDir  string
	cacheDir string
	offline  bool
	pathMemo map[string]string

	// now is swappable for staleness tests.
	now func() time.Time
}

// New creates a Store rooted at baseDir, creating the cache directory.
func New(baseDir string, offline bool) (*Store, error) {
	cacheDir := filepath.Join(baseDir, "cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Store{
		baseDir:  baseDir,
		cacheDir: cacheDir,
		offline:  offline,
		pathMemo: make(map[string]string),
		now:      time.Now,
	}, nil
}

// Offline reports whether the store was opened in offline mode.
func (s *Store) Offline() bool { return s.offline }

// BaseDir returns the data root shared with the media resolver.
func (s *Store) BaseDir() string { return s.baseDir }

// Path resolves the deterministic, traversal-safe cache file path for a
// target. The username is stripped to alphanumerics plus {-,_,@} and
// truncated to 100 characters; dots are excluded deliberately so "../"
// can never survive into the filename. Resolution is memoized.
func (s *Store) Path(platform, username string) (string, error) {
	memoKey := platform + "\x00" + username
	if p, ok := s.pathMemo[memoKey]; ok {
		return p, nil
	}

	var b strings.Builder
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_', r == '@':
			b.WriteRune(r)
		}
		if b.Len() >= 100 {
			break
		}
	}
	safe := b.String()
	if safe == "" {
		return "", apierr.Validation("username %q is invalid after sanitization (became empty)", username)
	}

	p := filepath.Join(s.cacheDir, fmt.Sprintf("%s_%s.json", platform, safe))
	s.pathMemo[memoKey] = p
	return p, nil
}

// Load reads and validates a target's cached UserData.
//
// It fails closed: a parse error or a file missing any of the required
// top-level keys (timestamp, profile, posts) deletes the corrupt file and
// returns nil, forcing a clean refetch. In offline mode the parsed data is
// returned regardless of age; online, entries older than Expiry return nil
// but are kept on disk so the fetcher can still merge against them.
func (s *Store) Load(platform, username string) (*model.UserData, error) {
	path, err := s.Path(platform, username)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		log.Printf("Cache for %s/%s is unreadable, discarding: %v", platform, username, err)
		os.Remove(path)
		return nil, nil
	}
	for _, required := range []string{"timestamp", "profile", "posts"} {
		if _, ok := keys[required]; !ok {
			log.Printf("Cache for %s/%s is incomplete or in an old format, discarding", platform, username)
			os.Remove(path)
			return nil, nil
		}
	}

	var data model.UserData
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("Cache for %s/%s failed to decode, discarding: %v", platform, username, err)
		os.Remove(path)
		return nil, nil
	}

	if s.offline {
		log.Printf("Offline mode: using potentially stale cache for %s/%s", platform, username)
		return &data, nil
	}

	if s.now().UTC().Sub(data.Timestamp.Time) >= Expiry {
		// The file stays on disk: it is still a valid merge base for an
		// incremental refetch.
		log.Printf("Cache expired for %s/%s", platform, username)
		return nil, nil
	}
	return &data, nil
}

// Save writes a target's UserData, sorting posts newest-first (stable),
// stamping the save time, and recomputing the cached-post counter. Write
// failures are logged and absorbed: a cache miss next run is acceptable,
// aborting an analysis is not.
func (s *Store) Save(platform, username string, data *model.UserData) {
	path, err := s.Path(platform, username)
	if err != nil {
		log.Printf("Cannot save cache for %s/%s: %v", platform, username, err)
		return
	}

	model.SortPostsDesc(data.Posts)
	data.Timestamp = model.NewTime(s.now())
	data.Stats.TotalPostsCached = len(data.Posts)

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Printf("Failed to encode cache for %s/%s: %v", platform, username, err)
		return
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		log.Printf("Failed to write cache for %s/%s: %v", platform, username, err)
		return
	}
	log.Printf("Saved cache for %s/%s (%d posts)", platform, username, len(data.Posts))
}
