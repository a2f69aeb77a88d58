// Package model defines the normalized schema that every platform fetcher
// produces and the cache store persists: Profile, Post, Media, UserData.
package model

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Time is a time.Time that unmarshals leniently from cache files and API
// payloads: RFC 3339 strings (with or without zone) and Unix-second numbers
// are all accepted. It always marshals as RFC 3339 UTC.
type Time struct {
	time.Time
}

// NewTime wraps a time.Time, normalizing to UTC.
func NewTime(t time.Time) Time {
	return Time{t.UTC()}
}

// MarshalJSON encodes the time as an RFC 3339 UTC string.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// UnmarshalJSON accepts RFC 3339 strings, zone-less ISO 8601 strings, and
// Unix-second numbers. Unparseable values decode to the zero time rather
// than failing, so one bad item cannot poison a whole cache file.
func (t *Time) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Time = ParseTime(raw)
	return nil
}

// ParseTime coerces a JSON-decoded value into a UTC time. Strings are tried
// against RFC 3339 and common ISO 8601 layouts; numbers are treated as Unix
// seconds. Anything else yields the zero time.
func ParseTime(v any) time.Time {
	switch val := v.(type) {
	case string:
		for _, layout := range []string{
			time.RFC3339,
			"2006-01-02T15:04:05.999999999",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02",
		} {
			if ts, err := time.Parse(layout, val); err == nil {
				return ts.UTC()
			}
		}
		if secs, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Unix(int64(secs), 0).UTC()
		}
	case float64:
		return time.Unix(int64(val), 0).UTC()
	case int64:
		return time.Unix(val, 0).UTC()
	case time.Time:
		return val.UTC()
	}
	return time.Time{}
}

// Media is one attachment on a post. LocalPath is empty when the download
// was skipped or blocked; Analysis is set only by the vision pass.
type Media struct {
	URL       string `json:"url"`
	LocalPath string `json:"local_path,omitempty"`
	Type      string `json:"type"`
	Analysis  string `json:"analysis,omitempty"`
}

// Post is one normalized content item (tweet, submission, comment, status,
// feed entry, event). ID is unique within a (platform, username) cache file.
type Post struct {
	Platform       string             `json:"platform"`
	ID             string             `json:"id"`
	CreatedAt      Time               `json:"created_at"`
	AuthorUsername string             `json:"author_username"`
	Text           string             `json:"text"`
	Media          []Media            `json:"media,omitempty"`
	ExternalLinks  []string           `json:"external_links,omitempty"`
	PostURL        string             `json:"post_url,omitempty"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	Type           string             `json:"type"`
	Context        map[string]any     `json:"context,omitempty"`
}

// Profile is the normalized identity of one (platform, username) target.
// ID is the platform-stable identifier; Username is the handle used for
// display and re-fetch (handles can change, IDs cannot).
type Profile struct {
	Platform    string             `json:"platform"`
	ID          string             `json:"id"`
	Username    string             `json:"username"`
	DisplayName string             `json:"display_name,omitempty"`
	Bio         string             `json:"bio,omitempty"`
	CreatedAt   *Time              `json:"created_at,omitempty"`
	ProfileURL  string             `json:"profile_url,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// Stats holds the summary counters stamped into every saved cache file.
type Stats struct {
	TotalPostsCached int `json:"total_posts_cached"`
}

// UserData is the aggregate unit that flows between fetchers, the cache
// store, and the orchestrator. It is also the exact on-disk cache shape.
type UserData struct {
	Timestamp Time     `json:"timestamp"`
	Profile   *Profile `json:"profile"`
	Posts     []Post   `json:"posts"`
	Stats     Stats    `json:"stats"`
}

// SortPostsDesc sorts posts newest-first. The sort is stable so that items
// with identical timestamps keep their original order.
func SortPostsDesc(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt.Time)
	})
}

// SupportedImageExts are the image extensions eligible for vision analysis.
var SupportedImageExts = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

// SupportedVideoExts are the video extensions the media cache recognizes.
var SupportedVideoExts = []string{".mp4", ".webm"}

// IsImagePath reports whether the path has a supported image extension.
func IsImagePath(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range SupportedImageExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
