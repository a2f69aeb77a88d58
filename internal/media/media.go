// Package media downloads post attachments into a content-addressed local
// store. Downloads are gated by a per-platform CDN allowlist so a post
// cannot point the agent at an attacker-controlled server.
package media

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mfreitag/socialosint/internal/apierr"
)

// safeCDNDomains is the built-in allowlist of first-party CDN hosts per
// platform. Platforms absent from the map (hackernews, github, rss) have
// no fixed CDN and rely on dynamic trusted domains instead.
var safeCDNDomains = map[string][]string{
	"twitter": {"pbs.twimg.com", "video.twimg.com"},
	"reddit": {
		"i.redd.it", "preview.redd.it", "v.redd.it", "external-preview.redd.it",
		"www.redditstatic.com", "b.thumbs.redditmedia.com",
	},
	"bluesky":  {"cdn.bsky.app", "cdn.bsky.social"},
	"mastodon": {"mastodon.social", "files.mastodon.social"},
}

// extByContentType maps acceptable response content types to file
// extensions. The extension is taken from the response, never the URL.
var extByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

var knownExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".mp4", ".webm"}

// Resolver downloads media URLs into <baseDir>/media, addressed by the
// MD5 of the URL. AllowExternal disables the domain allowlist entirely
// and corresponds to the --unsafe-allow-external-media flag.
type Resolver struct {
	mediaDir      string
	offline       bool
	AllowExternal bool
	client        *http.Client

	// extraDomains extends the built-in allowlist from configuration,
	// keyed by platform.
	extraDomains map[string][]string
}

// NewResolver creates a Resolver storing files under <baseDir>/media.
func NewResolver(baseDir string, offline bool, extraDomains map[string][]string, timeout time.Duration) (*Resolver, error) {
	mediaDir := filepath.Join(baseDir, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Resolver{
		mediaDir:     mediaDir,
		offline:      offline,
		client:       &http.Client{Timeout: timeout},
		extraDomains: extraDomains,
	}, nil
}

// allowed reports whether rawURL's host is on the allowlist for platform.
// trusted holds per-call additions such as a Mastodon home instance or an
// RSS feed's own host. Platforms with neither a built-in list nor trusted
// hosts are unrestricted, matching their lack of a first-party CDN.
func (r *Resolver) allowed(rawURL, platform string, trusted []string) bool {
	if r.AllowExternal {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())

	builtin, hasBuiltin := safeCDNDomains[platform]
	if !hasBuiltin && len(trusted) == 0 {
		return true
	}
	for _, d := range builtin {
		if host == d {
			return true
		}
	}
	for _, d := range r.extraDomains[platform] {
		if host == strings.ToLower(d) {
			return true
		}
	}
	for _, d := range trusted {
		if host == strings.ToLower(d) {
			return true
		}
	}
	return false
}

// cachedPath returns the existing local file for a URL hash, if any.
func (r *Resolver) cachedPath(urlHash string) string {
	for _, ext := range knownExtensions {
		p := filepath.Join(r.mediaDir, urlHash+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Download fetches a media URL and returns the local path, or "" when the
// item was skipped (blocked domain, unsupported type, offline miss, or a
// non-fatal HTTP error). authHeader carries a platform bearer token for
// CDNs that require one. The only returned error kind is rate limiting,
// which the caller must stop on.
func (r *Resolver) Download(rawURL, platform string, trusted []string, authHeader string) (string, error) {
	sum := md5.Sum([]byte(rawURL))
	urlHash := hex.EncodeToString(sum[:])

	if p := r.cachedPath(urlHash); p != "" {
		return p, nil
	}

	if r.offline {
		log.Printf("Offline mode: media %s not in local cache, skipping", rawURL)
		return "", nil
	}

	// The security gate sits after the cache check but before any network
	// activity.
	if !r.allowed(rawURL, platform, trusted) {
		u, _ := url.Parse(rawURL)
		host := ""
		if u != nil {
			host = u.Hostname()
		}
		log.Printf("Security: blocked download from external domain %q for %s. Use --unsafe-allow-external-media to bypass.", host, platform)
		return "", nil
	}

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		log.Printf("Media download failed for %s: %v", rawURL, err)
		return "", nil
	}
	req.Header.Set("User-Agent", "socialosint")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		log.Printf("Media download failed for %s: %v", rawURL, err)
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", apierr.RateLimited("%s media download rate limited", platform)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("HTTP %d downloading %s", resp.StatusCode, rawURL)
		return "", nil
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)
	ext, ok := extByContentType[contentType]
	if !ok {
		log.Printf("Unsupported media type %q for URL %s", contentType, rawURL)
		return "", nil
	}

	finalPath := filepath.Join(r.mediaDir, urlHash+ext)
	f, err := os.Create(finalPath)
	if err != nil {
		log.Printf("Media download failed for %s: %v", rawURL, err)
		return "", nil
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(finalPath)
		log.Printf("Media download failed for %s: %v", rawURL, err)
		return "", nil
	}
	if err := f.Close(); err != nil {
		os.Remove(finalPath)
		return "", nil
	}
	return finalPath, nil
}
