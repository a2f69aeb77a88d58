// Package platforms implements the per-platform specializations behind
// the shared fetch driver: profile lookup, raw page fetch, and the
// normalization of one raw item into a Post.
package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mfreitag/socialosint/internal/apierr"
	"github.com/mfreitag/socialosint/internal/config"
	"github.com/mfreitag/socialosint/internal/media"
)

// Deps bundles what every platform fetcher needs.
type Deps struct {
	Cfg   *config.Config
	Media *media.Resolver
	HTTP  *http.Client
}

// NewDeps builds Deps with a request-timeout-bounded HTTP client.
func NewDeps(cfg *config.Config, resolver *media.Resolver) *Deps {
	timeout := time.Duration(cfg.Fetch.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Deps{
		Cfg:   cfg,
		Media: resolver,
		HTTP:  &http.Client{Timeout: timeout},
	}
}

// getJSON performs one GET and decodes the response into out. It checks
// rate-limit headers before the status code so quota exhaustion surfaces
// typed even when a platform reports it as 403. platform and username
// feed the typed error messages.
func (d *Deps) getJSON(ctx context.Context, rawURL string, header http.Header, platform, username string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "socialosint")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if rlErr := apierr.CheckRateHeaders(resp.Header, platform); rlErr != nil {
			return rlErr
		}
		if typed := apierr.FromStatus(resp.StatusCode, platform, username); typed != nil {
			return typed
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s API returned %d: %s", platform, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", platform, err)
	}
	return nil
}

// buildURL joins a base URL, path, and query values.
func buildURL(base, path string, q url.Values) string {
	u := base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}
