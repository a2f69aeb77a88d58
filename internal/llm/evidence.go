package llm

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/mfreitag/socialosint/internal/model"
	"github.com/mfreitag/socialosint/internal/promptsec"
)

const (
	// maxSummaryItems bounds the activity items shown per account.
	maxSummaryItems = 25
	// maxSnippetLen bounds each item's text in the prompt.
	maxSnippetLen = 750
	// maxSharedDomains bounds the shared-link frequency table.
	maxSharedDomains = 10
)

// platformDomains are excluded from the shared-link summary: a link back
// to the platform itself is not an external share.
var platformDomains = map[string]bool{
	"twitter.com":          true,
	"x.com":                true,
	"t.co":                 true,
	"reddit.com":           true,
	"redd.it":              true,
	"bsky.app":             true,
	"news.ycombinator.com": true,
	"github.com":           true,
}

// formatUserSummary renders one account's profile and recent activity as
// a Markdown block. All platform-derived text goes through the sanitizer.
func formatUserSummary(san *promptsec.Sanitizer, ud *model.UserData) string {
	if ud == nil || ud.Profile == nil {
		return ""
	}
	p := ud.Profile
	source := fmt.Sprintf("%s/%s", p.Platform, p.Username)

	var b strings.Builder
	fmt.Fprintf(&b, "### %s Data Summary for: %s\n", capitalize(p.Platform), san.Clean(p.Username, source+" username"))

	b.WriteString("\n**User Profile:**\n")
	if p.CreatedAt != nil && p.CreatedAt.Year() > 1970 {
		fmt.Fprintf(&b, "- Account Created: %s\n", p.CreatedAt.Format("2006-01-02"))
	}
	if bio := strings.TrimSpace(p.Bio); bio != "" {
		fmt.Fprintf(&b, "- Bio: %s\n", san.Clean(bio, source+" bio"))
	}
	if len(p.Metrics) > 0 {
		fmt.Fprintf(&b, "- Stats: %s\n", formatMetrics(p.Metrics))
	}

	if len(ud.Posts) > 0 {
		fmt.Fprintf(&b, "\n**Recent Activity (up to %d items shown):**\n", maxSummaryItems)
		posts := ud.Posts
		if len(posts) > maxSummaryItems {
			posts = posts[:maxSummaryItems]
		}
		for i, post := range posts {
			info := []string{post.Type}
			if post.Type == "" {
				info[0] = "post"
			}
			if len(post.Media) > 0 {
				info = append(info, fmt.Sprintf("Media: %d", len(post.Media)))
			}
			if repo, ok := post.Context["repo"].(string); ok && repo != "" {
				info = append(info, "Repo: "+san.Clean(repo, source+" repo name"))
			}

			snippet := strings.TrimSpace(truncate(post.Text, maxSnippetLen))
			fmt.Fprintf(&b, "- Item %d (%s) (%s):\n  Content: %s\n",
				i+1,
				post.CreatedAt.Format("2006-01-02"),
				strings.Join(info, ", "),
				san.Clean(snippet, fmt.Sprintf("%s post %s", source, post.ID)))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatVisionFindings consolidates every media analysis across all
// accounts, deduplicated and sorted for a stable prompt.
func formatVisionFindings(san *promptsec.Sanitizer, allUserData []*model.UserData) string {
	seen := make(map[string]bool)
	var entries []string
	for _, ud := range allUserData {
		if ud == nil {
			continue
		}
		for _, post := range ud.Posts {
			for _, m := range post.Media {
				if m.Analysis == "" {
					continue
				}
				source := fmt.Sprintf("%s vision analysis", post.Platform)
				entry := fmt.Sprintf("- Image Source: %s\n  Analysis: %s",
					san.Clean(m.URL, source+" url"), san.Clean(m.Analysis, source))
				if !seen[entry] {
					seen[entry] = true
					entries = append(entries, entry)
				}
			}
		}
	}
	if len(entries) == 0 {
		return ""
	}
	sort.Strings(entries)
	return strings.Join(entries, "\n\n")
}

// formatSharedLinks counts external-link domains across all posts and
// renders the most shared ones. Links to the platforms themselves are
// excluded; only the surviving hostnames appear, so no sanitization pass
// is needed beyond the URL parse itself.
func formatSharedLinks(allUserData []*model.UserData) string {
	counts := make(map[string]int)
	for _, ud := range allUserData {
		if ud == nil {
			continue
		}
		for _, post := range ud.Posts {
			for _, link := range post.ExternalLinks {
				u, err := url.Parse(link)
				if err != nil || u.Hostname() == "" {
					continue
				}
				domain := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
				if platformDomains[domain] {
					continue
				}
				counts[domain]++
			}
		}
	}
	if len(counts) == 0 {
		return ""
	}

	type domainCount struct {
		domain string
		count  int
	}
	ranked := make([]domainCount, 0, len(counts))
	for d, c := range counts {
		ranked = append(ranked, domainCount{d, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].domain < ranked[j].domain
	})
	if len(ranked) > maxSharedDomains {
		ranked = ranked[:maxSharedDomains]
	}

	var b strings.Builder
	b.WriteString("Top shared domains:\n")
	for _, dc := range ranked {
		fmt.Fprintf(&b, "- %s: %d link(s)\n", promptsec.EscapeXML(dc.domain), dc.count)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMetrics(metrics map[string]float64) string {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		label := capitalize(strings.ReplaceAll(k, "_", " "))
		parts = append(parts, fmt.Sprintf("%s=%g", label, metrics[k]))
	}
	return strings.Join(parts, ", ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
