// Package agent orchestrates one analysis run: fetch every target with
// failure isolation, run the vision pass, synthesize the report, and
// assemble metadata.
package agent

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mfreitag/socialosint/internal/apierr"
	"github.com/mfreitag/socialosint/internal/cache"
	"github.com/mfreitag/socialosint/internal/config"
	"github.com/mfreitag/socialosint/internal/fetcher"
	"github.com/mfreitag/socialosint/internal/llm"
	"github.com/mfreitag/socialosint/internal/model"
	"github.com/mfreitag/socialosint/internal/platforms"
)

// Vision is the image-analysis interface the vision pass consumes.
// *llm.Client satisfies it; tests substitute fakes.
type Vision interface {
	AnalyzeImage(ctx context.Context, filePath, sourceURL, imgContext string) (string, error)
}

// Synthesizer is the text-synthesis interface for the final report.
type Synthesizer interface {
	RunAnalysis(ctx context.Context, allUserData []*model.UserData, query string) (string, error)
}

// Agent wires the cache, platform registry, and LLM together.
type Agent struct {
	Cfg     *config.Config
	Store   *cache.Store
	Deps    *platforms.Deps
	Vision  Vision
	Text    Synthesizer
	Offline bool
}

// New builds an Agent with the production LLM client.
func New(cfg *config.Config, store *cache.Store, deps *platforms.Deps, offline bool) *Agent {
	client := llm.New(cfg.LLM, os.Getenv(cfg.LLM.APIKeyEnv), offline)
	return &Agent{
		Cfg:     cfg,
		Store:   store,
		Deps:    deps,
		Vision:  client,
		Text:    client,
		Offline: offline,
	}
}

// Result is the outcome of one Analyze call.
type Result struct {
	Metadata map[string]any `json:"metadata"`
	Report   string         `json:"report"`
	Error    bool           `json:"error"`
}

type fetchedTarget struct {
	Platform string
	Username string
	Data     *model.UserData
}

type failedTarget struct {
	Platform string
	Username string
	Reason   string
}

// Analyze runs the full pipeline for a validated request. One target's
// failure never aborts the others; only zero successes or a synthesis
// failure produce an error result.
func (a *Agent) Analyze(ctx context.Context, req *Request, forceRefresh bool) *Result {
	var succeeded []fetchedTarget
	var failed []failedTarget
	var rateLimited []failedTarget

	for _, target := range req.Targets() {
		limit := req.LimitFor(target.Platform, target.Username, a.Cfg.Fetch.DefaultCount)

		data, err := a.fetchOne(ctx, target.Platform, target.Username, limit, forceRefresh)
		switch {
		case err != nil && apierr.IsRateLimited(err):
			log.Printf("Rate limited on %s/%s: %v", target.Platform, target.Username, err)
			rateLimited = append(rateLimited, failedTarget{target.Platform, target.Username, err.Error()})
		case err != nil && apierr.IsFatalForTarget(err):
			failed = append(failed, failedTarget{target.Platform, target.Username, err.Error()})
		case err != nil:
			log.Printf("Fetch failed for %s/%s: %v", target.Platform, target.Username, err)
			failed = append(failed, failedTarget{target.Platform, target.Username, "Unexpected error"})
		case data == nil:
			failed = append(failed, failedTarget{target.Platform, target.Username, "No data returned"})
		default:
			succeeded = append(succeeded, fetchedTarget{target.Platform, target.Username, data})
		}
	}

	if len(succeeded) == 0 {
		return &Result{
			Metadata: map[string]any{},
			Report:   "Data collection failed for all targets.\n\n" + failureSection(failed, rateLimited),
			Error:    true,
		}
	}

	imagesAnalyzed := 0
	if !a.Offline {
		imagesAnalyzed = a.visionPass(ctx, succeeded)
	}

	allData := make([]*model.UserData, 0, len(succeeded))
	for _, t := range succeeded {
		allData = append(allData, t.Data)
	}

	report, err := a.Text.RunAnalysis(ctx, allData, req.Query)
	if err != nil {
		if apierr.IsRateLimited(err) {
			return &Result{
				Metadata: map[string]any{},
				Report:   "Analysis aborted: " + err.Error(),
				Error:    true,
			}
		}
		return &Result{
			Metadata: map[string]any{},
			Report:   "LLM analysis failed: " + err.Error(),
			Error:    true,
		}
	}

	mode := "Online"
	if a.Offline {
		mode = "Offline"
	}
	ts := time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	metadata := map[string]any{
		"query":         req.Query,
		"targets":       req.Platforms,
		"generated_utc": ts,
		"mode":          mode,
		"models": map[string]string{
			"text":   a.Cfg.LLM.TextModel,
			"vision": a.Cfg.LLM.VisionModel,
		},
		"stats": map[string]int{
			"targets_succeeded":   len(succeeded),
			"targets_failed":      len(failed),
			"targets_ratelimited": len(rateLimited),
			"images_analyzed":     imagesAnalyzed,
		},
	}

	header := fmt.Sprintf("# OSINT Analysis Report\n\n"+
		"**Query:** `%s`\n"+
		"**Generated:** `%s`\n"+
		"**Mode:** `%s`\n"+
		"**Models Used:**\n- Text: `%s`\n- Vision: `%s`\n\n---\n\n",
		strings.ReplaceAll(req.Query, "`", "'"), ts, mode, a.Cfg.LLM.TextModel, a.Cfg.LLM.VisionModel)

	full := header + report
	if section := failureSection(failed, rateLimited); section != "" {
		full += "\n\n---\n\n" + section
	}
	return &Result{Metadata: metadata, Report: full, Error: false}
}

// fetchOne builds a fresh platform fetcher and drives it. Fetchers are
// per-target because some carry per-fetch budgets.
func (a *Agent) fetchOne(ctx context.Context, platform, username string, limit int, forceRefresh bool) (*model.UserData, error) {
	p, err := platforms.New(platform, a.Deps)
	if err != nil {
		return nil, apierr.Validation("%v", err)
	}
	return fetcher.Fetch(ctx, p, a.Store, username, fetcher.Options{
		Limit:        limit,
		ForceRefresh: forceRefresh,
	})
}

// visionPass analyzes every downloaded, not-yet-analyzed image across
// the successful targets. A single image failure is skipped; a rate
// limit stops the remaining queue but keeps completed analyses. Targets
// that gained analyses are re-persisted, the rest are left alone.
func (a *Agent) visionPass(ctx context.Context, targets []fetchedTarget) int {
	type queued struct {
		target *fetchedTarget
		media  *model.Media
	}
	var queue []queued
	for i := range targets {
		t := &targets[i]
		for pi := range t.Data.Posts {
			for mi := range t.Data.Posts[pi].Media {
				m := &t.Data.Posts[pi].Media[mi]
				if m.Analysis != "" || m.LocalPath == "" || !model.IsImagePath(m.LocalPath) {
					continue
				}
				if _, err := os.Stat(m.LocalPath); err != nil {
					continue
				}
				queue = append(queue, queued{t, m})
			}
		}
	}
	if len(queue) == 0 {
		return 0
	}

	analyzed := 0
	modified := make(map[*fetchedTarget]bool)
	for _, item := range queue {
		imgContext := fmt.Sprintf("%s user %s", item.target.Platform, item.target.Username)
		analysis, err := a.Vision.AnalyzeImage(ctx, item.media.LocalPath, item.media.URL, imgContext)
		if err != nil {
			if apierr.IsRateLimited(err) {
				log.Printf("Vision model rate limit hit, aborting further image analysis")
				break
			}
			log.Printf("Image analysis failed for %s: %v", item.media.LocalPath, err)
			continue
		}
		if analysis != "" {
			item.media.Analysis = analysis
			modified[item.target] = true
			analyzed++
		}
	}

	// Targeted re-save: only caches that actually gained analyses.
	for t := range modified {
		a.Store.Save(t.Platform, t.Username, t.Data)
	}
	return analyzed
}

// failureSection renders the failed and rate-limited target lists.
func failureSection(failed, rateLimited []failedTarget) string {
	if len(failed) == 0 && len(rateLimited) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Data Collection Issues\n\n")
	b.WriteString("| Platform | Target | Issue |\n|---|---|---|\n")

	rows := make([]string, 0, len(failed)+len(rateLimited))
	for _, f := range failed {
		rows = append(rows, fmt.Sprintf("| %s | %s | %s |", f.Platform, f.Username, f.Reason))
	}
	for _, f := range rateLimited {
		rows = append(rows, fmt.Sprintf("| %s | %s | Rate limited: %s |", f.Platform, f.Username, f.Reason))
	}
	sort.Strings(rows)
	b.WriteString(strings.Join(rows, "\n"))
	return b.String()
}
