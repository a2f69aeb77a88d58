package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const maxQuerySlugLen = 30

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML converts a markdown report into a standalone HTML page.
func RenderHTML(report string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(report), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n" +
		"<title>OSINT Analysis Report</title>\n</head>\n<body>\n" +
		buf.String() + "</body>\n</html>\n", nil
}

// SaveReport writes the result to <dataDir>/outputs in the requested
// format (md, json, or html) and returns the file path.
func SaveReport(dataDir string, result *Result, format string) (string, error) {
	outDir := filepath.Join(dataDir, "outputs")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	query, _ := result.Metadata["query"].(string)
	name := fmt.Sprintf("analysis_%s_%s_%s.%s",
		time.Now().UTC().Format("20060102_150405"),
		platformSlug(result.Metadata),
		querySlug(query),
		format)
	path := filepath.Join(outDir, name)

	var content []byte
	switch format {
	case "md":
		content = []byte(result.Report)
	case "json":
		payload := map[string]any{
			"analysis_metadata":        result.Metadata,
			"analysis_report_markdown": result.Report,
		}
		var err error
		content, err = json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding report: %w", err)
		}
	case "html":
		html, err := RenderHTML(result.Report)
		if err != nil {
			return "", err
		}
		content = []byte(html)
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// platformSlug joins the queried platform names for the output filename.
func platformSlug(metadata map[string]any) string {
	targets, ok := metadata["targets"].(map[string][]string)
	if !ok || len(targets) == 0 {
		return "none"
	}
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "-")
}

// querySlug reduces the query to a short filesystem-safe fragment.
func querySlug(query string) string {
	if len(query) > maxQuerySlugLen {
		query = query[:maxQuerySlugLen]
	}
	var b strings.Builder
	for _, r := range query {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '-':
			b.WriteByte('_')
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return "query"
	}
	return slug
}
