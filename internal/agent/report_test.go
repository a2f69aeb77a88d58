package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testResult() *Result {
	return &Result{
		Metadata: map[string]any{
			"query":   "what is spez building?",
			"targets": map[string][]string{"reddit": {"spez"}, "github": {"spez"}},
		},
		Report: "# OSINT Analysis Report\n\n## Summary\n\nSome findings.\n",
	}
}

func TestSaveReportMarkdown(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveReport(dir, testResult(), "md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	name := filepath.Base(path)
	if !strings.HasPrefix(name, "analysis_") || !strings.HasSuffix(name, ".md") {
		t.Errorf("bad filename: %q", name)
	}
	// Platform names are sorted into the filename, query punctuation is
	// dropped.
	if !strings.Contains(name, "_github-reddit_") {
		t.Errorf("platforms missing from filename: %q", name)
	}
	if !strings.Contains(name, "what_is_spez_building") {
		t.Errorf("query slug missing from filename: %q", name)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != testResult().Report {
		t.Error("markdown output must be the raw report")
	}
}

func TestSaveReportJSON(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveReport(dir, testResult(), "json")
	if err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var payload struct {
		Metadata map[string]any `json:"analysis_metadata"`
		Report   string         `json:"analysis_report_markdown"`
	}
	if err := json.Unmarshal(content, &payload); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if payload.Metadata["query"] != "what is spez building?" {
		t.Errorf("metadata missing: %v", payload.Metadata)
	}
	if !strings.Contains(payload.Report, "Some findings.") {
		t.Error("report body missing from JSON payload")
	}
}

func TestSaveReportHTML(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveReport(dir, testResult(), "html")
	if err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	html := string(content)
	if !strings.Contains(html, "<h1>OSINT Analysis Report</h1>") {
		t.Errorf("markdown not rendered: %q", html)
	}
	if !strings.HasPrefix(html, "<!DOCTYPE html>") {
		t.Error("missing document wrapper")
	}
}

func TestSaveReportUnknownFormat(t *testing.T) {
	if _, err := SaveReport(t.TempDir(), testResult(), "pdf"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestQuerySlug(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"what is spez building?", "what_is_spez_building"},
		{"c2 infra && beacons", "c2_infra__beacons"},
		{"!!!", "query"},
		{strings.Repeat("a", 50), strings.Repeat("a", 30)},
		{"  spaces  ", "spaces"},
	}
	for _, tc := range cases {
		if got := querySlug(tc.in); got != tc.want {
			t.Errorf("querySlug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
