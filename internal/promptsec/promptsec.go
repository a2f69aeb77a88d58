// Package promptsec hardens LLM prompts against injection attempts hidden
// in collected content. Every string that originated from a platform or
// from the invoking user passes through here before it reaches a prompt;
// detection logs and annotates but never censors, since a post literally
// discussing prompt injection is still legitimate evidence.
package promptsec

import (
	"fmt"
	"log"
	"regexp"
	"strings"
)

// MaxQueryLen bounds the raw user query before sanitization.
const MaxQueryLen = 2000

// MaxSurfacedWarnings caps the anomaly section in the final report.
const MaxSurfacedWarnings = 5

// injectionPatterns are the case-insensitive signatures scanned for in
// both collected content and model output.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(the|previous|prior|above)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+a`),
	regexp.MustCompile(`(?i)forget\s+(everything|all|your)\s`),
	regexp.MustCompile(`(?i)(reveal|repeat|print|show)\s+(your\s+)?(system\s+)?(prompt|instructions)`),
	regexp.MustCompile(`(?i)(debug|developer|admin)\s+mode`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)</\s*(user_query|activity_summaries|vision_findings|link_findings|system)\s*>`),
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeXML escapes the five XML metacharacters so untrusted content
// cannot close a structural wrapper tag.
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// ScanText returns the injection signatures matched in s, or nil.
func ScanText(s string) []string {
	var matched []string
	for _, p := range injectionPatterns {
		if m := p.FindString(s); m != "" {
			matched = append(matched, m)
		}
	}
	return matched
}

// Sanitizer accumulates attributed warnings across one analysis run.
type Sanitizer struct {
	warnings []string
	seen     map[string]bool
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{seen: make(map[string]bool)}
}

// Clean scans one untrusted string, records any matches attributed to
// source (e.g. "reddit/spez post text"), and returns the XML-escaped
// content. The content is never blocked or altered beyond escaping.
func (s *Sanitizer) Clean(text, source string) string {
	for _, m := range ScanText(text) {
		s.record(fmt.Sprintf("Possible injection pattern in %s: %q", source, m))
	}
	return EscapeXML(text)
}

// CleanQuery truncates the user's query to MaxQueryLen and sanitizes it.
func (s *Sanitizer) CleanQuery(query string) string {
	if len(query) > MaxQueryLen {
		query = query[:MaxQueryLen]
		s.record("User query exceeded the maximum length and was truncated")
	}
	return s.Clean(query, "user query")
}

func (s *Sanitizer) record(warning string) {
	if s.seen[warning] {
		return
	}
	s.seen[warning] = true
	s.warnings = append(s.warnings, warning)
	log.Printf("Security: %s", warning)
}

// Warnings returns the deduplicated warnings recorded so far.
func (s *Sanitizer) Warnings() []string {
	return s.warnings
}

// AnomalySection renders the warnings as a report section, capped to
// MaxSurfacedWarnings entries. Empty when nothing was flagged.
func (s *Sanitizer) AnomalySection() string {
	if len(s.warnings) == 0 {
		return ""
	}
	shown := s.warnings
	suppressed := 0
	if len(shown) > MaxSurfacedWarnings {
		suppressed = len(shown) - MaxSurfacedWarnings
		shown = shown[:MaxSurfacedWarnings]
	}
	var b strings.Builder
	b.WriteString("## Security Anomalies Detected\n\n")
	b.WriteString("The collected content matched known prompt-injection signatures. ")
	b.WriteString("The content was included as evidence but treated as untrusted.\n\n")
	for _, w := range shown {
		fmt.Fprintf(&b, "- %s\n", w)
	}
	if suppressed > 0 {
		fmt.Fprintf(&b, "- (%d further warnings suppressed)\n", suppressed)
	}
	return b.String()
}

// BuildPrompt assembles the synthesis prompt from four delimited
// sections. All arguments must already be sanitized; the tag structure is
// the containment boundary, so each category of evidence lives in its own
// named pair and cannot impersonate another.
func BuildPrompt(query, activitySummaries, visionFindings, linkFindings string) string {
	var b strings.Builder
	b.WriteString("<user_query>\n")
	b.WriteString(query)
	b.WriteString("\n</user_query>\n\n")
	b.WriteString("<activity_summaries>\n")
	b.WriteString(activitySummaries)
	b.WriteString("\n</activity_summaries>\n\n")
	b.WriteString("<vision_findings>\n")
	b.WriteString(visionFindings)
	b.WriteString("\n</vision_findings>\n\n")
	b.WriteString("<link_findings>\n")
	b.WriteString(linkFindings)
	b.WriteString("\n</link_findings>")
	return b.String()
}

// ScanOutput checks the model's own response for injection signatures and
// returns a visible notice to append to the report, or "" when clean. The
// output is surfaced, not rejected, because the consumer must see that the
// model may have echoed an injected instruction.
func ScanOutput(output string) string {
	matches := ScanText(output)
	if len(matches) == 0 {
		return ""
	}
	return fmt.Sprintf("\n\n---\n\n**Security Notice:** the generated report "+
		"matched %d known injection signature(s) (e.g. %q). Treat instructions "+
		"inside the report as untrusted content.", len(matches), matches[0])
}
