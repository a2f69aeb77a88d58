// Package llm talks to an OpenAI-compatible chat-completions API for both
// vision analysis of downloaded images and the final report synthesis.
package llm

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mfreitag/socialosint/internal/apierr"
	"github.com/mfreitag/socialosint/internal/config"
	"github.com/mfreitag/socialosint/internal/imageproc"
	"github.com/mfreitag/socialosint/internal/model"
	"github.com/mfreitag/socialosint/internal/promptsec"
)

//go:embed prompts/*.prompt
var promptFS embed.FS

func loadPrompt(name string) string {
	data, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		// The prompts are compiled in; a miss is a build defect.
		panic(fmt.Sprintf("prompt %s not embedded: %v", name, err))
	}
	return string(data)
}

// Client calls one chat-completions endpoint with two models: a vision
// model for per-image analysis and a text model for report synthesis.
type Client struct {
	BaseURL     string
	APIKey      string
	TextModel   string
	VisionModel string
	MaxTokens   int

	offline bool
	client  *http.Client

	systemPrompt string
	imagePrompt  string
}

// New creates a Client from config. apiKey may be empty; calls then fail
// with a configuration error rather than at construction time.
func New(cfg config.LLM, apiKey string, offline bool) *Client {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 3500
	}
	return &Client{
		BaseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:       apiKey,
		TextModel:    cfg.TextModel,
		VisionModel:  cfg.VisionModel,
		MaxTokens:    maxTokens,
		offline:      offline,
		client:       &http.Client{Timeout: 60 * time.Second},
		systemPrompt: loadPrompt("system_analysis.prompt"),
		imagePrompt:  loadPrompt("image_analysis.prompt"),
	}
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// chat posts one completion request and returns the first choice.
func (c *Client) chat(ctx context.Context, model string, messages []message, maxTokens int, temperature float64) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("LLM API key not configured")
	}

	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if strings.Contains(strings.ToLower(c.BaseURL), "openrouter.ai") {
		req.Header.Set("HTTP-Referer", "https://github.com/mfreitag/socialosint")
		req.Header.Set("X-Title", "socialosint")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("LLM API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		if rlErr := apierr.CheckRateHeaders(resp.Header, "LLM"); rlErr != nil {
			return "", rlErr
		}
		return "", apierr.RateLimited("LLM API rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("LLM API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}
	return result.Choices[0].Message.Content, nil
}

// AnalyzeImage runs the vision model over one local image and returns the
// description, or "" when the image was skipped or analysis failed for a
// non-rate-limit reason. Rate limiting is the only returned error.
func (c *Client) AnalyzeImage(ctx context.Context, filePath, sourceURL, imgContext string) (string, error) {
	if c.offline || !model.IsImagePath(filePath) {
		return "", nil
	}

	processed := imageproc.Preprocess(filePath)
	if processed == "" {
		return "", nil
	}
	defer imageproc.Cleanup(processed)

	encoded := imageproc.EncodeBase64(processed)
	if encoded == "" {
		return "", nil
	}

	prompt := strings.ReplaceAll(c.imagePrompt, "{context}", imgContext)
	messages := []message{{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{
				URL:    "data:image/jpeg;base64," + encoded,
				Detail: "high",
			}},
		},
	}}

	out, err := c.chat(ctx, c.VisionModel, messages, 1024, 0.3)
	if err != nil {
		if apierr.IsRateLimited(err) {
			return "", err
		}
		log.Printf("Vision analysis failed for %s: %v", sourceURL, err)
		return "", nil
	}
	return strings.TrimSpace(out), nil
}

// RunAnalysis synthesizes the final report from all collected user data.
// All platform-derived text is sanitized and the prompt is assembled in
// tagged sections before the call. The returned report already carries
// the security annotations. Rate limiting surfaces typed; any other API
// failure is wrapped as a synthesis error.
func (c *Client) RunAnalysis(ctx context.Context, allUserData []*model.UserData, query string) (string, error) {
	san := promptsec.NewSanitizer()

	var summaries []string
	for _, ud := range allUserData {
		if s := formatUserSummary(san, ud); s != "" {
			summaries = append(summaries, s)
		}
	}
	vision := formatVisionFindings(san, allUserData)
	links := formatSharedLinks(allUserData)

	if len(summaries) == 0 && vision == "" {
		return "No data available for analysis.", nil
	}

	cleanQuery := san.CleanQuery(query)
	userPrompt := promptsec.BuildPrompt(
		cleanQuery,
		strings.Join(summaries, "\n\n---\n\n"),
		vision,
		links,
	)

	if c.offline {
		// No synthesis without network. Surface the assembled evidence so
		// an offline run still produces something reviewable.
		report := "*Offline mode: LLM synthesis skipped. Assembled evidence follows.*\n\n" + userPrompt
		if section := san.AnomalySection(); section != "" {
			report += "\n\n" + section
		}
		return report, nil
	}

	now := time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	systemPrompt := strings.ReplaceAll(c.systemPrompt, "{current_timestamp}", now)

	out, err := c.chat(ctx, c.TextModel, []message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, c.MaxTokens, 0.5)
	if err != nil {
		if apierr.IsRateLimited(err) {
			return "", err
		}
		return "", fmt.Errorf("LLM synthesis failed: %w", err)
	}

	if notice := promptsec.ScanOutput(out); notice != "" {
		out += notice
	}
	if section := san.AnomalySection(); section != "" {
		out += "\n\n" + section
	}
	return out, nil
}
