// Package config loads the YAML configuration, applying embedded defaults
// first so a minimal file only needs to override what differs.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Output    Output    `yaml:"output"`
	Fetch     Fetch     `yaml:"fetch"`
	Media     Media     `yaml:"media"`
	LLM       LLM       `yaml:"llm"`
	Platforms Platforms `yaml:"platforms"`
	Server    Server    `yaml:"server"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Fetch struct {
	DefaultCount          int `yaml:"default_count"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

type Media struct {
	// ExtraCDNDomains extends the built-in per-platform CDN allowlist,
	// e.g. reddit: [i.imgur.com].
	ExtraCDNDomains map[string][]string `yaml:"extra_cdn_domains"`
}

type LLM struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TextModel   string `yaml:"text_model"`
	VisionModel string `yaml:"vision_model"`
	MaxTokens   int    `yaml:"max_tokens"`
}

type Platforms struct {
	Twitter    Twitter    `yaml:"twitter"`
	Reddit     Reddit     `yaml:"reddit"`
	Bluesky    Bluesky    `yaml:"bluesky"`
	Mastodon   Mastodon   `yaml:"mastodon"`
	GitHub     GitHub     `yaml:"github"`
	HackerNews HackerNews `yaml:"hackernews"`
	RSS        RSS        `yaml:"rss"`
}

type Twitter struct {
	BaseURL        string `yaml:"base_url"`
	BearerTokenEnv string `yaml:"bearer_token_env"`
}

type Reddit struct {
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
}

type Bluesky struct {
	AppViewURL string `yaml:"appview_url"`
}

type Mastodon struct {
	Instances []MastodonInstance `yaml:"instances"`
}

type MastodonInstance struct {
	URL      string `yaml:"url"`
	TokenEnv string `yaml:"token_env"`
	Default  bool   `yaml:"default"`
}

type GitHub struct {
	BaseURL  string   `yaml:"base_url"`
	TokenEnv string   `yaml:"token_env"`
	DeepDive DeepDive `yaml:"deep_dive"`
}

// DeepDive controls the bounded patch inspection of sampled push events.
type DeepDive struct {
	Enabled     bool    `yaml:"enabled"`
	SampleRate  float64 `yaml:"sample_rate"`
	MaxPerFetch int     `yaml:"max_per_fetch"`
}

type HackerNews struct {
	AlgoliaURL  string `yaml:"algolia_url"`
	FirebaseURL string `yaml:"firebase_url"`
}

// RSS configures the feed fetcher's full-text enrichment.
type RSS struct {
	EnrichContent bool `yaml:"enrich_content"`
	MaxEnrich     int  `yaml:"max_enrich"`
}

type Server struct {
	Port int `yaml:"port"`
}

// ConfigDir returns the XDG config directory for socialosint.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "socialosint")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/socialosint/config.yaml > ./config.yaml.
// When none exists it returns "" and the embedded defaults apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml", nil
	}

	return "", nil
}

// Load reads and parses a config file. An empty path loads the embedded
// defaults only.
func Load(path string) (*Config, error) {
	if path == "" {
		return parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying embedded defaults first.
func parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(DefaultConfigYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing default config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	return cfg, nil
}

// GetDataDir returns the effective data directory.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return "data"
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
