package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mfreitag/socialosint/internal/agent"
	"github.com/mfreitag/socialosint/internal/cache"
	"github.com/mfreitag/socialosint/internal/config"
	"github.com/mfreitag/socialosint/internal/media"
	"github.com/mfreitag/socialosint/internal/platforms"
	"github.com/mfreitag/socialosint/internal/server"
)

var version = "dev"

var (
	verbose            bool
	configPath         string
	offline            bool
	forceRefresh       bool
	allowExternalMedia bool
	cfg                *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "socialosint",
	Short:   "Cross-platform OSINT aggregation and analysis",
	Long:    "socialosint fetches public activity across social platforms, caches it locally, and synthesizes analyst reports with an LLM.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// API keys may live in a local .env file.
		if err := godotenv.Load(); err == nil {
			log.Printf("Loaded environment from .env")
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Serve cached data only, no network requests")
	rootCmd.PersistentFlags().BoolVar(&forceRefresh, "force-refresh", false, "Ignore cached data and refetch from scratch")
	rootCmd.PersistentFlags().BoolVar(&allowExternalMedia, "unsafe-allow-external-media", false, "Download media from hosts outside the CDN allowlist")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(platformsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("socialosint", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/socialosint/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure platforms, API key env vars, and the LLM provider.")
		return nil
	},
}

// --- analyze command ---

var (
	outputFormat string
	noSave       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run an analysis request read as JSON from stdin",
	Long: `Reads a JSON request from stdin and runs the full pipeline.

Request shape:
  {
    "platforms": {"github": ["octocat"], "reddit": ["spez"]},
    "query": "what are these accounts working on?",
    "fetch_options": {
      "default_count": 50,
      "targets": {"reddit:spez": {"count": 100}}
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildAgent()
		if err != nil {
			return err
		}

		available := platforms.Available(a.Deps, true)
		req, err := agent.ParseRequest(os.Stdin, available)
		if err != nil {
			return err
		}

		result := a.Analyze(context.Background(), req, forceRefresh)
		fmt.Println(result.Report)

		if !noSave && !result.Error {
			path, err := agent.SaveReport(cfg.GetDataDir(), result, outputFormat)
			if err != nil {
				return fmt.Errorf("saving report: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Report saved: %s\n", path)
		}

		if result.Error {
			cmd.SilenceUsage = true
			return fmt.Errorf("analysis failed")
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&outputFormat, "format", "md", "Report output format: md, json, or html")
	analyzeCmd.Flags().BoolVar(&noSave, "no-save", false, "Print the report without writing it to the outputs directory")
}

// --- platforms command ---

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List supported platforms and their credential status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildAgent()
		if err != nil {
			return err
		}

		ready := map[string]bool{}
		for _, name := range platforms.Available(a.Deps, true) {
			ready[name] = true
		}

		fmt.Println("Platforms:")
		for _, name := range platforms.Names {
			status := "ready"
			if !ready[name] {
				status = "missing credentials"
			}
			fmt.Printf("  %-12s %s\n", name, status)
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildAgent()
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(a, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func buildAgent() (*agent.Agent, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	store, err := cache.New(dataDir, offline)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Fetch.RequestTimeoutSeconds) * time.Second
	resolver, err := media.NewResolver(dataDir, offline, cfg.Media.ExtraCDNDomains, timeout)
	if err != nil {
		return nil, err
	}
	if allowExternalMedia {
		log.Printf("WARNING: media allowlist disabled, downloading from any host")
		resolver.AllowExternal = true
	}

	deps := platforms.NewDeps(cfg, resolver)
	return agent.New(cfg, store, deps, offline), nil
}
