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
	Sources       Sources       `yaml:"sources"`
	Ranking       Ranking       `yaml:"ranking"`
	Filters       Filters       `yaml:"filters"`
	Digest        Digest        `yaml:"digest"`
	Summarization Summarization `yaml:"summarization"`
	Output        Output        `yaml:"output"`
	Server        Server        `yaml:"server"`
	Logging       Logging       `yaml:"logging"`
}

type Sources struct {
	Feeds   []Feed  `yaml:"feeds"`
	Bluesky Bluesky `yaml:"bluesky"`
}

// Feed is one RSS/Atom feed. Kind names the source family so engagement
// extraction knows which counters to expect; it defaults to "rss".
type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

// Bluesky configures echo ingestion from curated Bluesky accounts.
type Bluesky struct {
	Enabled  bool     `yaml:"enabled"`
	APIBase  string   `yaml:"api_base"`
	Accounts []string `yaml:"accounts"`
}

type Ranking struct {
	WindowHours        int      `yaml:"window_hours"`
	HalfLifeHours      float64  `yaml:"half_life_hours"`
	RecencyWeight      float64  `yaml:"recency_weight"`
	EngagementWeight   float64  `yaml:"engagement_weight"`
	VelocityWeight     float64  `yaml:"velocity_weight"`
	EchoWeight         float64  `yaml:"echo_weight"`
	EchoWindowHours    int      `yaml:"echo_window_hours"`
	PracticalBoost     float64  `yaml:"practical_boost"`
	PracticalKeywords  []string `yaml:"practical_keywords"`
	PracticalDomains   []string `yaml:"practical_domains"`
	AlreadySeenPenalty float64  `yaml:"already_seen_penalty"`

	ViralEngagementPercentile float64 `yaml:"viral_engagement_percentile"`
	ViralVelocityPercentile   float64 `yaml:"viral_velocity_percentile"`
	ViralEchoCount            int     `yaml:"viral_echo_count"`
	ViralMultiplier           float64 `yaml:"viral_multiplier"`
}

type Filters struct {
	ExcludePolitics bool     `yaml:"exclude_politics"`
	Keywords        []string `yaml:"keywords"`
}

type Digest struct {
	MaxItems        int `yaml:"max_items"`
	FreeItems       int `yaml:"free_items"`
	MaxContextItems int `yaml:"max_context_items"`
}

type Summarization struct {
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	OllamaURL     string `yaml:"ollama_url"`
	OpenAIModel   string `yaml:"openai_model"`
	APIKeyEnv     string `yaml:"api_key_env"`
	MaxTokens     int    `yaml:"max_tokens"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for noyau.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "noyau")
}

// DataDir returns the XDG data directory for noyau.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "noyau")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/noyau/config.yaml > ./config.yaml
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

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'noyau init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			Bluesky: Bluesky{
				APIBase: "https://public.api.bsky.app",
			},
		},
		Ranking: Ranking{
			WindowHours:      36,
			HalfLifeHours:    18,
			RecencyWeight:    0.30,
			EngagementWeight: 0.20,
			VelocityWeight:   0.25,
			EchoWeight:       0.25,
			EchoWindowHours:  12,
			PracticalBoost:   0.15,
			PracticalKeywords: []string{
				"release", "changelog", "benchmark", "postmortem", "incident",
				"outage", "cve", "exploit", "patch", "migration", "performance",
			},
			PracticalDomains:   []string{"github.com", "docs."},
			AlreadySeenPenalty: 0.30,

			ViralEngagementPercentile: 90,
			ViralVelocityPercentile:   90,
			ViralEchoCount:            3,
			ViralMultiplier:           1.35,
		},
		Filters: Filters{
			ExcludePolitics: true,
			Keywords: []string{
				"election", "senate", "parliament", "candidate",
				"congress", "white house", "presidential",
			},
		},
		Digest: Digest{
			MaxItems:        10,
			FreeItems:       5,
			MaxContextItems: 5,
		},
		Summarization: Summarization{
			Provider:      "ollama",
			Model:         "qwen2.5:7b",
			OllamaURL:     "http://localhost:11434",
			OpenAIModel:   "gpt-4o-mini",
			APIKeyEnv:     "OPENAI_API_KEY",
			MaxTokens:     800,
			MaxConcurrent: 3,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
