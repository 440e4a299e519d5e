package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"supplyfuse/internal/domain"
)

// Config models fusion.yml.
type Config struct {
	Specialists SpecialistsConfig `yaml:"specialists"`
	LLM         LLMConfig         `yaml:"llm"`
	Fusion      FusionConfig      `yaml:"fusion"`
	Ledger      struct {
		Persist bool `yaml:"persist"`
	} `yaml:"ledger"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type SpecialistsConfig struct {
	Endpoints   map[string]string `yaml:"endpoints"`
	RegistryURL string            `yaml:"registry_url"`
	Timeout     time.Duration     `yaml:"timeout"`
	CacheTTL    time.Duration     `yaml:"cache_ttl"`
	TokenEnv    string            `yaml:"token_env"`
	FixturesDir string            `yaml:"fixtures_dir"`
}

type LLMConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	StaticReply string `yaml:"static_reply"`
}

type FusionConfig struct {
	Weights             map[string]float64 `yaml:"weights"`
	DedupTokenThreshold int                `yaml:"dedup_token_threshold"`
	SnapshotLimit       int                `yaml:"snapshot_limit"`
	Narrative           bool               `yaml:"narrative"`
	NotificationDrafts  bool               `yaml:"notification_drafts"`
}

// WebhookConfig is one notification target fed from the ledger event log.
type WebhookConfig struct {
	Enabled        *bool    `yaml:"enabled"`
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

const (
	ProviderNone   = "none"
	ProviderStatic = "static"
	ProviderGemini = "gemini"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sfuse config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns Default() when the workspace has no config file.
func LoadOrDefault(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for agent, u := range c.Specialists.Endpoints {
		if _, ok := domain.ParseAgentType(agent); !ok {
			return fmt.Errorf("config.specialists.endpoints has unknown agent %s", agent)
		}
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("config.specialists.endpoints.%s is empty", agent)
		}
	}
	if c.Specialists.Timeout < 0 || c.Specialists.CacheTTL < 0 {
		return fmt.Errorf("config.specialists durations must not be negative")
	}
	switch c.LLM.Provider {
	case "", ProviderNone, ProviderStatic, ProviderGemini:
	default:
		return fmt.Errorf("config.llm.provider must be one of none, static, gemini")
	}
	if c.LLM.Provider == ProviderGemini && c.LLM.APIKeyEnv == "" {
		return fmt.Errorf("config.llm.api_key_env is required for provider gemini")
	}
	total := 0.0
	for agent, w := range c.Fusion.Weights {
		if _, ok := domain.ParseAgentType(agent); !ok {
			return fmt.Errorf("config.fusion.weights has unknown agent %s", agent)
		}
		if w < 0 {
			return fmt.Errorf("config.fusion.weights.%s must not be negative", agent)
		}
		total += w
	}
	if len(c.Fusion.Weights) > 0 && total == 0 {
		return fmt.Errorf("config.fusion.weights must not all be zero")
	}
	if c.Fusion.DedupTokenThreshold < 0 {
		return fmt.Errorf("config.fusion.dedup_token_threshold must not be negative")
	}
	if c.Fusion.SnapshotLimit < 0 {
		return fmt.Errorf("config.fusion.snapshot_limit must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// AgentWeights converts the configured weights; nil when none are set.
func (c *Config) AgentWeights() map[domain.AgentType]float64 {
	if len(c.Fusion.Weights) == 0 {
		return nil
	}
	out := make(map[domain.AgentType]float64, len(c.Fusion.Weights))
	for k, v := range c.Fusion.Weights {
		if agent, ok := domain.ParseAgentType(k); ok {
			out[agent] = v
		}
	}
	return out
}

// AgentEndpoints converts the configured endpoint map.
func (c *Config) AgentEndpoints() map[domain.AgentType]string {
	return c.Specialists.AgentEndpoints()
}

func (s SpecialistsConfig) AgentEndpoints() map[domain.AgentType]string {
	out := make(map[domain.AgentType]string, len(s.Endpoints))
	for k, v := range s.Endpoints {
		if agent, ok := domain.ParseAgentType(k); ok {
			out[agent] = strings.TrimSpace(v)
		}
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fusion.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys absent from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `specialists:
  # endpoints:
  #   inventory: http://localhost:9001/invoke
  #   demand: http://localhost:9002/invoke
  #   logistics: http://localhost:9003/invoke
  #   risk: http://localhost:9004/invoke
  endpoints: {}
  registry_url: ""
  timeout: 60s
  cache_ttl: 5m
  token_env: SFUSE_SPECIALIST_TOKEN
  fixtures_dir: ""

llm:
  provider: none
  model: gemini-2.0-flash
  api_key_env: GEMINI_API_KEY

fusion:
  weights:
    inventory: 0.35
    demand: 0.25
    logistics: 0.25
    risk: 0.15
  dedup_token_threshold: 3
  snapshot_limit: 200
  narrative: true
  notification_drafts: false

ledger:
  persist: true

webhooks: []
`
