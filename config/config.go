package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the analyzer.
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Server      ServerConfig      `mapstructure:"server"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Agents      AgentsConfig      `mapstructure:"agents"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Sources     SourcesConfig     `mapstructure:"sources"`
	Scraper     ScraperConfig     `mapstructure:"scraper"`
	Credibility CredibilityConfig `mapstructure:"credibility"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	JobRetention    time.Duration `mapstructure:"job_retention"`
	JobBacklog      int           `mapstructure:"job_backlog"`
	StreamKeepAlive time.Duration `mapstructure:"stream_keepalive"`
}

func (s ServerConfig) Normalize() ServerConfig {
	if strings.TrimSpace(s.Address) == "" {
		s.Address = ":8080"
	}
	if s.JobRetention <= 0 {
		s.JobRetention = 2 * time.Hour
	}
	if s.JobBacklog <= 0 {
		s.JobBacklog = 64
	}
	if s.StreamKeepAlive <= 0 {
		s.StreamKeepAlive = 15 * time.Second
	}
	return s
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai or langchain
	Backend    string              `mapstructure:"backend"`
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name      string `mapstructure:"name"`
	APIName   string `mapstructure:"api_name"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// LLMRoutingConfig picks a model per agent role.
type LLMRoutingConfig struct {
	Classification string `mapstructure:"classification"`
	Extraction     string `mapstructure:"extraction"`
	Analysis       string `mapstructure:"analysis"`
	Verification   string `mapstructure:"verification"`
	Synthesis      string `mapstructure:"synthesis"`
	Fallback       string `mapstructure:"fallback"`
}

// Model resolves the model for role, falling back to Fallback.
func (r LLMRoutingConfig) Model(role string) string {
	var m string
	switch role {
	case "classification":
		m = r.Classification
	case "extraction":
		m = r.Extraction
	case "analysis":
		m = r.Analysis
	case "verification":
		m = r.Verification
	case "synthesis":
		m = r.Synthesis
	}
	if strings.TrimSpace(m) == "" {
		return r.Fallback
	}
	return m
}

func (l LLMConfig) Validate() error {
	if len(l.Providers) == 0 {
		return fmt.Errorf("llm.providers: at least one provider required")
	}
	for name, p := range l.Providers {
		switch p.Type {
		case "openai", "langchain":
		default:
			return fmt.Errorf("llm.providers.%s: unsupported type %q", name, p.Type)
		}
	}
	if strings.TrimSpace(l.Routing.Fallback) == "" {
		return fmt.Errorf("llm.routing.fallback required")
	}
	return nil
}

// AgentsConfig contains agent-specific settings
type AgentsConfig struct {
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"`
	AgentTimeout      time.Duration `mapstructure:"agent_timeout"`
	Temperature       float64       `mapstructure:"temperature"`
	BreakerThreshold  int           `mapstructure:"breaker_threshold"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"`

	// BiasModels are model keys the bias checker reads in parallel. Empty
	// means a single reading on the analysis route.
	BiasModels []string `mapstructure:"bias_models"`
}

func (a AgentsConfig) Normalize() AgentsConfig {
	if a.MaxConcurrentJobs <= 0 {
		a.MaxConcurrentJobs = 4
	}
	if a.AgentTimeout <= 0 {
		a.AgentTimeout = 45 * time.Second
	}
	if a.Temperature < 0 {
		a.Temperature = 0
	}
	if a.Temperature > 1 {
		a.Temperature = 1
	}
	if a.BreakerThreshold <= 0 {
		a.BreakerThreshold = 5
	}
	if a.BreakerCooldown <= 0 {
		a.BreakerCooldown = 30 * time.Second
	}
	var models []string
	seen := make(map[string]bool, len(a.BiasModels))
	for _, m := range a.BiasModels {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		models = append(models, m)
	}
	a.BiasModels = models
	return a
}

// Validate checks that every bias model is configured by some provider.
func (a AgentsConfig) Validate(llm LLMConfig) error {
	for _, m := range a.Normalize().BiasModels {
		found := false
		for _, p := range llm.Providers {
			if _, ok := p.Models[m]; ok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("agents.bias_models: model %q is not configured by any llm provider", m)
		}
	}
	return nil
}

// PipelineConfig tunes the fact-verification sub-pipeline.
type PipelineConfig struct {
	KeyClaims            int     `mapstructure:"key_claims"`
	ManipulationFacts    int     `mapstructure:"manipulation_facts"`
	AlternativeQueries   int     `mapstructure:"alternative_queries"`
	SearchConcurrency    int     `mapstructure:"search_concurrency"`
	SearchDepth          string  `mapstructure:"search_depth"`
	MinCredibilityScore  float64 `mapstructure:"min_credibility_score"`
	KeyClaimsMaxSources  int     `mapstructure:"key_claims_max_sources"`
	ManipulationSources  int     `mapstructure:"manipulation_max_sources"`
	FactCheckMaxSources  int     `mapstructure:"fact_check_max_sources"`
	ExcerptConcurrency   int     `mapstructure:"excerpt_concurrency"`
	ClaimConcurrency     int     `mapstructure:"claim_concurrency"`
	MaxContentCharacters int     `mapstructure:"max_content_characters"`
}

func (p PipelineConfig) Normalize() PipelineConfig {
	p.KeyClaims = clampInt(p.KeyClaims, 3, 1, 3)
	p.ManipulationFacts = clampInt(p.ManipulationFacts, 3, 1, 5)
	p.AlternativeQueries = clampInt(p.AlternativeQueries, 2, 2, 3)
	p.SearchConcurrency = clampInt(p.SearchConcurrency, 3, 1, 16)
	if p.SearchDepth != "basic" && p.SearchDepth != "advanced" {
		p.SearchDepth = "advanced"
	}
	if p.MinCredibilityScore <= 0 || p.MinCredibilityScore > 1 {
		p.MinCredibilityScore = 0.70
	}
	p.KeyClaimsMaxSources = clampInt(p.KeyClaimsMaxSources, 15, 1, 15)
	p.ManipulationSources = clampInt(p.ManipulationSources, 10, 1, 15)
	p.FactCheckMaxSources = clampInt(p.FactCheckMaxSources, 10, 1, 15)
	p.ExcerptConcurrency = clampInt(p.ExcerptConcurrency, 8, 1, 32)
	p.ClaimConcurrency = clampInt(p.ClaimConcurrency, 4, 1, 16)
	if p.MaxContentCharacters <= 0 {
		p.MaxContentCharacters = 50000
	}
	return p
}

// SourcesConfig contains evidence source configurations
type SourcesConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	Provider          string        `mapstructure:"provider"` // serper or brave
	BraveAPIKey       string        `mapstructure:"brave_api_key"`
	SerperAPIKey      string        `mapstructure:"serper_api_key"`
	MaxResults        int           `mapstructure:"max_results"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

func (w WebSearchConfig) Normalize() WebSearchConfig {
	w.Provider = strings.ToLower(strings.TrimSpace(w.Provider))
	if w.Provider == "" {
		w.Provider = "serper"
	}
	w.MaxResults = clampInt(w.MaxResults, 10, 1, 50)
	if w.RequestsPerSecond <= 0 {
		w.RequestsPerSecond = 5
	}
	if w.Timeout <= 0 {
		w.Timeout = 15 * time.Second
	}
	return w
}

func (w WebSearchConfig) Validate() error {
	switch w.Provider {
	case "serper":
		if strings.TrimSpace(w.SerperAPIKey) == "" {
			return fmt.Errorf("sources.web_search.serper_api_key required for provider serper")
		}
	case "brave":
		if strings.TrimSpace(w.BraveAPIKey) == "" {
			return fmt.Errorf("sources.web_search.brave_api_key required for provider brave")
		}
	default:
		return fmt.Errorf("sources.web_search.provider: unsupported %q", w.Provider)
	}
	return nil
}

// ScraperConfig selects and tunes the page fetcher.
type ScraperConfig struct {
	Type        string        `mapstructure:"type"` // chromedp or http
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxChars    int           `mapstructure:"max_chars"`
	Concurrency int           `mapstructure:"concurrency"`
	UserAgent   string        `mapstructure:"user_agent"`
}

func (s ScraperConfig) Normalize() ScraperConfig {
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	if s.Type != "chromedp" {
		s.Type = "http"
	}
	if s.Timeout <= 0 {
		s.Timeout = 20 * time.Second
	}
	if s.MaxChars <= 0 {
		s.MaxChars = 20000
	}
	s.Concurrency = clampInt(s.Concurrency, 4, 1, 16)
	if strings.TrimSpace(s.UserAgent) == "" {
		s.UserAgent = "CredenceBot/1.0 (+https://github.com/mohammad-safakhou/credence)"
	}
	return s
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ProgressStream string        `mapstructure:"progress_stream"`
	StreamMaxLen   int64         `mapstructure:"stream_max_len"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

func (r RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// ReportRetention prunes audit reports older than this; zero keeps them.
	ReportRetention time.Duration `mapstructure:"report_retention"`
}

// DSN builds a connection string from URL or the discrete fields.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port cannot be negative")
	}
	return nil
}

// Normalize applies defaults to every section.
func (c *Config) Normalize() {
	c.Server = c.Server.Normalize()
	c.Agents = c.Agents.Normalize()
	c.Pipeline = c.Pipeline.Normalize()
	c.Sources.WebSearch = c.Sources.WebSearch.Normalize()
	c.Scraper = c.Scraper.Normalize()
	c.Credibility = c.Credibility.Normalize()
}

// Validate checks every section and returns the first problem found.
func (c Config) Validate() error {
	validators := []func() error{
		c.LLM.Validate,
		func() error { return c.Agents.Validate(c.LLM) },
		c.Sources.WebSearch.Validate,
		c.Credibility.Validate,
		c.Storage.Redis.Validate,
		c.Storage.Postgres.Validate,
		c.Telemetry.Validate,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfig loads config from path, or searches the usual locations when
// path is empty. Environment variables prefixed CREDENCE_ override file values.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("agents.agent_timeout", "45s")
	v.SetDefault("agents.temperature", 0.0)
	v.SetDefault("pipeline.min_credibility_score", 0.70)
	v.SetDefault("pipeline.search_concurrency", 3)
	v.SetDefault("sources.web_search.provider", "serper")
	v.SetDefault("scraper.type", "http")
	v.SetDefault("credibility.cache_ttl", "24h")
	v.SetDefault("storage.redis.progress_stream", "credence.job.progress")

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CREDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func clampInt(v, def, lo, hi int) int {
	if v <= 0 {
		v = def
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
