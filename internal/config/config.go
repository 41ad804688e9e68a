// Package config provides configuration management for Chorus.
// Settings come from environment variables with the CHORUS_ prefix, with
// sensible defaults for every option. An optional YAML overlay file carries
// deployment config; file values take precedence over environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Chorus daemon.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Memory   MemoryConfig
	Pipeline PipelineConfig
	Personas PersonasConfig
	Security SecurityConfig
}

// ServerConfig contains ops HTTP server configuration.
type ServerConfig struct {
	Port           int      // Server port (default: 7070)
	Host           string   // Server host (default: 127.0.0.1)
	AllowedOrigins []string // WebSocket origin patterns; empty means same-origin only
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine: sqlite, postgres (default: sqlite)
	DataPath      string // Path to data directory for SQLite (default: ./data)
	PostgresDSN   string // Postgres connection string when engine is postgres
}

// RedisConfig contains the optional Redis cooldown store configuration.
// When disabled, cooldowns live in the SQL database.
type RedisConfig struct {
	Enabled  bool   // Use Redis for cooldown records (default: false)
	Addr     string // Redis address (default: localhost:6379)
	Password string // Redis password
	DB       int    // Redis database number (default: 0)
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider             string  // Chat provider: ollama, openai, anthropic (default: ollama)
	OllamaURL            string  // Ollama API URL (default: http://localhost:11434)
	OllamaModel          string  // Ollama chat model (default: qwen2.5:7b)
	OllamaEmbeddingModel string  // Ollama embedding model (default: nomic-embed-text)
	OpenAIAPIKey         string  // OpenAI API key
	OpenAIModel          string  // OpenAI chat model (default: gpt-4o-mini)
	OpenAIEmbeddingModel string  // OpenAI embedding model (default: text-embedding-3-small)
	OpenAIBaseURL        string  // Override for OpenAI-compatible endpoints
	AnthropicAPIKey      string  // Anthropic API key
	AnthropicModel       string  // Anthropic chat model (default: claude-haiku-4-5-20251001)
	EmbeddingDimensions  int     // Vector dimensionality, fixed process-wide (default: 1536)
	Temperature          float64 // Default chat sampling temperature (default: 0.7)
	MaxResponseTokens    int     // Default completion token cap (default: 512)
	RequestsPerSecond    float64 // Provider call rate limit, 0 disables (default: 5)
}

// MemoryConfig contains the memory layer tuning knobs.
type MemoryConfig struct {
	MaxContextMessages  int     // Recent history window for context assembly (default: 20)
	ChunkMessageWindow  int     // Messages per short-term chunk (default: 24)
	ShortTermTTLDays    int     // Short-term retention in days (default: 7)
	ArchiveChunkSize    int     // Token size for archival chunking (default: 500)
	ArchiveChunkOverlap int     // Token overlap for archival chunking (default: 50)
	MaxKeywords         int     // Keywords extracted per memory (default: 10)
	VectorWeight        float64 // Hybrid fusion weight for vector rank (default: 0.7)
	KeywordWeight       float64 // Hybrid fusion weight for keyword rank (default: 0.3)
	RRFK                int     // Reciprocal rank fusion constant (default: 60)
	ShortTermLayerBoost float64 // Cross-layer weight for short-term (default: 2.0)
	LongTermLayerBoost  float64 // Cross-layer weight for long-term (default: 1.0)
	PersonalityBoost    float64 // Cross-layer weight for personality (default: 1.0)
	CandidatesPerLayer  int     // Per-layer candidate pool size (default: 5)
	MaxRetrieved        int     // Total memories injected into a prompt (default: 7)
	GuaranteedShortTerm int     // Short-term slots reserved in results (default: 1)
}

// PipelineConfig contains consolidation pipeline settings.
type PipelineConfig struct {
	NumWorkers        int           // Consolidation workers (default: 2)
	QueueSize         int           // Buffered job queue size (default: 100)
	RetentionInterval time.Duration // Short-term expiry sweep interval (default: 1h)
}

// PersonasConfig contains persona import settings.
type PersonasConfig struct {
	Dir           string        // Personas directory (default: ./personas)
	Watch         bool          // Watch the directory for changes (default: true)
	DebounceDelay time.Duration // Watcher debounce window (default: 1s)
}

// SecurityConfig contains ops API security settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // Ops API bearer token, required in production mode
}

// LoadConfig loads configuration from environment variables with defaults.
// All environment variables use the CHORUS_ prefix.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()
	return cfg, cfg.validate()
}

// LoadConfigFromFile loads configuration from environment variables, then
// applies the YAML overlay at path. Fields present in the file take precedence
// over environment variables; absent fields keep their env/default values.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := buildBaseConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	overlay.apply(cfg)
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Storage.StorageEngine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.StorageEngine)
	}
	if c.Storage.StorageEngine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres storage engine requires CHORUS_POSTGRES_DSN")
	}
	if c.Memory.MaxContextMessages < 1 {
		return fmt.Errorf("config: max context messages must be positive")
	}
	if c.Memory.ChunkMessageWindow < 1 {
		return fmt.Errorf("config: chunk message window must be positive")
	}
	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: production security mode requires CHORUS_API_TOKEN")
	}
	return nil
}

// fileOverlay mirrors Config with pointer leaves so an absent YAML field is
// distinguishable from an explicit zero.
type fileOverlay struct {
	Server struct {
		Port           *int     `yaml:"port"`
		Host           *string  `yaml:"host"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Storage struct {
		Engine      *string `yaml:"engine"`
		DataPath    *string `yaml:"data_path"`
		PostgresDSN *string `yaml:"postgres_dsn"`
	} `yaml:"storage"`
	Redis struct {
		Enabled  *bool   `yaml:"enabled"`
		Addr     *string `yaml:"addr"`
		Password *string `yaml:"password"`
		DB       *int    `yaml:"db"`
	} `yaml:"redis"`
	LLM struct {
		Provider             *string  `yaml:"provider"`
		OllamaURL            *string  `yaml:"ollama_url"`
		OllamaModel          *string  `yaml:"ollama_model"`
		OllamaEmbeddingModel *string  `yaml:"ollama_embedding_model"`
		OpenAIAPIKey         *string  `yaml:"openai_api_key"`
		OpenAIModel          *string  `yaml:"openai_model"`
		OpenAIEmbeddingModel *string  `yaml:"openai_embedding_model"`
		OpenAIBaseURL        *string  `yaml:"openai_base_url"`
		AnthropicAPIKey      *string  `yaml:"anthropic_api_key"`
		AnthropicModel       *string  `yaml:"anthropic_model"`
		EmbeddingDimensions  *int     `yaml:"embedding_dimensions"`
		Temperature          *float64 `yaml:"temperature"`
		MaxResponseTokens    *int     `yaml:"max_response_tokens"`
		RequestsPerSecond    *float64 `yaml:"requests_per_second"`
	} `yaml:"llm"`
	Memory struct {
		MaxContextMessages  *int     `yaml:"max_context_messages"`
		ChunkMessageWindow  *int     `yaml:"chunk_message_window"`
		ShortTermTTLDays    *int     `yaml:"short_term_ttl_days"`
		ArchiveChunkSize    *int     `yaml:"archive_chunk_size"`
		ArchiveChunkOverlap *int     `yaml:"archive_chunk_overlap"`
		MaxKeywords         *int     `yaml:"max_keywords"`
		VectorWeight        *float64 `yaml:"vector_weight"`
		KeywordWeight       *float64 `yaml:"keyword_weight"`
		RRFK                *int     `yaml:"rrf_k"`
		ShortTermLayerBoost *float64 `yaml:"short_term_layer_boost"`
		LongTermLayerBoost  *float64 `yaml:"long_term_layer_boost"`
		PersonalityBoost    *float64 `yaml:"personality_layer_boost"`
		CandidatesPerLayer  *int     `yaml:"candidates_per_layer"`
		MaxRetrieved        *int     `yaml:"max_retrieved"`
		GuaranteedShortTerm *int     `yaml:"guaranteed_short_term"`
	} `yaml:"memory"`
	Pipeline struct {
		NumWorkers        *int           `yaml:"num_workers"`
		QueueSize         *int           `yaml:"queue_size"`
		RetentionInterval *time.Duration `yaml:"retention_interval"`
	} `yaml:"pipeline"`
	Personas struct {
		Dir           *string        `yaml:"dir"`
		Watch         *bool          `yaml:"watch"`
		DebounceDelay *time.Duration `yaml:"debounce_delay"`
	} `yaml:"personas"`
	Security struct {
		SecurityMode *string `yaml:"security_mode"`
		APIToken     *string `yaml:"api_token"`
	} `yaml:"security"`
}

func (o *fileOverlay) apply(cfg *Config) {
	setInt(&cfg.Server.Port, o.Server.Port)
	setString(&cfg.Server.Host, o.Server.Host)
	if o.Server.AllowedOrigins != nil {
		cfg.Server.AllowedOrigins = o.Server.AllowedOrigins
	}

	setString(&cfg.Storage.StorageEngine, o.Storage.Engine)
	setString(&cfg.Storage.DataPath, o.Storage.DataPath)
	setString(&cfg.Storage.PostgresDSN, o.Storage.PostgresDSN)

	setBool(&cfg.Redis.Enabled, o.Redis.Enabled)
	setString(&cfg.Redis.Addr, o.Redis.Addr)
	setString(&cfg.Redis.Password, o.Redis.Password)
	setInt(&cfg.Redis.DB, o.Redis.DB)

	setString(&cfg.LLM.Provider, o.LLM.Provider)
	setString(&cfg.LLM.OllamaURL, o.LLM.OllamaURL)
	setString(&cfg.LLM.OllamaModel, o.LLM.OllamaModel)
	setString(&cfg.LLM.OllamaEmbeddingModel, o.LLM.OllamaEmbeddingModel)
	setString(&cfg.LLM.OpenAIAPIKey, o.LLM.OpenAIAPIKey)
	setString(&cfg.LLM.OpenAIModel, o.LLM.OpenAIModel)
	setString(&cfg.LLM.OpenAIEmbeddingModel, o.LLM.OpenAIEmbeddingModel)
	setString(&cfg.LLM.OpenAIBaseURL, o.LLM.OpenAIBaseURL)
	setString(&cfg.LLM.AnthropicAPIKey, o.LLM.AnthropicAPIKey)
	setString(&cfg.LLM.AnthropicModel, o.LLM.AnthropicModel)
	setInt(&cfg.LLM.EmbeddingDimensions, o.LLM.EmbeddingDimensions)
	setFloat(&cfg.LLM.Temperature, o.LLM.Temperature)
	setInt(&cfg.LLM.MaxResponseTokens, o.LLM.MaxResponseTokens)
	setFloat(&cfg.LLM.RequestsPerSecond, o.LLM.RequestsPerSecond)

	setInt(&cfg.Memory.MaxContextMessages, o.Memory.MaxContextMessages)
	setInt(&cfg.Memory.ChunkMessageWindow, o.Memory.ChunkMessageWindow)
	setInt(&cfg.Memory.ShortTermTTLDays, o.Memory.ShortTermTTLDays)
	setInt(&cfg.Memory.ArchiveChunkSize, o.Memory.ArchiveChunkSize)
	setInt(&cfg.Memory.ArchiveChunkOverlap, o.Memory.ArchiveChunkOverlap)
	setInt(&cfg.Memory.MaxKeywords, o.Memory.MaxKeywords)
	setFloat(&cfg.Memory.VectorWeight, o.Memory.VectorWeight)
	setFloat(&cfg.Memory.KeywordWeight, o.Memory.KeywordWeight)
	setInt(&cfg.Memory.RRFK, o.Memory.RRFK)
	setFloat(&cfg.Memory.ShortTermLayerBoost, o.Memory.ShortTermLayerBoost)
	setFloat(&cfg.Memory.LongTermLayerBoost, o.Memory.LongTermLayerBoost)
	setFloat(&cfg.Memory.PersonalityBoost, o.Memory.PersonalityBoost)
	setInt(&cfg.Memory.CandidatesPerLayer, o.Memory.CandidatesPerLayer)
	setInt(&cfg.Memory.MaxRetrieved, o.Memory.MaxRetrieved)
	setInt(&cfg.Memory.GuaranteedShortTerm, o.Memory.GuaranteedShortTerm)

	setInt(&cfg.Pipeline.NumWorkers, o.Pipeline.NumWorkers)
	setInt(&cfg.Pipeline.QueueSize, o.Pipeline.QueueSize)
	setDuration(&cfg.Pipeline.RetentionInterval, o.Pipeline.RetentionInterval)

	setString(&cfg.Personas.Dir, o.Personas.Dir)
	setBool(&cfg.Personas.Watch, o.Personas.Watch)
	setDuration(&cfg.Personas.DebounceDelay, o.Personas.DebounceDelay)

	setString(&cfg.Security.SecurityMode, o.Security.SecurityMode)
	setString(&cfg.Security.APIToken, o.Security.APIToken)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *time.Duration) {
	if src != nil {
		*dst = *src
	}
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults. This is the shared base for LoadConfig and LoadConfigFromFile.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("CHORUS_PORT", 7070),
			Host:           getEnv("CHORUS_HOST", "127.0.0.1"),
			AllowedOrigins: getEnvList("CHORUS_ALLOWED_ORIGINS", nil),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("CHORUS_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("CHORUS_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("CHORUS_POSTGRES_DSN", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("CHORUS_REDIS_ENABLED", false),
			Addr:     getEnv("CHORUS_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CHORUS_REDIS_PASSWORD", ""),
			DB:       getEnvInt("CHORUS_REDIS_DB", 0),
		},
		LLM: LLMConfig{
			Provider:             getEnv("CHORUS_LLM_PROVIDER", "ollama"),
			OllamaURL:            getEnv("CHORUS_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:          getEnv("CHORUS_OLLAMA_MODEL", "qwen2.5:7b"),
			OllamaEmbeddingModel: getEnv("CHORUS_OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey:         getEnv("CHORUS_OPENAI_API_KEY", ""),
			OpenAIModel:          getEnv("CHORUS_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIEmbeddingModel: getEnv("CHORUS_OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			OpenAIBaseURL:        getEnv("CHORUS_OPENAI_BASE_URL", ""),
			AnthropicAPIKey:      getEnv("CHORUS_ANTHROPIC_API_KEY", ""),
			AnthropicModel:       getEnv("CHORUS_ANTHROPIC_MODEL", "claude-haiku-4-5-20251001"),
			EmbeddingDimensions:  getEnvInt("CHORUS_EMBEDDING_DIMENSIONS", 1536),
			Temperature:          getEnvFloat("CHORUS_LLM_TEMPERATURE", 0.7),
			MaxResponseTokens:    getEnvInt("CHORUS_LLM_MAX_RESPONSE_TOKENS", 512),
			RequestsPerSecond:    getEnvFloat("CHORUS_LLM_REQUESTS_PER_SECOND", 5),
		},
		Memory: MemoryConfig{
			MaxContextMessages:  getEnvInt("CHORUS_MAX_CONTEXT_MESSAGES", 20),
			ChunkMessageWindow:  getEnvInt("CHORUS_CHUNK_MESSAGE_WINDOW", 24),
			ShortTermTTLDays:    getEnvInt("CHORUS_SHORT_TERM_TTL_DAYS", 7),
			ArchiveChunkSize:    getEnvInt("CHORUS_ARCHIVE_CHUNK_SIZE", 500),
			ArchiveChunkOverlap: getEnvInt("CHORUS_ARCHIVE_CHUNK_OVERLAP", 50),
			MaxKeywords:         getEnvInt("CHORUS_MAX_KEYWORDS", 10),
			VectorWeight:        getEnvFloat("CHORUS_VECTOR_WEIGHT", 0.7),
			KeywordWeight:       getEnvFloat("CHORUS_KEYWORD_WEIGHT", 0.3),
			RRFK:                getEnvInt("CHORUS_RRF_K", 60),
			ShortTermLayerBoost: getEnvFloat("CHORUS_SHORT_TERM_LAYER_BOOST", 2.0),
			LongTermLayerBoost:  getEnvFloat("CHORUS_LONG_TERM_LAYER_BOOST", 1.0),
			PersonalityBoost:    getEnvFloat("CHORUS_PERSONALITY_LAYER_BOOST", 1.0),
			CandidatesPerLayer:  getEnvInt("CHORUS_CANDIDATES_PER_LAYER", 5),
			MaxRetrieved:        getEnvInt("CHORUS_MAX_RETRIEVED", 7),
			GuaranteedShortTerm: getEnvInt("CHORUS_GUARANTEED_SHORT_TERM", 1),
		},
		Pipeline: PipelineConfig{
			NumWorkers:        getEnvInt("CHORUS_PIPELINE_WORKERS", 2),
			QueueSize:         getEnvInt("CHORUS_PIPELINE_QUEUE_SIZE", 100),
			RetentionInterval: getEnvDuration("CHORUS_RETENTION_INTERVAL", time.Hour),
		},
		Personas: PersonasConfig{
			Dir:           getEnv("CHORUS_PERSONAS_DIR", "./personas"),
			Watch:         getEnvBool("CHORUS_PERSONAS_WATCH", true),
			DebounceDelay: getEnvDuration("CHORUS_PERSONAS_DEBOUNCE", time.Second),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("CHORUS_SECURITY_MODE", "development"),
			APIToken:     getEnv("CHORUS_API_TOKEN", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated environment variable as a slice,
// trimming whitespace around each element. Empty elements are dropped.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "90s", "1h") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
