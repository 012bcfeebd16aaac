// Package config provides configuration types and loading for taskclaw.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Providers, Backend, Pipeline, Gateway, Channels, Kafka.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Model     ModelConfig     `json:"model"`
	Providers ProvidersConfig `json:"providers"`
	Backend   BackendConfig   `json:"backend"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Gateway   GatewayConfig   `json:"gateway"`
	Channels  ChannelsConfig  `json:"channels"`
	Kafka     KafkaConfig     `json:"kafka"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	// DataDir holds the timeline and the local board databases.
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig selects the text generation model.
type ModelConfig struct {
	// Name is "provider/model", e.g. "gemini/gemini-2.0-flash".
	Name        string        `json:"name" envconfig:"MODEL"`
	MaxTokens   int           `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64       `json:"temperature" envconfig:"TEMPERATURE"`
	Timeout     time.Duration `json:"timeout" envconfig:"TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Providers – LLM API keys & endpoints
// ---------------------------------------------------------------------------

// ProvidersConfig contains LLM provider configurations.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `json:"openai"`
	Gemini     ProviderConfig `json:"gemini"`
	OpenRouter ProviderConfig `json:"openrouter"`
	Groq       ProviderConfig `json:"groq"`
	Ollama     ProviderConfig `json:"ollama"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Backend – project/task store
// ---------------------------------------------------------------------------

// Backend kinds.
const (
	BackendREST  = "rest"
	BackendLocal = "local"
)

// BackendConfig selects where projects and tasks live.
type BackendConfig struct {
	Kind    string        `json:"kind" envconfig:"KIND"`
	BaseURL string        `json:"baseUrl" envconfig:"BASE_URL"`
	Token   string        `json:"token" envconfig:"TOKEN"`
	Timeout time.Duration `json:"timeout" envconfig:"TIMEOUT"`
	// DeveloperCacheTTL bounds how long the developer listing is reused.
	DeveloperCacheTTL time.Duration `json:"developerCacheTtl" envconfig:"DEVELOPER_CACHE_TTL"`
}

// ---------------------------------------------------------------------------
// Pipeline – command interpretation
// ---------------------------------------------------------------------------

// PipelineConfig tunes classification, validation and execution.
type PipelineConfig struct {
	// StrictIntent disables the create-project fallback for vague create requests.
	StrictIntent bool `json:"strictIntent" envconfig:"STRICT_INTENT"`
	// DryRun plans commands without touching the backend.
	DryRun      bool   `json:"dryRun" envconfig:"DRY_RUN"`
	PromptsFile string `json:"promptsFile" envconfig:"PROMPTS_FILE"`
	// MaxAutoTier is the highest action tier that runs without approval.
	MaxAutoTier    int      `json:"maxAutoTier" envconfig:"MAX_AUTO_TIER"`
	AllowedSenders []string `json:"allowedSenders" envconfig:"ALLOWED_SENDERS"`
	// Workers is how many bus commands serve processes at once.
	Workers int `json:"workers" envconfig:"WORKERS"`
}

// ---------------------------------------------------------------------------
// Gateway – HTTP server networking
// ---------------------------------------------------------------------------

// GatewayConfig contains HTTP API server settings.
type GatewayConfig struct {
	Host      string `json:"host" envconfig:"HOST"`
	Port      int    `json:"port" envconfig:"PORT"`
	AuthToken string `json:"authToken" envconfig:"AUTH_TOKEN"`
}

// ---------------------------------------------------------------------------
// Channels – messaging integrations
// ---------------------------------------------------------------------------

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	Slack SlackConfig `json:"slack"`
}

// SlackConfig configures the Slack Socket Mode channel.
type SlackConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"ENABLED"`
	BotToken  string   `json:"botToken" envconfig:"BOT_TOKEN"`
	AppToken  string   `json:"appToken" envconfig:"APP_TOKEN"`
	APIBase   string   `json:"apiBase,omitempty" envconfig:"API_BASE"`
	AllowFrom []string `json:"allowFrom" envconfig:"ALLOW_FROM"`
}

// ---------------------------------------------------------------------------
// Kafka – command relay
// ---------------------------------------------------------------------------

// KafkaConfig configures the Kafka command relay.
type KafkaConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers       string `json:"brokers" envconfig:"BROKERS"`
	CommandTopic  string `json:"commandTopic" envconfig:"COMMAND_TOPIC"`
	ResultTopic   string `json:"resultTopic" envconfig:"RESULT_TOPIC"`
	ConsumerGroup string `json:"consumerGroup" envconfig:"CONSUMER_GROUP"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.taskclaw/data",
		},
		Model: ModelConfig{
			Name:        "gemini/gemini-2.0-flash",
			MaxTokens:   1024,
			Temperature: 0.2,
			Timeout:     60 * time.Second,
		},
		Backend: BackendConfig{
			Kind:              BackendLocal,
			BaseURL:           "http://localhost:5000/api/v1",
			Timeout:           15 * time.Second,
			DeveloperCacheTTL: 10 * time.Minute,
		},
		Pipeline: PipelineConfig{
			MaxAutoTier: 2,
			Workers:     4,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1", // Secure default
			Port: 18890,
		},
		Kafka: KafkaConfig{
			Brokers:       "localhost:9092",
			CommandTopic:  "taskclaw.commands",
			ResultTopic:   "taskclaw.results",
			ConsumerGroup: "taskclaw",
		},
	}
}
