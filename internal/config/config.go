package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the speech gateway service.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Audio target format. Every engine normalizes to this before the
	// framer sees a buffer.
	TargetSampleRate int `envconfig:"TARGET_SAMPLE_RATE" default:"16000"` // Hz
	TargetChannels   int `envconfig:"TARGET_CHANNELS" default:"1"`        // mono
	FrameSize        int `envconfig:"FRAME_SIZE" default:"320"`           // samples per frame (20ms at 16kHz)

	// Sentence segmentation
	BreakRunes     string `envconfig:"BREAK_RUNES" default:""`      // empty selects the built-in ASCII+CJK set
	ChunkMinLength int    `envconfig:"CHUNK_MIN_LENGTH" default:"10"` // minimum bytes before a terminator flushes

	// Voice configuration
	VoiceCatalogPath string `envconfig:"VOICE_CATALOG" default:""` // JSON catalog file; empty uses the built-in catalog
	DefaultVoice     string `envconfig:"DEFAULT_VOICE" default:"zh-CN-XiaoxiaoNeural"`

	// Primary (network neural) engine
	FallbackOnly      bool   `envconfig:"FALLBACK_ONLY" default:"false"` // skip the primary engine entirely
	PrimaryEndpoint   string `envconfig:"PRIMARY_TTS_URL" default:""`    // empty uses the Edge readaloud endpoint
	PrimaryTimeout    int    `envconfig:"PRIMARY_TTS_TIMEOUT" default:"10"` // seconds
	PrimarySampleRate int    `envconfig:"PRIMARY_TTS_SAMPLE_RATE" default:"24000"`

	// Fallback (local offline) engine. The local synthesizer has its
	// own voice namespace, so {voice} is filled from FallbackVoice and
	// never from the network voice catalog.
	FallbackCommand string `envconfig:"FALLBACK_TTS_COMMAND" default:"espeak-ng --stdout -v {voice} -s {rate}"`
	FallbackVoice   string `envconfig:"FALLBACK_TTS_VOICE" default:"zh"`
	FallbackRate    int    `envconfig:"FALLBACK_TTS_RATE" default:"150"` // words per minute

	// Pipeline
	ChunkQueueDepth int `envconfig:"CHUNK_QUEUE_DEPTH" default:"64"`  // buffered chunks per session
	FrameRingSize   int `envconfig:"FRAME_RING_SIZE" default:"256"`   // outbound frame buffer per session

	// Delivery encoding: "pcm" or "ulaw"
	OutputEncoding string `envconfig:"OUTPUT_ENCODING" default:"pcm"`

	// LLM upstream (OpenAI-compatible endpoint)
	LLMAPIKey       string `envconfig:"LLM_API_KEY" default:""`
	LLMBaseURL      string `envconfig:"LLM_BASE_URL" default:"https://dashscope.aliyuncs.com/compatible-mode/v1"`
	LLMModel        string `envconfig:"LLM_MODEL" default:"qwen-plus"`
	LLMSystemPrompt string `envconfig:"LLM_SYSTEM_PROMPT" default:""`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables. It first
// attempts to load from a .env file if one exists, then from the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file (useful for containerized
// deployments).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TargetSampleRate <= 0 {
		return fmt.Errorf("TARGET_SAMPLE_RATE must be positive, got %d", c.TargetSampleRate)
	}
	if c.TargetChannels != 1 {
		return fmt.Errorf("TARGET_CHANNELS must be 1 (mono), got %d", c.TargetChannels)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("FRAME_SIZE must be positive, got %d", c.FrameSize)
	}
	if c.FallbackCommand == "" {
		return fmt.Errorf("FALLBACK_TTS_COMMAND is required")
	}
	if c.OutputEncoding != "pcm" && c.OutputEncoding != "ulaw" {
		return fmt.Errorf("OUTPUT_ENCODING must be pcm or ulaw, got %q", c.OutputEncoding)
	}
	return nil
}
