package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelsos/mediagen/internal/logger"
)

// VideoFormat selects where a completed video task exposes its result.
type VideoFormat string

const (
	// VideoFormatInline reads the result URL from the video_url field of the status response.
	VideoFormatInline VideoFormat = "inline"
	// VideoFormatContent streams the result from the /videos/{id}/content endpoint.
	VideoFormatContent VideoFormat = "content"
)

// Config holds all application configuration
type Config struct {
	// API settings
	APIKey        string
	BaseURL       string
	GeminiBaseURL string
	HTTPTimeout   time.Duration

	// Video task settings
	PollInterval time.Duration
	PollTimeout  time.Duration
	VideoFormat  VideoFormat

	// Download settings
	ChunkSize   int
	OutputDir   string
	SaveSidecar bool

	// Default models
	VideoModel  string
	ImageModel  string
	ChatModel   string
	FluxModel   string
	AudioModel  string
	VisionModel string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		BaseURL:       "https://api.laozhang.ai/v1",
		GeminiBaseURL: "https://api.laozhang.ai/v1beta",
		HTTPTimeout:   180 * time.Second,
		PollInterval:  5 * time.Second,
		PollTimeout:   600 * time.Second,
		VideoFormat:   VideoFormatInline,
		ChunkSize:     8192,
		OutputDir:     ".",
		SaveSidecar:   true,
		VideoModel:    "veo-3.1-fast",
		ImageModel:    "gemini-2.5-flash-image",
		ChatModel:     "gpt-4o-image",
		FluxModel:     "flux-kontext-pro",
		AudioModel:    "gemini-2.5-pro",
		VisionModel:   "gemini-2.5-pro",
	}
}

// LoadFromEnvironment loads configuration from environment variables
func (c *Config) LoadFromEnvironment() {
	if apiKey := os.Getenv("MEDIAGEN_API_KEY"); apiKey != "" {
		c.APIKey = apiKey
	}

	if baseURL := os.Getenv("MEDIAGEN_BASE_URL"); baseURL != "" {
		c.BaseURL = baseURL
	}

	if geminiURL := os.Getenv("MEDIAGEN_GEMINI_BASE_URL"); geminiURL != "" {
		c.GeminiBaseURL = geminiURL
	}

	if timeout := os.Getenv("MEDIAGEN_HTTP_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			c.HTTPTimeout = time.Duration(t) * time.Second
		} else {
			warnInvalid("MEDIAGEN_HTTP_TIMEOUT", timeout, err)
		}
	}

	if interval := os.Getenv("MEDIAGEN_POLL_INTERVAL"); interval != "" {
		if i, err := strconv.Atoi(interval); err == nil {
			c.PollInterval = time.Duration(i) * time.Second
		} else {
			warnInvalid("MEDIAGEN_POLL_INTERVAL", interval, err)
		}
	}

	if timeout := os.Getenv("MEDIAGEN_POLL_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			c.PollTimeout = time.Duration(t) * time.Second
		} else {
			warnInvalid("MEDIAGEN_POLL_TIMEOUT", timeout, err)
		}
	}

	if format := os.Getenv("MEDIAGEN_VIDEO_FORMAT"); format != "" {
		c.VideoFormat = VideoFormat(strings.ToLower(format))
	}

	if chunk := os.Getenv("MEDIAGEN_CHUNK_SIZE"); chunk != "" {
		if n, err := strconv.Atoi(chunk); err == nil {
			c.ChunkSize = n
		} else {
			warnInvalid("MEDIAGEN_CHUNK_SIZE", chunk, err)
		}
	}

	if outputDir := os.Getenv("MEDIAGEN_OUTPUT_DIR"); outputDir != "" {
		c.OutputDir = outputDir
	}

	if sidecar := os.Getenv("MEDIAGEN_SIDECAR"); sidecar != "" {
		if b, err := strconv.ParseBool(sidecar); err == nil {
			c.SaveSidecar = b
		} else {
			warnInvalid("MEDIAGEN_SIDECAR", sidecar, err)
		}
	}

	if model := os.Getenv("MEDIAGEN_VIDEO_MODEL"); model != "" {
		c.VideoModel = model
	}

	if model := os.Getenv("MEDIAGEN_IMAGE_MODEL"); model != "" {
		c.ImageModel = model
	}

	if model := os.Getenv("MEDIAGEN_CHAT_MODEL"); model != "" {
		c.ChatModel = model
	}

	if model := os.Getenv("MEDIAGEN_FLUX_MODEL"); model != "" {
		c.FluxModel = model
	}

	if model := os.Getenv("MEDIAGEN_AUDIO_MODEL"); model != "" {
		c.AudioModel = model
	}

	if model := os.Getenv("MEDIAGEN_VISION_MODEL"); model != "" {
		c.VisionModel = model
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	if c.GeminiBaseURL == "" {
		return fmt.Errorf("gemini base URL cannot be empty")
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP timeout must be positive, got: %v", c.HTTPTimeout)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got: %v", c.PollInterval)
	}

	if c.PollTimeout < c.PollInterval {
		return fmt.Errorf("poll timeout (%v) must not be shorter than the poll interval (%v)", c.PollTimeout, c.PollInterval)
	}

	switch c.VideoFormat {
	case VideoFormatInline, VideoFormatContent:
	default:
		return fmt.Errorf("unsupported video format: %q", c.VideoFormat)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got: %d", c.ChunkSize)
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	return nil
}

// HasAPIKey reports whether a bearer token is configured.
func (c *Config) HasAPIKey() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// warnInvalid reports an unparsable environment value; the default is kept.
func warnInvalid(name, value string, err error) {
	logger.Warn("Ignoring invalid %s value %q: %v", name, value, err)
}
