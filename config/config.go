package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	VoiceLive VoiceLiveConfig
	Avatar    AvatarConfig
	Redis     RedisConfig
	Tools     ToolsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:5173)
	StaticDir          string // directory with the frontend build; empty disables SPA serving
}

// VoiceLiveConfig holds the upstream Azure Voice Live connection settings.
type VoiceLiveConfig struct {
	Endpoint     string // https://<resource>.cognitiveservices.azure.com
	APIKey       string
	APIVersion   string
	Model        string
	Voice        string
	Instructions string
}

// AvatarConfig holds the avatar character parameters sent in the session configuration.
type AvatarConfig struct {
	Character    string
	Style        string
	Customized   bool
	VideoWidth   int
	VideoHeight  int
	VideoBitrate int
}

// RedisConfig holds optional Redis settings for the tool result cache.
type RedisConfig struct {
	Addr     string // empty disables the cache
	Password string
	DB       int
}

// ToolsConfig holds endpoints and credentials for the retail tool implementations.
type ToolsConfig struct {
	SearchEndpoint       string // Azure AI Search resource URL
	SearchKey            string
	SearchIndex          string
	SearchSemanticConfig string
	ShipmentOrdersURL    string // Logic App: delivery order creation
	CallLogAnalysisURL   string // Logic App: call log analysis
	EcomAPIURL           string
}

// WSURL builds the upstream realtime WebSocket URL from the resource endpoint.
func (c VoiceLiveConfig) WSURL() string {
	base := strings.TrimSuffix(c.Endpoint, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return fmt.Sprintf("%s/voice-live/realtime?api-version=%s&model=%s",
		base, url.QueryEscape(c.APIVersion), url.QueryEscape(c.Model))
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			StaticDir:          getEnv("STATIC_DIR", ""),
		},
		VoiceLive: VoiceLiveConfig{
			Endpoint:     getEnv("AZURE_VOICE_LIVE_ENDPOINT", ""),
			APIKey:       getEnv("AZURE_VOICE_LIVE_API_KEY", ""),
			APIVersion:   getEnv("AZURE_VOICE_LIVE_API_VERSION", "2025-05-01-preview"),
			Model:        getEnv("VOICE_LIVE_MODEL", "gpt-realtime"),
			Voice:        getEnv("VOICE_LIVE_VOICE", "en-US-AvaMultilingualNeural"),
			Instructions: getEnv("VOICE_LIVE_INSTRUCTIONS", defaultInstructions),
		},
		Avatar: AvatarConfig{
			Character:    getEnv("AVATAR_CHARACTER", "lisa"),
			Style:        getEnv("AVATAR_STYLE", "casual-sitting"),
			Customized:   getEnv("AVATAR_CUSTOMIZED", "false") == "true",
			VideoWidth:   getEnvInt("AVATAR_VIDEO_WIDTH", 1280),
			VideoHeight:  getEnvInt("AVATAR_VIDEO_HEIGHT", 720),
			VideoBitrate: getEnvInt("AVATAR_VIDEO_BITRATE", 2000000),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Tools: ToolsConfig{
			SearchEndpoint:       getEnv("ai_search_url", ""),
			SearchKey:            getEnv("ai_search_key", ""),
			SearchIndex:          getEnv("ai_index_name", ""),
			SearchSemanticConfig: getEnv("ai_semantic_config", ""),
			ShipmentOrdersURL:    getEnv("logic_app_url_shipment_orders", ""),
			CallLogAnalysisURL:   getEnv("logic_app_url_call_log_analysis", ""),
			EcomAPIURL:           getEnv("ecom_api_url", ""),
		},
	}

	if cfg.VoiceLive.Endpoint == "" || cfg.VoiceLive.APIKey == "" {
		return nil, fmt.Errorf("AZURE_VOICE_LIVE_ENDPOINT and AZURE_VOICE_LIVE_API_KEY are required")
	}
	return cfg, nil
}

const defaultInstructions = "You are a helpful voice assistant for Contoso retail. " +
	"Answer questions about policies and products, place orders and delivery requests " +
	"using the available functions, and keep spoken responses short and natural."

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
