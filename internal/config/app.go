package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds process-level settings read from the environment.
type AppConfig struct {
	LLM      LLMConfig
	Fallback *LLMConfig
	Telegram TelegramConfig
	Server   ServerConfig
	Log      LogConfig
	Storage  StorageConfig

	// SpeakingConfigPath points at the YAML or TOML test definition.
	SpeakingConfigPath string
}

type TelegramConfig struct {
	Token       string
	RateLimit   int
	RateWindow  time.Duration
	IdleTimeout time.Duration
}

// Enabled reports whether the Telegram practice bot should run.
func (t TelegramConfig) Enabled() bool {
	return t.Token != ""
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type StorageConfig struct {
	ResultsDir string
}

// LoadAppConfig reads the environment. Call godotenv.Load beforehand if a
// .env file should be honoured.
func LoadAppConfig() *AppConfig {
	cfg := &AppConfig{
		LLM: loadLLMConfig("LLM", "gemini", "gemini-2.5-flash"),
		Telegram: TelegramConfig{
			Token:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			RateLimit:   getEnvAsInt("TELEGRAM_RATE_LIMIT", 20),
			RateWindow:  getEnvAsDuration("TELEGRAM_RATE_WINDOW", time.Minute),
			IdleTimeout: getEnvAsDuration("TELEGRAM_IDLE_TIMEOUT", 24*time.Hour),
		},
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 3000),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 2*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Storage: StorageConfig{
			ResultsDir: getEnv("RESULTS_DIR", "results"),
		},
		SpeakingConfigPath: getEnv("SPEAKING_CONFIG", "config/speaking.yaml"),
	}

	if provider := getEnv("LLM_FALLBACK_PROVIDER", ""); provider != "" {
		fallback := loadLLMConfig("LLM_FALLBACK", provider, "")
		cfg.Fallback = &fallback
	}

	return cfg
}

// SlogLevel maps the configured level name onto a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
