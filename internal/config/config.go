package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries everything the process reads from the environment.
// The similarity thresholds are empirical constants tied to the embedding
// model in use, so they are configuration rather than code.
type Config struct {
	DatabaseURL string
	HTTPAddr    string

	OpenAIKey      string
	OpenAIBaseURL  string // empty = api.openai.com
	ChatModel      string
	EmbeddingModel string

	// Maximum acceptable search distance when matching a quote request
	// to a catalog item.
	QuoteMaxDistance float64
	// Maximum acceptable top-result distance before a catalog question
	// is considered answerable from the retrieved items.
	QAMaxDistance float64

	// Route duvida_geral/outro to the general-chat responder instead of
	// escalating. Off by default; see DESIGN.md.
	GeneralChatEnabled bool

	WhatsAppVerifyToken string
	WhatsAppAccessToken string

	// whatsmeow bridge (direct multidevice connection instead of the
	// Cloud API webhook).
	BridgeEnabled bool
	BridgeDBPath  string
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	// Missing .env is fine in production; env vars win either way.
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		HTTPAddr:            getEnv("HTTP_ADDR", "0.0.0.0:8080"),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		ChatModel:           getEnv("OPENAI_CHAT_MODEL", "gpt-5"),
		EmbeddingModel:      getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", "changeme"),
		WhatsAppAccessToken: getEnv("WHATSAPP_ACCESS_TOKEN", "changeme"),
		BridgeDBPath:        getEnv("WHATSAPP_BRIDGE_DB", "devices/anaterra.db"),
	}

	var err error
	if cfg.QuoteMaxDistance, err = getFloat("QUOTE_MAX_DISTANCE", 0.98); err != nil {
		return Config{}, err
	}
	if cfg.QAMaxDistance, err = getFloat("QA_MAX_DISTANCE", 0.8); err != nil {
		return Config{}, err
	}
	if cfg.GeneralChatEnabled, err = getBool("GENERAL_CHAT_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.BridgeEnabled, err = getBool("WHATSAPP_BRIDGE_ENABLED", false); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
