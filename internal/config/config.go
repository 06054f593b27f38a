// Package config resolves client settings from an optional .env file and
// the environment. Flags in main override whatever is loaded here.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	DefaultBaseURL  = "http://127.0.0.1:8000"
	DefaultLogFile  = "sift.log"
	DefaultLogLevel = "info"
)

type Config struct {
	BaseURL             string
	APIToken            string
	ConversationID      string
	SessionID           string
	DocumentIDs         []string
	ContextLimit        int
	UseSemanticSearch   bool
	UseStructuredFilter bool
	LogFile             string
	LogLevel            string
	AltScreen           bool
}

// Load reads .env (best effort) and the SIFT_* environment. A missing token
// is not an error here; the API client enforces that before any request.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		BaseURL:             envOr("SIFT_API_URL", DefaultBaseURL),
		APIToken:            strings.TrimSpace(os.Getenv("SIFT_API_TOKEN")),
		ConversationID:      strings.TrimSpace(os.Getenv("SIFT_CONVERSATION_ID")),
		SessionID:           envOr("SIFT_SESSION_ID", uuid.NewString()),
		DocumentIDs:         splitList(os.Getenv("SIFT_DOCUMENT_IDS")),
		ContextLimit:        envInt("SIFT_CONTEXT_LIMIT", 0),
		UseSemanticSearch:   envBool("SIFT_SEMANTIC_SEARCH", true),
		UseStructuredFilter: envBool("SIFT_STRUCTURED_FILTER", false),
		LogFile:             envOr("SIFT_LOG_FILE", DefaultLogFile),
		LogLevel:            envOr("SIFT_LOG_LEVEL", DefaultLogLevel),
		AltScreen:           envBool("SIFT_ALT_SCREEN", true),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
