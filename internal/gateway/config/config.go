package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ultraflow/internal/llmclient"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string
	LLM      LLMConfig
	Extract  ExtractConfig
	CORS     CORSConfig
	Render   RenderConfig
}

type LLMConfig struct {
	Provider string
	Model    string
	Level    string

	GeminiAPIKey string
	GeminiTier   string
	GroqAPIKey   string
	GroqTier     string
	GroqBaseURL  string

	Timeout     time.Duration
	RPS         float64
	Burst       int
	MaxAttempts int
	RetryDelay  time.Duration
	Breaker     BreakerConfig

	// ModelsFile points at an optional YAML catalog override.
	ModelsFile string
}

type BreakerConfig struct {
	Enabled          bool
	FailureThreshold float64
	MinRequests      uint32
	OpenTimeout      time.Duration
}

type ExtractConfig struct {
	MaxReprompts int
}

type CORSConfig struct {
	AllowedOrigins []string
}

// RenderConfig tunes the Mermaid text. InitDirective is the JSON body of a
// %%{init: ...}%% line; Indent is the statement indentation in spaces.
type RenderConfig struct {
	InitDirective string
	Indent        int
}

// Load reads .env, the environment and args, in increasing priority.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("api", flag.ContinueOnError)
	port := fs.String("port", ":8081", "server port")
	provider := fs.String("provider", "", "llm provider (gemini, groq, fake)")
	modelsFile := fs.String("models-file", "", "yaml model catalog overrides")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if envPort := os.Getenv("PORT"); envPort != "" && !flagSet(fs, "port") {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), "local")

	llm, err := loadLLMConfig(env)
	if err != nil {
		return nil, err
	}
	if p := strings.TrimSpace(*provider); p != "" {
		llm.Provider = strings.ToLower(p)
	}
	if f := strings.TrimSpace(*modelsFile); f != "" {
		llm.ModelsFile = f
	}

	reprompts, err := envInt("EXTRACT_MAX_REPROMPTS", 1)
	if err != nil {
		return nil, err
	}
	if reprompts < 0 {
		return nil, fmt.Errorf("EXTRACT_MAX_REPROMPTS must not be negative, got %d", reprompts)
	}

	if err := llm.Validate(); err != nil {
		return nil, err
	}

	rc, err := loadRenderConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:     *port,
		Env:      env,
		LogLevel: firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info"),
		LLM:      llm,
		Extract:  ExtractConfig{MaxReprompts: reprompts},
		CORS:     CORSConfig{AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))},
		Render:   rc,
	}, nil
}

// Validate checks that the selected provider has its credentials. The offline
// fake needs none.
func (c LLMConfig) Validate() error {
	switch {
	case llmclient.IsFakeProvider(c.Provider):
		return nil
	case c.Provider == "gemini" && c.GeminiAPIKey == "":
		return errors.New("GEMINI_API_KEY is required when the provider is gemini")
	case c.Provider == "groq" && c.GroqAPIKey == "":
		return errors.New("GROQ_API_KEY is required when the provider is groq")
	}
	return nil
}

func loadRenderConfig() (RenderConfig, error) {
	rc := RenderConfig{InitDirective: strings.TrimSpace(os.Getenv("MERMAID_INIT"))}
	if rc.InitDirective != "" && (!strings.HasPrefix(rc.InitDirective, "{") || !json.Valid([]byte(rc.InitDirective))) {
		return rc, fmt.Errorf("MERMAID_INIT must be a JSON object, got %q", rc.InitDirective)
	}
	indent, err := envInt("MERMAID_INDENT", 0)
	if err != nil {
		return rc, err
	}
	if indent < 0 || indent > 8 {
		return rc, fmt.Errorf("MERMAID_INDENT must be between 0 and 8, got %d", indent)
	}
	rc.Indent = indent
	return rc, nil
}

func loadLLMConfig(env string) (LLMConfig, error) {
	cfg := LLMConfig{
		Model:        strings.TrimSpace(os.Getenv("LLM_MODEL")),
		Level:        strings.ToLower(strings.TrimSpace(os.Getenv("LLM_LEVEL"))),
		GeminiAPIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiTier:   strings.TrimSpace(os.Getenv("GEMINI_TIER")),
		GroqAPIKey:   strings.TrimSpace(os.Getenv("GROQ_API_KEY")),
		GroqTier:     strings.TrimSpace(os.Getenv("GROQ_TIER")),
		GroqBaseURL:  strings.TrimSpace(os.Getenv("GROQ_BASE_URL")),
		ModelsFile:   strings.TrimSpace(os.Getenv("ULTRAFLOW_MODELS_FILE")),
	}
	cfg.Provider = strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_PROVIDER")), defaultProvider(env, cfg)))

	var err error
	if cfg.Timeout, err = envDuration("LLM_TIMEOUT", 45*time.Second); err != nil {
		return cfg, err
	}
	if cfg.RPS, err = envFloat("LLM_RPS", 0); err != nil {
		return cfg, err
	}
	if cfg.Burst, err = envInt("LLM_BURST", 1); err != nil {
		return cfg, err
	}
	if cfg.MaxAttempts, err = envInt("LLM_MAX_ATTEMPTS", 1); err != nil {
		return cfg, err
	}
	if cfg.RetryDelay, err = envDuration("LLM_RETRY_DELAY", 500*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.Breaker.Enabled, err = envBool("LLM_BREAKER_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.Breaker.FailureThreshold, err = envFloat("LLM_BREAKER_FAILURE_RATIO", 0.6); err != nil {
		return cfg, err
	}
	minReq, err := envInt("LLM_BREAKER_MIN_REQUESTS", 5)
	if err != nil {
		return cfg, err
	}
	cfg.Breaker.MinRequests = uint32(max(minReq, 1))
	if cfg.Breaker.OpenTimeout, err = envDuration("LLM_BREAKER_OPEN_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// defaultProvider picks a backend from whichever key is present. Local
// environments without keys fall back to the offline fake.
func defaultProvider(env string, cfg LLMConfig) string {
	switch {
	case cfg.GeminiAPIKey != "":
		return "gemini"
	case cfg.GroqAPIKey != "":
		return "groq"
	case strings.EqualFold(env, "local"), strings.EqualFold(env, "test"):
		return "fake"
	default:
		return "gemini"
	}
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

// envDuration accepts Go durations ("30s") or a bare number of seconds.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
