package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Default model ids per provider: {ocr, text}.
var defaultModels = map[string][2]string{
	ProviderOpenAI:    {"Qwen/Qwen2-VL-72B-Instruct", "Qwen/Qwen2.5-72B-Instruct"},
	ProviderAnthropic: {"claude-sonnet-4-20250514", "claude-sonnet-4-20250514"},
}

// Account is a local login. Hash is a bcrypt hash.
type Account struct {
	Role string
	Hash string
}

type Config struct {
	Mode     Mode
	HTTPAddr string

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	LogLevel  string
	LogFormat string // json|text

	// reconciliation
	IDLength        int
	MinSubmission   int64
	IgnoredPrefixes []string
	MaxUploadMB     int64
	SessionTTL      time.Duration

	AuthEnabled    bool
	AuthHMACSecret string
	Accounts       map[string]Account // username -> account

	// AI assist
	AssistProvider    string // openai|anthropic
	AssistBaseURL     string
	AssistAPIKey      string
	AnthropicAPIKey   string
	AssistOCRModel    string
	AssistTextModel   string
	AssistOCRTimeout  time.Duration
	AssistTextTimeout time.Duration
	AssistRenderDPI   float64

	ArchiveEnabled bool
	DBDriver       string
	DBDSN          string

	ExportDir    string
	OTLPEndpoint string
	ChromePath   string
}

// Load reads .env from the working directory when present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	provider := strings.ToLower(envOr("ASSIST_PROVIDER", ProviderOpenAI))
	models := defaultModels[provider]
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	c := Config{
		Mode:               mode,
		HTTPAddr:           addr,
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://handin.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:5173"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          envOr("LOG_FORMAT", "json"),

		IDLength:        int(envInt("ID_LENGTH", 9)),
		MinSubmission:   envInt("MIN_SUBMISSION_BYTES", 100),
		IgnoredPrefixes: csvOr("IGNORED_PREFIXES", "~$,."),
		MaxUploadMB:     envInt("MAX_UPLOAD_MB", 256),
		SessionTTL:      envDuration("SESSION_TTL", 2*time.Hour),

		AuthEnabled:    envBool("AUTH_ENABLED", mode == ModeOnline),
		AuthHMACSecret: os.Getenv("AUTH_HMAC_SECRET"),
		Accounts:       map[string]Account{},

		AssistProvider:    provider,
		AssistBaseURL:     envOr("ASSIST_BASE_URL", "https://api.siliconflow.cn/v1"),
		AssistAPIKey:      os.Getenv("ASSIST_API_KEY"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AssistOCRModel:    envOr("ASSIST_OCR_MODEL", models[0]),
		AssistTextModel:   envOr("ASSIST_TEXT_MODEL", models[1]),
		AssistOCRTimeout:  envDuration("ASSIST_OCR_TIMEOUT", 180*time.Second),
		AssistTextTimeout: envDuration("ASSIST_TEXT_TIMEOUT", 60*time.Second),
		AssistRenderDPI:   float64(envInt("ASSIST_RENDER_DPI", 144)),

		ArchiveEnabled: envBool("ARCHIVE_ENABLED", false),
		DBDriver:       envOr("DB_DRIVER", "sqlite"),
		DBDSN:          envOr("DB_DSN", ""),

		ExportDir:    envOr("EXPORT_DIR", "./data"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ChromePath:   os.Getenv("CHROME_PATH"),
	}
	if h := os.Getenv("ADMIN_PASS_HASH"); h != "" {
		c.Accounts[envOr("ADMIN_USER", "admin")] = Account{Role: "admin", Hash: h}
	}
	addAccounts(c.Accounts, "INSTRUCTOR_USERS", "instructor")
	addAccounts(c.Accounts, "ASSISTANT_USERS", "assistant")
	return c
}

// AssistEnabled reports whether a credential for the chosen provider is set.
func (c Config) AssistEnabled() bool {
	if c.AssistProvider == ProviderAnthropic {
		return c.AnthropicAPIKey != ""
	}
	return c.AssistAPIKey != ""
}

func (c Config) Validate() error {
	var errs []error
	if c.Mode != ModeOffline && c.Mode != ModeOnline {
		errs = append(errs, fmt.Errorf("MODE must be offline or online, got %q", c.Mode))
	}
	if c.AuthEnabled && c.AuthHMACSecret == "" {
		errs = append(errs, errors.New("AUTH_HMAC_SECRET is required when auth is enabled"))
	}
	if _, ok := defaultModels[c.AssistProvider]; !ok {
		errs = append(errs, fmt.Errorf("ASSIST_PROVIDER must be openai or anthropic, got %q", c.AssistProvider))
	}
	if c.AssistEnabled() && (c.AssistOCRModel == "" || c.AssistTextModel == "") {
		errs = append(errs, errors.New("ASSIST_OCR_MODEL and ASSIST_TEXT_MODEL must be set"))
	}
	if c.ArchiveEnabled && c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver))
	}
	return errors.Join(errs...)
}

func addAccounts(dst map[string]Account, key, role string) {
	for _, entry := range csvOr(key, "") {
		user, hash, ok := strings.Cut(entry, ":")
		if !ok || user == "" || hash == "" {
			slog.Warn("config: ignoring malformed account entry", "key", key)
			continue
		}
		if _, exists := dst[user]; exists {
			continue
		}
		dst[user] = Account{Role: role, Hash: hash}
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int64) int64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		slog.Warn("config: invalid value, using default", "key", k, "value", v, "default", def)
		return def
	}
	return n
}
func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		slog.Warn("config: invalid value, using default", "key", k, "value", v, "default", def)
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
