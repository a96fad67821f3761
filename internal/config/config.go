package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewComposerConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	StoreID     string

	ComposerConfigPath string

	Authority AuthorityConfig
	Drafts    DraftConfig

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

// AuthorityConfig locates the remote system of record and, for the
// reference server, where it listens.
type AuthorityConfig struct {
	BaseURL         string
	Token           string
	JWTSecret       string
	Subject         string
	Timeout         time.Duration
	Addr            string
	CatalogSeedPath string
	ApproverRoles   []RoleAssignment

	RateLimit RateLimitConfig
}

// RoleAssignment places a subject in an approver role.
type RoleAssignment struct {
	Subject string
	Role    string
}

// RateLimitConfig throttles autosave writes per order and serializes
// lifecycle transitions across authority replicas.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AutosaveRate  float64
	AutosaveBurst int
	TransitionTTL time.Duration
}

type DraftConfig struct {
	Store         string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
	PurgeInterval time.Duration
}

const (
	DraftStoreSQLite = "sqlite"
	DraftStoreRedis  = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:            getenv("APP_SERVICE", "pocomposer"),
		AppVersion:         getenv("APP_VERSION", "0.1.0"),
		Environment:        getenv("ENVIRONMENT", "development"),
		StoreID:            strings.TrimSpace(getenv("STORE_ID", "")),
		ComposerConfigPath: strings.TrimSpace(getenv("COMPOSER_CONFIG", "")),
		Authority: AuthorityConfig{
			BaseURL:         strings.TrimRight(strings.TrimSpace(getenv("AUTHORITY_BASE_URL", "http://localhost:8080")), "/"),
			Token:           strings.TrimSpace(getenv("AUTHORITY_TOKEN", "")),
			JWTSecret:       strings.TrimSpace(getenv("AUTHORITY_JWT_SECRET", "")),
			Subject:         strings.TrimSpace(getenv("AUTHORITY_SUBJECT", "")),
			Timeout:         time.Duration(getenvInt64("AUTHORITY_TIMEOUT_MS", 10000)) * time.Millisecond,
			Addr:            getenv("AUTHORITY_ADDR", ":8080"),
			CatalogSeedPath: strings.TrimSpace(getenv("AUTHORITY_CATALOG_SEED", "")),
			ApproverRoles:   parseRoleAssignments(getenv("AUTHORITY_APPROVER_ROLES", "")),
			RateLimit: RateLimitConfig{
				Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
				RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
				RedisPassword: strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
				RedisDB:       int(getenvInt64("RATE_LIMIT_REDIS_DB", 0)),
				AutosaveRate:  getenvFloat("RATE_LIMIT_AUTOSAVE_RATE", 1),
				AutosaveBurst: int(getenvInt64("RATE_LIMIT_AUTOSAVE_BURST", 5)),
				TransitionTTL: time.Duration(getenvInt64("RATE_LIMIT_TRANSITION_TTL_SECONDS", 30)) * time.Second,
			},
		},
		Drafts: DraftConfig{
			Store:         normalizeDraftStore(getenv("DRAFT_STORE", DraftStoreSQLite)),
			SQLitePath:    getenv("DRAFT_SQLITE_PATH", "drafts.db"),
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:       int(getenvInt64("REDIS_DB", 0)),
			TTL:           time.Duration(getenvInt64("DRAFT_TTL_HOURS", 0)) * time.Hour,
			PurgeInterval: time.Duration(getenvInt64("DRAFT_PURGE_INTERVAL_MINUTES", 60)) * time.Minute,
		},
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "authority.db"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 3600)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 600)),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func normalizeDraftStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case DraftStoreRedis:
		return DraftStoreRedis
	default:
		return DraftStoreSQLite
	}
}

// parseRoleAssignments reads "alice=manager,bob=manager". Malformed pairs
// are skipped.
func parseRoleAssignments(raw string) []RoleAssignment {
	var out []RoleAssignment
	for _, pair := range strings.Split(raw, ",") {
		subject, role, ok := strings.Cut(pair, "=")
		subject, role = strings.TrimSpace(subject), strings.TrimSpace(role)
		if !ok || subject == "" || role == "" {
			continue
		}
		out = append(out, RoleAssignment{Subject: subject, Role: role})
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
