package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration for the sync service. It is an
// explicit value handed to constructors; nothing reads process state after
// Load returns.
type Config struct {
	App      AppConfig
	Source   SourceConfig
	Target   TargetConfig
	Sync     SyncConfig
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
}

// AppConfig controls application level behavior.
type AppConfig struct {
	Name    string
	Env     string
	Version string
}

// SourceConfig holds source directory (Google Workspace) settings.
type SourceConfig struct {
	Domain                string
	SuperAdminEmail       string
	ServiceAccountKeyPath string
}

// TargetConfig holds target identity system (SCIM + native API) settings.
type TargetConfig struct {
	APIToken     string
	SCIMBaseURL  string
	NativeAPIURL string
	GroupPrefix  string
}

// SyncConfig controls reconciliation behavior.
type SyncConfig struct {
	Groups               []string
	GroupsFile           string
	DryRun               bool
	ManagedIDPattern     string
	EnrollmentGroupEmail string
	EnrollmentGroupName  string
	RetryAttempts        int
	RetryDelaySeconds    int
}

// ServerConfig contains server mode settings.
type ServerConfig struct {
	Host                  string
	Port                  string
	AuthSecret            string
	TokenTTLMinutes       int
	ScheduleEnabled       bool
	Schedule              string
	RequestTimeoutSeconds int
}

// PostgresConfig holds audit store connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds pass lock / result cache connection values. An empty
// Addr disables Redis entirely.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	LockTTLSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// groupsFile is the YAML shape of an external tracked-groups file.
type groupsFile struct {
	Groups []string `yaml:"groups"`
}

// Load reads configuration from environment variables, applying defaults
// where possible. Tracked groups come from SYNC_GROUPS (comma separated) or,
// if set, the YAML file named by SYNC_GROUPS_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "identity-sync"),
			Env:     getEnv("APP_ENV", "development"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Source: SourceConfig{
			Domain:                os.Getenv("SOURCE_DOMAIN"),
			SuperAdminEmail:       os.Getenv("SOURCE_ADMIN_EMAIL"),
			ServiceAccountKeyPath: os.Getenv("SOURCE_SERVICE_ACCOUNT_KEY"),
		},
		Target: TargetConfig{
			APIToken:     os.Getenv("TARGET_API_TOKEN"),
			SCIMBaseURL:  getEnv("TARGET_SCIM_BASE_URL", "https://api.byndid.com/scim/v2"),
			NativeAPIURL: getEnv("TARGET_NATIVE_API_URL", "https://api.byndid.com/v2"),
			GroupPrefix:  getEnv("TARGET_GROUP_PREFIX", "GoogleSCIM_"),
		},
		Sync: SyncConfig{
			Groups:               splitList(os.Getenv("SYNC_GROUPS")),
			GroupsFile:           os.Getenv("SYNC_GROUPS_FILE"),
			DryRun:               getEnvAsBool("SYNC_DRY_RUN", false),
			ManagedIDPattern:     getEnv("SYNC_MANAGED_ID_PATTERN", `^[0-9]{21}$`),
			EnrollmentGroupEmail: os.Getenv("SYNC_ENROLLMENT_GROUP_EMAIL"),
			EnrollmentGroupName:  getEnv("SYNC_ENROLLMENT_GROUP_NAME", "Credential Enrolled"),
			RetryAttempts:        getEnvAsInt("SYNC_RETRY_ATTEMPTS", 2),
			RetryDelaySeconds:    getEnvAsInt("SYNC_RETRY_DELAY_SECONDS", 2),
		},
		Server: ServerConfig{
			Host:                  getEnv("SERVER_HOST", "0.0.0.0"),
			Port:                  getEnv("SERVER_PORT", "8080"),
			AuthSecret:            getEnv("SERVER_AUTH_SECRET", "dev-secret"),
			TokenTTLMinutes:       getEnvAsInt("SERVER_TOKEN_TTL_MINUTES", 60),
			ScheduleEnabled:       getEnvAsBool("SERVER_SCHEDULE_ENABLED", false),
			Schedule:              getEnv("SERVER_SCHEDULE", "0 */6 * * *"),
			RequestTimeoutSeconds: getEnvAsInt("SERVER_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:           os.Getenv("REDIS_ADDR"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             redisDB,
			LockTTLSeconds: getEnvAsInt("REDIS_LOCK_TTL_SECONDS", 1800),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.Sync.GroupsFile != "" {
		groups, err := loadGroupsFile(cfg.Sync.GroupsFile)
		if err != nil {
			return nil, err
		}
		cfg.Sync.Groups = groups
	}

	if cfg.Sync.EnrollmentGroupEmail == "" && cfg.Source.Domain != "" {
		cfg.Sync.EnrollmentGroupEmail = "credential-enrolled@" + cfg.Source.Domain
	}

	return cfg, nil
}

// Validate checks required fields and the managed-id pattern.
func (c *Config) Validate() error {
	var missing []string
	if c.Source.Domain == "" {
		missing = append(missing, "SOURCE_DOMAIN")
	}
	if c.Source.SuperAdminEmail == "" {
		missing = append(missing, "SOURCE_ADMIN_EMAIL")
	}
	if c.Source.ServiceAccountKeyPath == "" {
		missing = append(missing, "SOURCE_SERVICE_ACCOUNT_KEY")
	}
	if c.Target.APIToken == "" {
		missing = append(missing, "TARGET_API_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if len(c.Sync.Groups) == 0 {
		return fmt.Errorf("no tracked groups configured (SYNC_GROUPS or SYNC_GROUPS_FILE)")
	}
	for _, g := range c.Sync.Groups {
		if !strings.Contains(g, "@") {
			return fmt.Errorf("tracked group %q is not an email address", g)
		}
	}

	if _, err := regexp.Compile(c.Sync.ManagedIDPattern); err != nil {
		return fmt.Errorf("invalid SYNC_MANAGED_ID_PATTERN: %w", err)
	}

	return nil
}

// Addr returns the HTTP bind address for server mode.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (s ServerConfig) RequestTimeout() time.Duration {
	if s.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// RetryDelay returns the delay between retries of transient failures.
func (s SyncConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds) * time.Second
}

// LockTTL returns how long a pass lock is held before expiring.
func (r RedisConfig) LockTTL() time.Duration {
	return time.Duration(r.LockTTLSeconds) * time.Second
}

func loadGroupsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read groups file %s: %w", path, err)
	}
	var gf groupsFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parse groups file %s: %w", path, err)
	}
	return gf.Groups, nil
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
