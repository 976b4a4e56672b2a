package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Kafka    KafkaConfig
	Remote   RemoteAuthConfig
	Admin    AdminConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32

	// ApplicationName is reported to Postgres as application_name.
	ApplicationName string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines token and password parameters.
type AuthConfig struct {
	JWTSecret             string
	JWTRefreshSecret      string
	AccessTokenTTLMinutes int
	RefreshTokenTTLHours  int
	ServiceTokenTTLHours  int
	BcryptCost            int
	RevocationEnabled     bool

	// UseCookie makes the user gate read the access token from CookieName
	// instead of the Authorization header.
	UseCookie  bool
	CookieName string
}

// KafkaConfig configures the user-events publisher. An empty broker list
// selects the in-process dispatcher.
type KafkaConfig struct {
	Brokers               []string
	ClientID              string
	UserEventsTopic       string
	PublishTimeoutSeconds int
}

// RemoteAuthConfig is used by services that delegate verification to the
// auth service instead of holding the signing secret.
type RemoteAuthConfig struct {
	BaseURL        string
	TimeoutSeconds int
	ServiceName    string
	ServiceToken   string

	// RenewMinutes is how often a configured service token is exchanged for
	// a fresh one. Zero disables renewal.
	RenewMinutes int
}

// AdminConfig controls the admin gateway.
type AdminConfig struct {
	UseCookie  bool
	CookieName string
}

// EnvDevelopment is the only APP_ENV value that falls back to built-in secrets.
const EnvDevelopment = "development"

// Load reads configuration from environment variables, applying defaults where
// possible, and requires usable signing secrets.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Auth.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDelegated is Load for services that verify through the auth service
// and never see the signing secrets.
func LoadDelegated() (*Config, error) {
	return load()
}

func load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	appName := getEnv("APP_NAME", "auth-service")
	env := getEnv("APP_ENV", "development")

	// Well-known secrets are only acceptable on a developer machine.
	accessSecret, refreshSecret := os.Getenv("AUTH_JWT_SECRET"), os.Getenv("AUTH_JWT_REFRESH_SECRET")
	if env == EnvDevelopment {
		accessSecret = getEnv("AUTH_JWT_SECRET", "dev-access-secret")
		refreshSecret = getEnv("AUTH_JWT_REFRESH_SECRET", "dev-refresh-secret")
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  appName,
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			MaxConns:        maxConns,
			MinConns:        minConns,
			RunMigrations:   runMigrations,
			ConnMaxIdleSec:  connMaxIdle,
			ConnMaxLifeSec:  connMaxLife,
			ApplicationName: appName,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             accessSecret,
			JWTRefreshSecret:      refreshSecret,
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			RefreshTokenTTLHours:  getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_HOURS", 7*24),
			ServiceTokenTTLHours:  getEnvAsInt("AUTH_SERVICE_TOKEN_TTL_HOURS", 24),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 10),
			RevocationEnabled:     getEnvAsBool("AUTH_REVOCATION_ENABLED", false),
			UseCookie:             getEnvAsBool("AUTH_USE_COOKIE", false),
			CookieName:            getEnv("AUTH_COOKIE_NAME", "auth_token"),
		},
		Kafka: KafkaConfig{
			Brokers:               getEnvAsList("KAFKA_BROKERS"),
			ClientID:              getEnv("KAFKA_CLIENT_ID", "auth-service"),
			UserEventsTopic:       getEnv("KAFKA_USER_EVENTS_TOPIC", "user-events"),
			PublishTimeoutSeconds: getEnvAsInt("KAFKA_PUBLISH_TIMEOUT_SECONDS", 5),
		},
		Remote: RemoteAuthConfig{
			BaseURL:        getEnv("AUTH_SERVICE_URL", "http://auth-service:8000"),
			TimeoutSeconds: getEnvAsInt("AUTH_CLIENT_TIMEOUT_SECONDS", 5),
			ServiceName:    getEnv("SERVICE_NAME", ""),
			ServiceToken:   os.Getenv("SERVICE_TOKEN"),
			RenewMinutes:   getEnvAsInt("SERVICE_TOKEN_RENEW_MINUTES", 12*60),
		},
		Admin: AdminConfig{
			UseCookie:  getEnvAsBool("ADMIN_USE_COOKIE", false),
			CookieName: getEnv("ADMIN_COOKIE_NAME", "auth_token"),
		},
	}
	return cfg, nil
}

// Validate checks that both signing secrets are set and not shared.
func (a AuthConfig) Validate() error {
	if strings.TrimSpace(a.JWTSecret) == "" || strings.TrimSpace(a.JWTRefreshSecret) == "" {
		return errors.New("AUTH_JWT_SECRET and AUTH_JWT_REFRESH_SECRET are required")
	}
	if a.JWTSecret == a.JWTRefreshSecret {
		return errors.New("AUTH_JWT_SECRET and AUTH_JWT_REFRESH_SECRET must differ")
	}
	return nil
}

// AccessTTL returns the access token lifetime.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTTL returns the refresh token lifetime.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTokenTTLHours) * time.Hour
}

// ServiceTTL returns the service token lifetime.
func (a AuthConfig) ServiceTTL() time.Duration {
	return time.Duration(a.ServiceTokenTTLHours) * time.Hour
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsDevelopment reports whether the service runs with developer defaults.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == EnvDevelopment
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PublishTimeout bounds a single event publish.
func (k KafkaConfig) PublishTimeout() time.Duration {
	if k.PublishTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(k.PublishTimeoutSeconds) * time.Second
}

// RenewInterval returns how often the service token is renewed, or zero.
func (r RemoteAuthConfig) RenewInterval() time.Duration {
	if r.RenewMinutes <= 0 {
		return 0
	}
	return time.Duration(r.RenewMinutes) * time.Minute
}

// Timeout bounds a single round trip to the auth service.
func (r RemoteAuthConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
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

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
