package config

import (
	"errors"
	"strings"
	"time"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment          string
	Addr                 string
	StoreDriver          string
	DatabaseURL          string
	MigrationsDir        string
	JWTSecret            string
	JWTIssuer            string
	AccessTokenTTL       time.Duration
	DefaultTokenTTL      time.Duration
	BcryptCost           int
	LogLevel             string
	CORSAllowedOrigins   []string
	CacheRedisAddr       string
	CacheRedisPass       string
	CacheRedisDB         int
	CacheTTL             time.Duration
	MaxPageSize          int
	RequireAuthForUpdate bool
}

// Store drivers understood by the API entrypoint.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:          GetString("APP_ENV", "development"),
		Addr:                 GetString("API_ADDR", ":8000"),
		StoreDriver:          strings.ToLower(GetString("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:          GetString("DATABASE_URL", "postgres://board:board@db:5432/board?sslmode=disable"),
		MigrationsDir:        GetString("DB_MIGRATIONS_DIR", "migrations"),
		JWTSecret:            GetString("JWT_SECRET", ""),
		JWTIssuer:            GetString("JWT_ISSUER", "messageboard"),
		AccessTokenTTL:       time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 30)) * time.Minute,
		DefaultTokenTTL:      time.Duration(GetInt("DEFAULT_TOKEN_TTL_MIN", 15)) * time.Minute,
		BcryptCost:           GetInt("BCRYPT_COST", 0),
		LogLevel:             GetString("LOG_LEVEL", "info"),
		CORSAllowedOrigins:   GetList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		CacheRedisAddr:       GetString("CACHE_REDIS_ADDR", ""),
		CacheRedisPass:       GetString("CACHE_REDIS_PASSWORD", ""),
		CacheRedisDB:         GetInt("CACHE_REDIS_DB", 0),
		CacheTTL:             time.Duration(GetInt("CACHE_TTL_SECONDS", 30)) * time.Second,
		MaxPageSize:          GetInt("MAX_PAGE_SIZE", 100),
		RequireAuthForUpdate: GetBool("REQUIRE_AUTH_FOR_UPDATE", false),
	}
}

// Validate reports configuration that would leave the API unusable.
func (c APIConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL_MIN must be positive"))
	}
	if c.DefaultTokenTTL <= 0 {
		errs = append(errs, errors.New("DEFAULT_TOKEN_TTL_MIN must be positive"))
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL must be set for the postgres store"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, errors.New("STORE_DRIVER must be postgres or memory"))
	}
	if c.MaxPageSize <= 0 {
		errs = append(errs, errors.New("MAX_PAGE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}
