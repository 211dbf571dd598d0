package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAPIConfigDefaults(t *testing.T) {
	for _, key := range []string{"API_ADDR", "ACCESS_TOKEN_TTL_MIN", "DEFAULT_TOKEN_TTL_MIN", "STORE_DRIVER", "MAX_PAGE_SIZE", "REQUIRE_AUTH_FOR_UPDATE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := LoadAPIConfig()
	if cfg.Addr != ":8000" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("unexpected access token ttl %s", cfg.AccessTokenTTL)
	}
	if cfg.DefaultTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected default token ttl %s", cfg.DefaultTokenTTL)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("unexpected store driver %q", cfg.StoreDriver)
	}
	if cfg.MaxPageSize != 100 {
		t.Fatalf("unexpected max page size %d", cfg.MaxPageSize)
	}
	if cfg.RequireAuthForUpdate {
		t.Fatalf("expected update to be open by default")
	}
}

func TestLoadAPIConfigOverrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "5")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("REQUIRE_AUTH_FOR_UPDATE", "true")
	t.Setenv("BCRYPT_COST", "not-a-number")

	cfg := LoadAPIConfig()
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("unexpected access token ttl %s", cfg.AccessTokenTTL)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("expected driver to be lowercased, got %q", cfg.StoreDriver)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.RequireAuthForUpdate {
		t.Fatalf("expected update auth to be required")
	}
	if cfg.BcryptCost != 0 {
		t.Fatalf("expected invalid cost to fall back to 0, got %d", cfg.BcryptCost)
	}
}

func TestAPIConfigValidate(t *testing.T) {
	valid := APIConfig{
		StoreDriver:     StoreDriverMemory,
		JWTSecret:       "secret",
		AccessTokenTTL:  time.Minute,
		DefaultTokenTTL: time.Minute,
		MaxPageSize:     10,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	broken := valid
	broken.JWTSecret = "  "
	broken.StoreDriver = "mysql"
	err := broken.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"JWT_SECRET", "STORE_DRIVER"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BOARD_TEST_FROM_FILE=file\nBOARD_TEST_PRESET=file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("BOARD_TEST_PRESET", "env")
	t.Cleanup(func() { os.Unsetenv("BOARD_TEST_FROM_FILE") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("BOARD_TEST_FROM_FILE"); got != "file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("BOARD_TEST_PRESET"); got != "env" {
		t.Fatalf("expected environment to win, got %q", got)
	}
}
