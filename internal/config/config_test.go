package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a,http://b")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Storage.Driver != StorageLocal {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.DB.Host != "db" || cfg.DB.Port != 5432 {
		t.Fatalf("db prefix not applied: %+v", cfg.DB)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.PreviewTTL != time.Hour {
		t.Fatalf("preview ttl = %s", cfg.PreviewTTL)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Storage:              StorageConfig{Driver: StorageLocal},
		SimulationRatePerSec: 1,
		SimulationBurst:      1,
		PreviewTTL:           time.Minute,
		SweepInterval:        time.Minute,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	r2 := base
	r2.Storage = StorageConfig{Driver: StorageR2, AccountID: "acc"}
	if err := r2.Validate(); err == nil {
		t.Fatal("r2 without credentials accepted")
	}

	unknown := base
	unknown.Storage.Driver = "ftp"
	if err := unknown.Validate(); err == nil {
		t.Fatal("unknown driver accepted")
	}

	noRate := base
	noRate.SimulationBurst = 0
	if err := noRate.Validate(); err == nil {
		t.Fatal("zero burst accepted")
	}
}

func TestDSN(t *testing.T) {
	c := DBConfig{Host: "h", Port: 1, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	if got := c.DSN(); got != "host=h port=1 user=u password=p dbname=n sslmode=disable" {
		t.Fatalf("DSN = %q", got)
	}
	c.URL = "postgres://x"
	if c.DSN() != "postgres://x" {
		t.Fatal("URL not preferred")
	}
}
