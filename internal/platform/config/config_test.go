package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/platform/markdown"
)

func TestDecodeProfileConfig_Variant(t *testing.T) {
	t.Parallel()

	cfg, err := DecodeProfileConfig(strings.NewReader(`
faculties: [理工学部, 経済学部]
services:
  - {id: line, required: true}
  - {id: github}
bio_capabilities: extended
`))
	if err != nil {
		t.Fatalf("DecodeProfileConfig() err=%v", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() err=%v", err)
	}
	if got := reg.FacultyOptions(); len(got) != 2 || got[1] != "経済学部" {
		t.Fatalf("FacultyOptions()=%v", got)
	}
	if _, ok := reg.Service(domain.ServiceDiscord); ok {
		t.Fatalf("discord present in variant registry")
	}
	caps, _ := cfg.Capabilities()
	if caps != markdown.Extended {
		t.Fatalf("Capabilities()=%v, want extended", caps)
	}
}

func TestDecodeProfileConfig_EmptyKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := DecodeProfileConfig(strings.NewReader(""))
	if err != nil {
		t.Fatalf("DecodeProfileConfig() err=%v", err)
	}
	reg, _ := cfg.Registry()
	if len(reg.FacultyOptions()) != len(domain.DefaultFaculties) || len(reg.Services()) != len(domain.DefaultServices) {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
	if caps, _ := cfg.Capabilities(); caps != markdown.Minimal {
		t.Fatalf("Capabilities()=%v, want minimal", caps)
	}
}

func TestDecodeProfileConfig_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown key":        "faculty: [x]\n",
		"empty faculties":    "faculties: []\n",
		"service collides":   "services: [{id: name}]\n",
		"duplicate service":  "services: [{id: line}, {id: line}]\n",
		"unknown capability": "bio_capabilities: emphasis,video\n",
		"not yaml":           "faculties: [\n",
	}
	for name, doc := range cases {
		if _, err := DecodeProfileConfig(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadProfileConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte("faculties: [教育学部]\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadProfileConfigFile(path)
	if err != nil {
		t.Fatalf("LoadProfileConfigFile() err=%v", err)
	}
	if len(cfg.Faculties) != 1 || cfg.Faculties[0] != "教育学部" {
		t.Fatalf("Faculties=%v", cfg.Faculties)
	}
	if _, err := LoadProfileConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadProfileConfig_LINEChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	doc := "line:\n  channel_id: \"1650000000\"\n  channel_secret: from-file\n  redirect_uri: https://profile.example.org/cb\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("PROFILE_CONFIG_PATH", path)
	t.Setenv("LINE_CHANNEL_SECRET", "from-env")

	cfg, err := LoadProfileConfig()
	if err != nil {
		t.Fatalf("LoadProfileConfig() err=%v", err)
	}
	if cfg.LINE.ChannelID != "1650000000" || cfg.LINE.ChannelSecret != "from-env" || !cfg.LINE.Configured() {
		t.Fatalf("LINE=%+v", cfg.LINE)
	}
	if DefaultProfileConfig().LINE.Configured() {
		t.Fatalf("default config has a LINE channel")
	}
}

func TestLoadServerConfig_Env(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("IDEMPOTENCY_TTL", "90m")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("MIGRATE_ON_START", "false")

	cfg := LoadServerConfig()
	if cfg.Port != "9090" || cfg.StorageBackend != "postgres" || cfg.IdempotencyBackend != "memory" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.IdempotencyTTL != 90*time.Minute || cfg.RedisDB != 0 || cfg.MigrateOnStart {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadJWTConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_ISSUER", "iss")
	t.Setenv("JWT_AUDIENCE", "aud")
	t.Setenv("JWT_JWKS_URL", "http://jwks")
	t.Setenv("JWT_CLOCK_SKEW", "5s")

	cfg, err := LoadJWTConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadJWTConfigFromEnv() err=%v", err)
	}
	if cfg.ClockSkew != 5*time.Second || cfg.JWKSRefreshInterval != 5*time.Minute {
		t.Fatalf("cfg=%+v", cfg)
	}

	t.Setenv("JWT_CLOCK_SKEW", "soon")
	if _, err := LoadJWTConfigFromEnv(); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}
