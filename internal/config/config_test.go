package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func standaloneConfig() *Config {
	cfg := Defaults()
	cfg.Mode = "standalone"
	cfg.LogLevel = "info"
	return &cfg
}

func TestValidateStandaloneSkipsChainSections(t *testing.T) {
	cfg := standaloneConfig()
	// No wallet, RPC, postgres, or redis configured at all.
	cfg.Postgres = PostgresConfig{}
	cfg.Redis = RedisConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("standalone config should validate: %v", err)
	}
}

func TestValidateChainModeRequiresCredentials(t *testing.T) {
	cfg := standaloneConfig()
	cfg.Mode = "full"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure for full mode without chain config")
	}
	for _, want := range []string{"wallet", "rpc_url", "oracle_address"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestValidateRejectsBadAdminAddress(t *testing.T) {
	cfg := standaloneConfig()
	cfg.Adapter.Admins = []string{"not-an-address"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "admin") {
		t.Fatalf("expected admin address error, got %v", err)
	}
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := standaloneConfig()
	cfg.Archive.Enabled = true
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "s3") {
		t.Fatalf("expected s3 error when archive enabled, got %v", err)
	}
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := standaloneConfig()
	cfg.Mode = "turbo"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("expected unknown-mode error, got %v", err)
	}
}

func TestNeedsChain(t *testing.T) {
	for mode, want := range map[string]bool{
		"serve": true, "worker": true, "full": true, "standalone": false,
	} {
		cfg := Config{Mode: mode}
		if got := cfg.NeedsChain(); got != want {
			t.Errorf("NeedsChain(%s) = %v, want %v", mode, got, want)
		}
	}
}

func TestLoadAppliesTOMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	toml := `
mode = "standalone"
log_level = "debug"

[server]
port = 9100

[worker]
poll_interval = "30s"
`
	if err := os.WriteFile(path, []byte(toml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("OOADAPTER_SERVER_PORT", "9200")
	t.Setenv("OOADAPTER_WORKER_ENABLED", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "standalone" || cfg.LogLevel != "debug" {
		t.Fatalf("toml values not applied: mode=%s log_level=%s", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Server.Port != 9200 {
		t.Fatalf("env override lost: port=%d", cfg.Server.Port)
	}
	if cfg.Worker.Enabled {
		t.Fatal("env override lost: worker still enabled")
	}
	if cfg.Worker.PollInterval.Duration != 30*time.Second {
		t.Fatalf("duration not parsed: %v", cfg.Worker.PollInterval.Duration)
	}
	// Untouched fields keep their defaults.
	if cfg.Chain.ChainID != 137 {
		t.Fatalf("default chain_id lost: %d", cfg.Chain.ChainID)
	}
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := standaloneConfig()
	cfg.Wallet.PrivateKey = "top-secret"
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "api-key"

	red := RedactedConfig(cfg)
	for name, v := range map[string]string{
		"wallet.private_key": red.Wallet.PrivateKey,
		"postgres.password":  red.Postgres.Password,
		"server.api_key":     red.Server.APIKey,
	} {
		if strings.Contains(v, "secret") || v == "hunter2" || v == "api-key" {
			t.Errorf("%s not redacted: %q", name, v)
		}
	}
	// The original must be untouched.
	if cfg.Wallet.PrivateKey != "top-secret" {
		t.Fatal("RedactedConfig mutated the source config")
	}
}
