package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ParseArgs("bluegreend", nil); err != nil {
		t.Fatal(err)
	}

	if cfg.Address != ":9090" {
		t.Errorf("address: got %q", cfg.Address)
	}

	if cfg.ApplicationLogLevel != log.InfoLevel {
		t.Errorf("log level: got %v", cfg.ApplicationLogLevel)
	}

	if d := cmp.Diff(DefaultExcludedPrefixes, cfg.ExcludedPrefixes.Values()); d != "" {
		t.Errorf("excluded prefixes, diff:\n%s", d)
	}
}

func TestFlags(t *testing.T) {
	cfg := NewConfig()
	err := cfg.ParseArgs("bluegreend", []string{
		"-address=:8080",
		"-application-url=http://127.0.0.1:4000",
		"-excluded-prefixes=/internal/,/health",
		"-application-log-level=DEBUG",
		"-production-host=www.example.org",
		"-deployment-id=b1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Address != ":8080" || cfg.ApplicationURL != "http://127.0.0.1:4000" {
		t.Errorf("unexpected config: %q, %q", cfg.Address, cfg.ApplicationURL)
	}

	if d := cmp.Diff([]string{"/internal/", "/health"}, cfg.ExcludedPrefixes.Values()); d != "" {
		t.Errorf("excluded prefixes, diff:\n%s", d)
	}

	if cfg.ApplicationLogLevel != log.DebugLevel {
		t.Errorf("log level: got %v", cfg.ApplicationLogLevel)
	}

	env := cfg.Environment()
	if env.ProductionHost != "www.example.org" || env.DeploymentID != "b1" {
		t.Errorf("unexpected environment: %+v", env)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ParseArgs("bluegreend", []string{"-application-log-level=noise"}); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestUnexpectedArguments(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.ParseArgs("bluegreend", []string{"stray"}); err == nil {
		t.Error("expected error for stray argument")
	}
}

func TestConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bluegreend.yaml")
	data := `address: :7070
mode: production
serving-host: blue.example
excluded-prefixes:
- /api/
- /assets/
`
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewConfig()
	// flags win over file values
	err := cfg.ParseArgs("bluegreend", []string{
		"-config-file=" + file,
		"-serving-host=green.example",
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Address != ":7070" {
		t.Errorf("address from file: got %q", cfg.Address)
	}

	if cfg.Mode != "production" {
		t.Errorf("mode from file: got %q", cfg.Mode)
	}

	if cfg.ServingHost != "green.example" {
		t.Errorf("flag did not win over file: got %q", cfg.ServingHost)
	}

	if d := cmp.Diff([]string{"/api/", "/assets/"}, cfg.ExcludedPrefixes.Values()); d != "" {
		t.Errorf("excluded prefixes, diff:\n%s", d)
	}
}

func TestEnvironmentDefaults(t *testing.T) {
	t.Setenv("VERCEL_ENV", "production")
	t.Setenv("VERCEL_URL", "blue.example")
	t.Setenv("VERCEL_PROJECT_PRODUCTION_URL", "www.example.org")
	t.Setenv("VERCEL_DEPLOYMENT_ID", "b1")
	t.Setenv("VERCEL_AUTOMATION_BYPASS_SECRET", "s3cr3t")

	cfg := NewConfig()
	// flags win over environment values
	if err := cfg.ParseArgs("bluegreend", []string{"-deployment-id=b2"}); err != nil {
		t.Fatal(err)
	}

	env := cfg.Environment()
	if env.Mode != "production" || env.ServingHost != "blue.example" ||
		env.ProductionHost != "www.example.org" || env.BypassSecret != "s3cr3t" {
		t.Errorf("unexpected environment: %+v", env)
	}

	if env.DeploymentID != "b2" {
		t.Errorf("flag did not win over environment: got %q", env.DeploymentID)
	}
}
