package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/hiertree/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestAppConfig_LogFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.LogFormat = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty format should default: %v", err)
	}
	if cfg.App.LogFormat != LogFormatJSON {
		t.Errorf("format = %q", cfg.App.LogFormat)
	}
	cfg.App.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown log format should fail")
	}
}

func TestSeedConfigRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Seed.File = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing seed file should fail")
	}
}

func TestOverlayConfigRejectsNegative(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Overlay.Gap = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative gap should fail")
	}
}

func TestLoadYAMLWithEnv(t *testing.T) {
	t.Setenv("HIERTREE_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  log_level: debug
  log_format: text
  http:
    port: 9090
    cors_origins: ["http://localhost:3000"]
sqlite:
  path: ./tree.db
seed:
  dir: ./data
  file: tree.yaml
auth:
  mode: token
  token: ${HIERTREE_TEST_TOKEN}
overlay:
  gap: 16
  frame_interval: 20ms
  layout:
    indent: 32
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q", cfg.Auth.Token)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogFormat != LogFormatText {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Overlay.Gap != 16 || cfg.Overlay.FrameInterval != 20*time.Millisecond {
		t.Errorf("overlay = %+v", cfg.Overlay)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Overlay.Layout.Indent != 32 || cfg.Overlay.Layout.MarginTop != 40 {
		t.Errorf("layout = %+v", cfg.Overlay.Layout)
	}
}
