package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_Template(t *testing.T) {
	if err := Validate(Template()); err != nil {
		t.Fatalf("template with unresolved env refs should validate: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port 0")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_PhoneNumberIDMustBeNumeric(t *testing.T) {
	cfg := Defaults()
	cfg.WhatsApp.PhoneNumberID = "abc123"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for non-numeric phone_number_id")
	}

	cfg.WhatsApp.PhoneNumberID = "106540352242922"
	if err := Validate(cfg); err != nil {
		t.Fatalf("numeric phone_number_id should be valid: %v", err)
	}
}

func TestValidate_ModelTuning(t *testing.T) {
	cfg := Defaults()
	cfg.Model.TopP = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for top_p=0")
	}

	cfg = Defaults()
	cfg.Model.Temperature = 3
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for temperature=3")
	}

	cfg = Defaults()
	cfg.Model.MaxPairs = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for max_pairs=0")
	}

	cfg = Defaults()
	cfg.Model.RatePerMinute = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative rate_per_minute")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Dispatch.MaxConcurrent = 0
	cfg.Logging.Level = "verbose"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "dispatch.max_concurrent") || !strings.Contains(msg, "logging.level") {
		t.Fatalf("expected both problems reported, got: %s", msg)
	}
}

func TestValidate_DedupeSizeRequiredWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Dedupe.MaxSize = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for max_size=0 with ttl set")
	}

	cfg.Dedupe.TTLSeconds = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled dedupe should not need max_size: %v", err)
	}
}

// --- Credentials ---

func TestRequireWebhook(t *testing.T) {
	cfg := Template()
	if err := RequireWebhook(cfg); err == nil {
		t.Fatal("unresolved credentials should be rejected")
	}

	cfg.WhatsApp.AuthToken = "EAAG-token"
	cfg.WhatsApp.PhoneNumberID = "12345"
	cfg.WhatsApp.VerifyToken = "verify-me"
	if err := RequireWebhook(cfg); err != nil {
		t.Fatalf("expected credentials to pass: %v", err)
	}
}

func TestRequireSender_IgnoresVerifyToken(t *testing.T) {
	cfg := Defaults()
	cfg.WhatsApp.AuthToken = "EAAG-token"
	cfg.WhatsApp.PhoneNumberID = "12345"
	if err := RequireSender(cfg); err != nil {
		t.Fatalf("sender does not need verify_token: %v", err)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTripJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := Defaults()
	original.Model.Name = "qwen2.5:7b"
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Model.Name != "qwen2.5:7b" {
		t.Fatalf("expected qwen2.5:7b, got %q", loaded.Model.Name)
	}
}

func TestLoad_YAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
whatsapp:
  auth_token: tok
  phone_number_id: "555"
  verify_token: secret
model:
  max_pairs: 3
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.MaxPairs != 3 {
		t.Errorf("expected max_pairs 3, got %d", cfg.Model.MaxPairs)
	}
	if cfg.Model.Name != "llama3.1:8b" {
		t.Errorf("expected default model name, got %q", cfg.Model.Name)
	}
	if cfg.WhatsApp.PhoneNumberID != "555" {
		t.Errorf("expected phone_number_id 555, got %q", cfg.WhatsApp.PhoneNumberID)
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WABRIDGE_TEST_TOKEN", "from-env")

	envData := "WABRIDGE_TEST_TOKEN=from-dotenv\nWABRIDGE_TEST_VERIFY=dotenv-verify\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(envData), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("WABRIDGE_TEST_VERIFY") })

	cfgData := `{"whatsapp":{"auth_token":"${WABRIDGE_TEST_TOKEN}","verify_token":"${WABRIDGE_TEST_VERIFY}"}}`
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(cfgData), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WhatsApp.AuthToken != "from-env" {
		t.Errorf("expected env value to win, got %q", cfg.WhatsApp.AuthToken)
	}
	if cfg.WhatsApp.VerifyToken != "dotenv-verify" {
		t.Errorf("expected .env value, got %q", cfg.WhatsApp.VerifyToken)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("WABRIDGE_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"${WABRIDGE_SET}", "value"},
		{"${WABRIDGE_UNSET_VAR:-fallback}", "fallback"},
		{"${WABRIDGE_UNSET_VAR}", "${WABRIDGE_UNSET_VAR}"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- Accessors ---

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	val, err := GetByPath(cfg, "model.max_pairs")
	if err != nil {
		t.Fatal(err)
	}
	if val.(float64) != 6 {
		t.Fatalf("expected 6, got %v", val)
	}

	if _, err := GetByPath(cfg, "model.nope"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.WhatsApp.AuthToken = "EAAGabcdefghijkl"
	out := Sanitize(cfg)
	if out.WhatsApp.AuthToken != "EAAG****ijkl" {
		t.Fatalf("unexpected mask: %q", out.WhatsApp.AuthToken)
	}
	if cfg.WhatsApp.AuthToken != "EAAGabcdefghijkl" {
		t.Fatal("sanitize must not modify the original")
	}
}

func TestPaths_Sorted(t *testing.T) {
	paths := Paths(Defaults())
	if len(paths) == 0 {
		t.Fatal("expected paths")
	}
	for i := 1; i < len(paths); i++ {
		if paths[i-1] > paths[i] {
			t.Fatalf("paths not sorted at %d: %q > %q", i, paths[i-1], paths[i])
		}
	}
}
