package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `{
		"app_name": "TestApp",
		"listen_ip": "127.0.0.1",
		"listen_port": 9090,
		"database_path": "/tmp/test.db",
		"csrf_key": "test-csrf-key",
		"key_cache_ttl": "30s",
		"keyring": {"backend": "memory", "service": "datavault-test"},
		"log": {"level": "debug", "format": "json"}
	}`)

	if err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if AppConfig.AppName != "TestApp" {
		t.Errorf("Expected AppName 'TestApp', got '%s'", AppConfig.AppName)
	}
	if AppConfig.ListenPort != 9090 {
		t.Errorf("Expected ListenPort 9090, got %d", AppConfig.ListenPort)
	}
	if AppConfig.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected DatabasePath '/tmp/test.db', got '%s'", AppConfig.DatabasePath)
	}
	if AppConfig.CSRFKey != "test-csrf-key" {
		t.Errorf("Expected CSRFKey 'test-csrf-key', got '%s'", AppConfig.CSRFKey)
	}
	if AppConfig.KeyCacheTTL != 30*time.Second {
		t.Errorf("Expected KeyCacheTTL 30s, got %v", AppConfig.KeyCacheTTL)
	}
	if AppConfig.Keyring.Backend != "memory" || AppConfig.Keyring.Service != "datavault-test" {
		t.Errorf("Unexpected keyring config %+v", AppConfig.Keyring)
	}
	if AppConfig.Log.Level != "debug" || AppConfig.Log.Format != "json" {
		t.Errorf("Unexpected log config %+v", AppConfig.Log)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	if err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err != nil {
		t.Fatalf("LoadConfig with a missing file should fall back to defaults: %v", err)
	}

	if AppConfig.AppName != "DataVault" {
		t.Errorf("Expected default AppName, got '%s'", AppConfig.AppName)
	}
	if AppConfig.ListenIP != "127.0.0.1" || AppConfig.ListenPort != 8080 {
		t.Errorf("Unexpected default listen address %s:%d", AppConfig.ListenIP, AppConfig.ListenPort)
	}
	if AppConfig.KeyCacheTTL != 5*time.Minute {
		t.Errorf("Expected default KeyCacheTTL 5m, got %v", AppConfig.KeyCacheTTL)
	}
	if len(AppConfig.CSRFKey) != 64 {
		t.Errorf("Expected a generated 32-byte hex CSRF key, got %q", AppConfig.CSRFKey)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, `{"listen_port": 9090, "keyring": {"backend": "file"}}`)
	t.Setenv("DATAVAULT_LISTEN_PORT", "7070")
	t.Setenv("DATAVAULT_KEYRING_BACKEND", "memory")

	if err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if AppConfig.ListenPort != 7070 {
		t.Errorf("Expected env to override ListenPort, got %d", AppConfig.ListenPort)
	}
	if AppConfig.Keyring.Backend != "memory" {
		t.Errorf("Expected env to override keyring backend, got %q", AppConfig.Keyring.Backend)
	}
}

func TestLoadConfigPlaceholderKeyIsReplaced(t *testing.T) {
	path := writeConfig(t, `{"csrf_key": "CHANGE_ME_IN_PRODUCTION"}`)

	if err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if AppConfig.CSRFKey == "CHANGE_ME_IN_PRODUCTION" {
		t.Error("Placeholder CSRF key was kept")
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{ "invalid": json }`)

	if err := LoadConfig(path); err == nil {
		t.Error("LoadConfig with invalid JSON should have failed")
	}
}

func TestCSRFKeyBytes(t *testing.T) {
	hexKey := Config{CSRFKey: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"}
	if b := hexKey.CSRFKeyBytes(); len(b) != 32 || b[31] != 0x1f {
		t.Errorf("Hex key was not decoded: %x", b)
	}

	a := Config{CSRFKey: "short"}.CSRFKeyBytes()
	b := Config{CSRFKey: "other"}.CSRFKeyBytes()
	if len(a) != 32 || string(a) == string(b) {
		t.Error("Free-form keys should stretch to distinct 32-byte keys")
	}
}
