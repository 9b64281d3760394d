package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_defaults(t *testing.T) {
	for _, k := range []string{"PORT", "SERIAL_DEVICE", "SERIAL_BAUD", "LINK_WRITE_TIMEOUT_MS", "SIMULATE", "RESEND_ON_TICK"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Port != "8080" || cfg.SerialBaud != 9600 || cfg.WriteTimeout != 200*time.Millisecond {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Simulate || cfg.ResendOnTick || cfg.SerialDevice != "" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestFromEnv_overrides(t *testing.T) {
	t.Setenv("SERIAL_DEVICE", "/dev/ttyACM0")
	t.Setenv("LINK_WRITE_TIMEOUT_MS", "350")
	t.Setenv("SIMULATE", "yes")
	t.Setenv("SIMULATE_LANE", "cd")

	cfg := FromEnv()
	if cfg.SerialDevice != "/dev/ttyACM0" || cfg.WriteTimeout != 350*time.Millisecond || !cfg.Simulate || cfg.SimulateLane != "cd" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		val      string
		fallback bool
		want     bool
	}{
		{"", true, true},
		{"true", false, true},
		{"1", false, true},
		{"No", true, false},
		{"FALSE", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("TEST_BOOL", tt.val)
		if got := GetEnvBool("TEST_BOOL", tt.fallback); got != tt.want {
			t.Errorf("GetEnvBool(%q, %v) = %v, want %v", tt.val, tt.fallback, got, tt.want)
		}
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		val  string
		want time.Duration
	}{
		{"", time.Second},
		{"250", 250 * time.Millisecond},
		{"1.5s", 1500 * time.Millisecond},
		{"soon", time.Second},
	}
	for _, tt := range tests {
		t.Setenv("TEST_DURATION", tt.val)
		if got := GetEnvDuration("TEST_DURATION", time.Second); got != tt.want {
			t.Errorf("GetEnvDuration(%q) = %v, want %v", tt.val, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("RANGE_TEST_VALUE=42\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RANGE_TEST_VALUE", "")
	os.Unsetenv("RANGE_TEST_VALUE")

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := GetEnvInt("RANGE_TEST_VALUE", 0); got != 42 {
		t.Errorf("RANGE_TEST_VALUE = %d, want 42", got)
	}
	if err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for a missing file")
	}
}
