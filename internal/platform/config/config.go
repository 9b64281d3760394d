package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the rangectl process configuration.
type Config struct {
	Port         string
	LogLevel     string
	LogFormat    string
	SerialDevice string
	SerialBaud   int
	WriteTimeout time.Duration
	SettingsFile string
	Simulate     bool
	SimulateLane string
	WAVDir       string
	ResendOnTick bool
}

// FromEnv reads Config from the environment, applying defaults for unset
// variables. Call Load first to pick up a .env file.
func FromEnv() Config {
	return Config{
		Port:         GetEnv("PORT", "8080"),
		LogLevel:     GetEnv("LOG_LEVEL", "info"),
		LogFormat:    GetEnv("LOG_FORMAT", "json"),
		SerialDevice: GetEnv("SERIAL_DEVICE", ""),
		SerialBaud:   GetEnvInt("SERIAL_BAUD", 9600),
		WriteTimeout: GetEnvDuration("LINK_WRITE_TIMEOUT_MS", 200*time.Millisecond),
		SettingsFile: GetEnv("SETTINGS_FILE", "config.json"),
		Simulate:     GetEnvBool("SIMULATE", false),
		SimulateLane: GetEnv("SIMULATE_LANE", "ab"),
		WAVDir:       GetEnv("INDICATOR_WAV_DIR", ""),
		ResendOnTick: GetEnvBool("RESEND_ON_TICK", false),
	}
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool accepts the strconv.ParseBool forms plus "yes" and "no".
func GetEnvBool(key string, fallback bool) bool {
	s := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch s {
	case "":
		return fallback
	case "yes":
		return true
	case "no":
		return false
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return fallback
}

// GetEnvDuration reads a duration. A bare integer is taken as milliseconds;
// anything else must parse with time.ParseDuration.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return fallback
}
