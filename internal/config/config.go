package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// Network
	GamePort      int  `env:"GAME_PORT" default:"27015"`
	DiscoveryPort int  `env:"DISCOVERY_PORT" default:"27016"`
	Capacity      int  `env:"CAPACITY" default:"4"`
	RelayOnly     bool `env:"RELAY_ONLY" default:"false"`

	// Timing
	TickInterval      time.Duration `env:"TICK_INTERVAL" default:"33ms"`
	DiscoveryInterval time.Duration `env:"DISCOVERY_INTERVAL" default:"1s"`
	DiscoveryTTL      time.Duration `env:"DISCOVERY_TTL" default:"5s"`
	PeerTimeout       time.Duration `env:"PEER_TIMEOUT" default:"10s"`

	// Status surface, 0 disables it
	StatusHTTPPort int `env:"STATUS_HTTP_PORT" default:"0"`

	// Optional discovery registry
	RedisURL string `env:"REDIS_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// LoadConfig reads .env if present, then the process environment.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(".env")
}

func LoadConfigFrom(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// a broken .env is worth a warning, a missing one is not
		fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", envFile, err)
	}

	config := &Config{}

	loadEnvString(&config.GoEnv, "GO_ENV", "development")

	// Network
	if err := loadEnvInt(&config.GamePort, "GAME_PORT", 27015); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.DiscoveryPort, "DISCOVERY_PORT", 27016); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.Capacity, "CAPACITY", 4); err != nil {
		return nil, err
	}
	if err := loadEnvBool(&config.RelayOnly, "RELAY_ONLY", false); err != nil {
		return nil, err
	}

	// Timing
	if err := loadEnvDuration(&config.TickInterval, "TICK_INTERVAL", time.Second/30); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.DiscoveryInterval, "DISCOVERY_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.DiscoveryTTL, "DISCOVERY_TTL", 5*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.PeerTimeout, "PEER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if err := loadEnvInt(&config.StatusHTTPPort, "STATUS_HTTP_PORT", 0); err != nil {
		return nil, err
	}
	loadEnvString(&config.RedisURL, "REDIS_URL", "")

	// Logging
	loadEnvString(&config.LogLevel, "LOG_LEVEL", "info")
	defaultFormat := "text"
	if config.IsProduction() {
		defaultFormat = "json"
	}
	loadEnvString(&config.LogFormat, "LOG_FORMAT", defaultFormat)

	return config, nil
}

func loadEnvString(target *string, key, defaultValue string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error", "fatal", "panic"}
	validLogFormats = []string{"text", "json"}
)

// Validate reports every problem with the loaded configuration at once.
func (c *Config) Validate() error {
	var problems []string

	if c.GamePort < 1 || c.GamePort > 65535 {
		problems = append(problems, "GAME_PORT must be between 1 and 65535")
	}
	if c.DiscoveryPort < 1 || c.DiscoveryPort > 65535 {
		problems = append(problems, "DISCOVERY_PORT must be between 1 and 65535")
	}
	if c.GamePort == c.DiscoveryPort {
		problems = append(problems, "GAME_PORT and DISCOVERY_PORT must differ")
	}
	if c.StatusHTTPPort < 0 || c.StatusHTTPPort > 65535 {
		problems = append(problems, "STATUS_HTTP_PORT must be between 0 and 65535")
	}
	if c.Capacity < 2 || c.Capacity > 12 {
		problems = append(problems, "CAPACITY must be between 2 and 12")
	}

	for key, d := range map[string]time.Duration{
		"TICK_INTERVAL":      c.TickInterval,
		"DISCOVERY_INTERVAL": c.DiscoveryInterval,
		"DISCOVERY_TTL":      c.DiscoveryTTL,
		"PEER_TIMEOUT":       c.PeerTimeout,
	} {
		if d <= 0 {
			problems = append(problems, key+" must be positive")
		}
	}
	if c.DiscoveryTTL > 0 && c.DiscoveryTTL <= c.DiscoveryInterval {
		problems = append(problems, "DISCOVERY_TTL must exceed DISCOVERY_INTERVAL")
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		problems = append(problems, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		problems = append(problems, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}
