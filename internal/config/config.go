package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration for the studio site
type Config struct {
	ServiceName string
	Environment string
	LogLevel    string
	LogFormat   string

	StoreDriver string
	StoreURL    string
	StoreKey    string
	AutoMigrate bool

	HTTPPort    string
	GRPCPort    string
	RabbitMQURL string

	Studio Studio
}

// Studio is the public profile shown on the about and contact pages.
type Studio struct {
	Name     string `yaml:"name"`
	Tagline  string `yaml:"tagline"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Location string `yaml:"location"`
	Hours    []Hour `yaml:"hours"`
	// Instagram and WhatsApp are the footer's social links
	Instagram string `yaml:"instagram"`
	WhatsApp  string `yaml:"whatsapp"`
}

type Hour struct {
	Days  string `yaml:"days"`
	Times string `yaml:"times"`
}

// DefaultStudio returns the profile used when no file is supplied
func DefaultStudio() Studio {
	return Studio{
		Name:      "ATELIER",
		Tagline:   "Handcrafted fine jewellery, made to be worn for a lifetime.",
		Email:     "hello@atelier-jewellery.com",
		Phone:     "+1 (555) 123-4567",
		Location:  "123 Jewellery Lane, Design District",
		Instagram: "https://instagram.com",
		WhatsApp:  "https://wa.me/1234567890",
		Hours: []Hour{
			{Days: "Monday - Friday", Times: "10:00 AM - 7:00 PM"},
			{Days: "Saturday", Times: "By Appointment"},
			{Days: "Sunday", Times: "Closed"},
		},
	}
}

// Load reads configuration from the environment. A .env file is honoured
// outside production, and STUDIO_PROFILE may point at a YAML studio profile.
func Load() (*Config, error) {
	if os.Getenv("ENV") != "production" {
		// Missing .env is normal; real environment variables still apply.
		_ = godotenv.Load()
	}

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "atelier"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		StoreDriver: getEnv("STORE_DRIVER", DriverPostgres),
		StoreURL:    getEnv("STORE_URL", "postgres://atelier@localhost:5432/atelier?sslmode=disable"),
		StoreKey:    os.Getenv("STORE_KEY"),
		AutoMigrate: getBool("STORE_AUTO_MIGRATE", false),
		HTTPPort:    getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),
		RabbitMQURL: os.Getenv("RABBITMQ_URL"),
		Studio:      DefaultStudio(),
	}

	if path := os.Getenv("STUDIO_PROFILE"); path != "" {
		studio, err := LoadStudio(path)
		if err != nil {
			return nil, err
		}
		cfg.Studio = studio
	}

	return cfg, nil
}

// LoadStudio reads a YAML studio profile. Fields left empty in the file keep
// their defaults.
func LoadStudio(path string) (Studio, error) {
	studio := DefaultStudio()

	data, err := os.ReadFile(path)
	if err != nil {
		return studio, fmt.Errorf("read studio profile: %w", err)
	}

	var file Studio
	if err := yaml.Unmarshal(data, &file); err != nil {
		return studio, fmt.Errorf("parse studio profile: %w", err)
	}

	if file.Name != "" {
		studio.Name = file.Name
	}
	if file.Tagline != "" {
		studio.Tagline = file.Tagline
	}
	if file.Email != "" {
		studio.Email = file.Email
	}
	if file.Phone != "" {
		studio.Phone = file.Phone
	}
	if file.Location != "" {
		studio.Location = file.Location
	}
	if file.Instagram != "" {
		studio.Instagram = file.Instagram
	}
	if file.WhatsApp != "" {
		studio.WhatsApp = file.WhatsApp
	}
	if len(file.Hours) > 0 {
		studio.Hours = file.Hours
	}
	return studio, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreURL == "" {
		return fmt.Errorf("STORE_URL is required")
	}
	if c.HTTPPort == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.GRPCPort == c.HTTPPort {
		return fmt.Errorf("GRPC_PORT and PORT must differ")
	}
	return nil
}

// DSN returns the store connection string. For postgres the access key, when
// set, replaces the password embedded in STORE_URL.
func (c *Config) DSN() (string, error) {
	if c.StoreDriver != DriverPostgres || c.StoreKey == "" {
		return c.StoreURL, nil
	}

	u, err := url.Parse(c.StoreURL)
	if err != nil {
		return "", fmt.Errorf("parse STORE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("STORE_URL must be a postgres URL when STORE_KEY is set")
	}

	username := "postgres"
	if u.User != nil && u.User.Username() != "" {
		username = u.User.Username()
	}
	u.User = url.UserPassword(username, c.StoreKey)
	return u.String(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
