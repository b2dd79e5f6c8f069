package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// insecure values that must never reach production
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"":                                     true,
}

type Config struct {
	Server         ServerConfig
	Log            LogConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Panel          PanelConfig
	WhatsApp       WhatsAppConfig
	Pairing        PairingConfig
	InternalSecret string
}

type ServerConfig struct {
	Port string
	Mode string
}

type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig is optional. An empty URL disables the deployment audit log.
type DatabaseConfig struct {
	URL string
}

type JWTConfig struct {
	SecretKey string
}

// PanelConfig holds the Pterodactyl application API settings and the fixed
// server template used for every bot instance.
type PanelConfig struct {
	URL         string
	APIKey      string
	EggID       int
	DockerImage string
	Startup     string
	Timeout     time.Duration

	Memory int
	Disk   int
	CPU    int
	Swap   int
	IO     int

	RollbackOnFailure bool
	ScanAllNodes      bool
}

type WhatsAppConfig struct {
	SessionsDir string
}

type PairingConfig struct {
	Timeout       time.Duration
	CodeDelay     time.Duration
	LinkWindow    time.Duration
	SweepInterval time.Duration
	MaxAge        time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", "8080")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret_key", "")
	v.SetDefault("internal_secret", "")

	v.SetDefault("panel_url", "")
	v.SetDefault("panel_api_key", "")
	v.SetDefault("panel_egg_id", 15)
	v.SetDefault("panel_docker_image", "ghcr.io/parkervcp/yolks:nodejs_18")
	v.SetDefault("panel_startup", "npm start")
	v.SetDefault("panel_timeout", "30s")
	v.SetDefault("panel_memory", 1024)
	v.SetDefault("panel_disk", 2048)
	v.SetDefault("panel_cpu", 100)
	v.SetDefault("panel_swap", 0)
	v.SetDefault("panel_io", 500)
	v.SetDefault("panel_rollback_on_failure", false)
	v.SetDefault("panel_allocation_scan_all_nodes", false)

	v.SetDefault("whatsapp_sessions_dir", "./sessions")

	v.SetDefault("pairing_timeout", "60s")
	v.SetDefault("pairing_code_delay", "2s")
	v.SetDefault("pairing_link_window", "3m")
	v.SetDefault("pairing_sweep_interval", "1m")
	v.SetDefault("pairing_session_max_age", "10m")
}

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("server_port"),
			Mode: v.GetString("gin_mode"),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database_url"),
		},
		JWT: JWTConfig{
			SecretKey: v.GetString("jwt_secret_key"),
		},
		Panel: PanelConfig{
			URL:               strings.TrimRight(v.GetString("panel_url"), "/"),
			APIKey:            v.GetString("panel_api_key"),
			EggID:             v.GetInt("panel_egg_id"),
			DockerImage:       v.GetString("panel_docker_image"),
			Startup:           v.GetString("panel_startup"),
			Timeout:           v.GetDuration("panel_timeout"),
			Memory:            v.GetInt("panel_memory"),
			Disk:              v.GetInt("panel_disk"),
			CPU:               v.GetInt("panel_cpu"),
			Swap:              v.GetInt("panel_swap"),
			IO:                v.GetInt("panel_io"),
			RollbackOnFailure: v.GetBool("panel_rollback_on_failure"),
			ScanAllNodes:      v.GetBool("panel_allocation_scan_all_nodes"),
		},
		WhatsApp: WhatsAppConfig{
			SessionsDir: v.GetString("whatsapp_sessions_dir"),
		},
		Pairing: PairingConfig{
			Timeout:       v.GetDuration("pairing_timeout"),
			CodeDelay:     v.GetDuration("pairing_code_delay"),
			LinkWindow:    v.GetDuration("pairing_link_window"),
			SweepInterval: v.GetDuration("pairing_sweep_interval"),
			MaxAge:        v.GetDuration("pairing_session_max_age"),
		},
		InternalSecret: v.GetString("internal_secret"),
	}

	if cfg.Panel.URL == "" {
		return nil, fmt.Errorf("PANEL_URL is required")
	}
	if cfg.Panel.APIKey == "" {
		return nil, fmt.Errorf("PANEL_API_KEY is required")
	}

	// never log secrets
	log.Info().
		Str("port", cfg.Server.Port).
		Str("panel", cfg.Panel.URL).
		Int("egg", cfg.Panel.EggID).
		Bool("audit", cfg.Database.URL != "").
		Msg("configuration loaded")

	return cfg, nil
}

// Validate checks the secrets guarding the HTTP API.
func (c *Config) Validate() error {
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.InternalSecret) < 32 {
		return fmt.Errorf("INTERNAL_SECRET must be at least 32 characters long")
	}

	if c.Pairing.Timeout <= c.Pairing.CodeDelay {
		return fmt.Errorf("PAIRING_TIMEOUT (%s) must exceed PAIRING_CODE_DELAY (%s)", c.Pairing.Timeout, c.Pairing.CodeDelay)
	}

	return nil
}
