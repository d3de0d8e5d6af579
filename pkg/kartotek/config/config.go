package config

import "github.com/spf13/viper"

// Config represents the application configuration
type Config struct {
	ListenAddr    string
	DatabasePath  string
	JWTSecret     string
	TokenHours    int
	AdminEmail    string
	AdminPassword string
	LogLevel      string
}

// Load reads configuration from environment variables with sane defaults.
// Every key can be set via the environment, prefixed with KARTOTEK_
// (e.g. KARTOTEK_DB_PATH).
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("kartotek")
	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DB_PATH", "kartotek.db")
	v.SetDefault("JWT_SECRET", "kartotek-dev-secret-change-in-production")
	v.SetDefault("TOKEN_HOURS", 24)
	v.SetDefault("ADMIN_EMAIL", "admin@localhost")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("LOG_LEVEL", "info")

	return &Config{
		ListenAddr:    v.GetString("LISTEN_ADDR"),
		DatabasePath:  v.GetString("DB_PATH"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		TokenHours:    v.GetInt("TOKEN_HOURS"),
		AdminEmail:    v.GetString("ADMIN_EMAIL"),
		AdminPassword: v.GetString("ADMIN_PASSWORD"),
		LogLevel:      v.GetString("LOG_LEVEL"),
	}
}
