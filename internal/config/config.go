// Package config loads runtime settings from the environment, with an
// optional config file for local development.
package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env  string `mapstructure:"env"`
	Addr string `mapstructure:"addr"`

	DatabaseURL   string `mapstructure:"database_url"`
	MigrationsDir string `mapstructure:"migrations_dir"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`

	CORSOrigin string `mapstructure:"cors_origin"`

	// Tax applied at checkout when the request does not carry its own rate.
	DefaultTaxRatePercent float64 `mapstructure:"default_tax_rate_percent"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads settings from environment variables (POS_ prefix) and, when
// path is non-empty, from a config file. Environment wins over file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POS")
	v.AutomaticEnv()

	v.SetDefault("env", "dev")
	v.SetDefault("addr", ":8080")
	v.SetDefault("database_url", "")
	v.SetDefault("migrations_dir", "migrations")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_ttl", 12*time.Hour)
	v.SetDefault("cors_origin", "")
	v.SetDefault("default_tax_rate_percent", 11.0)
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("read_timeout", 10*time.Second)
	v.SetDefault("write_timeout", 20*time.Second)
	v.SetDefault("shutdown_timeout", 15*time.Second)

	// AutomaticEnv alone does not surface POS_* variables through Unmarshal,
	// so bind each key explicitly.
	for _, key := range []string{
		"env", "addr", "database_url", "migrations_dir", "redis_addr", "redis_password",
		"jwt_secret", "jwt_ttl", "cors_origin", "default_tax_rate_percent",
		"metrics_enabled", "read_timeout", "write_timeout", "shutdown_timeout",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
