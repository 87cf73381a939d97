// internal/config/config.go
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds the station process configuration. Test profiles live in
// ProfilesDir and are loaded separately; this covers the process surface.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	ProfilesDir         string        `mapstructure:"profiles_dir"`
	HttpListenAddr      string        `mapstructure:"http_listen_addr"`
	EtcdEndpoints       []string      `mapstructure:"etcd_endpoints"`
	EtcdTimeout         time.Duration `mapstructure:"etcd_timeout"`
	MESBaseURL          string        `mapstructure:"mes_base_url"`
	HealthCheckSchedule string        `mapstructure:"health_check_schedule"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`

	// HardwareRetryAttempts overrides the connect-retry budget when > 0.
	// Stations with flaky serial links raise it without a rebuild.
	HardwareRetryAttempts int `mapstructure:"hardware_retry_attempts"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("profiles_dir", "./configs/profiles")
	viper.SetDefault("http_listen_addr", ":8080")
	viper.SetDefault("etcd_timeout", "5s")
	viper.SetDefault("health_check_schedule", "0 */1 * * * *")
	viper.SetDefault("shutdown_timeout", "15s")

	// Set config file details
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Read environment variables
	viper.AutomaticEnv()

	// Read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; rely on defaults and env vars.
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
