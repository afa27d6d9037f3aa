package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the control plane needs to start: where to
// reach Docker, per-process container tunables, and ambient settings.
type Config struct {
	Server ServerConfig
	Docker DockerConfig
	LogLevel string

	// MemoryLimitBytes is the per-container memory limit read from
	// container.memory_limit_bytes. Zero means unset (no limit). Nothing
	// passes it on to the orchestrator: the HTTP start handler starts
	// services with an empty model.ContainerConfig, so no memory limit is
	// applied to the containers this process starts.
	MemoryLimitBytes int64

	// PrevantVersion is sent as the User-Agent of every host-meta probe.
	PrevantVersion string
}

type ServerConfig struct {
	Addr string
	Port string
}

type DockerConfig struct {
	Host       string
	APIVersion string
}

// Load loads configuration using viper: environment variables first, an
// optional .env file, then defaults. An unset Docker host falls back to
// the local socket default; validation rejects a host that is still
// empty after that.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr: viper.GetString("server.addr"),
			Port: viper.GetString("server.port"),
		},
		Docker: DockerConfig{
			Host:       viper.GetString("docker.host"),
			APIVersion: viper.GetString("docker.api_version"),
		},
		LogLevel:          viper.GetString("log.level"),
		MemoryLimitBytes:  viper.GetInt64("container.memory_limit_bytes"),
		PrevantVersion:    viper.GetString("prevant.version"),
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.addr", "0.0.0.0")
	viper.SetDefault("server.port", "8080")

	viper.SetDefault("docker.host", "unix:///var/run/docker.sock")
	viper.SetDefault("docker.api_version", "1.43")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("container.memory_limit_bytes", 0)
	viper.SetDefault("prevant.version", "dev")
}

func validate(cfg *Config) error {
	var missing []string
	if cfg.Docker.Host == "" {
		missing = append(missing, "DOCKER_HOST")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
