package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the daemon's operational configuration.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Store struct {
		Driver string `mapstructure:"driver"` // memory, redis, postgres
		Redis  struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
		Postgres struct {
			URL string `mapstructure:"url"`
		} `mapstructure:"postgres"`
	} `mapstructure:"store"`

	Artifacts struct {
		Driver string `mapstructure:"driver"` // memory, git
		Git    struct {
			Workdir string `mapstructure:"workdir"`
			Remote  string `mapstructure:"remote"`
		} `mapstructure:"git"`
	} `mapstructure:"artifacts"`

	Gateway struct {
		Driver      string            `mapstructure:"driver"` // memory, k8s
		Namespace   string            `mapstructure:"namespace"`
		Kubeconfig  string            `mapstructure:"kubeconfig"`
		Deployments map[string]string `mapstructure:"deployments"`
		Endpoints   map[string]string `mapstructure:"endpoints"`
	} `mapstructure:"gateway"`

	Loop struct {
		PollInterval       time.Duration     `mapstructure:"poll_interval"`
		TickTimeout        time.Duration     `mapstructure:"tick_timeout"`
		SignalPollInterval time.Duration     `mapstructure:"signal_poll_interval"`
		PhaseTimeout       time.Duration     `mapstructure:"phase_timeout"`
		MaxRewinds         int               `mapstructure:"max_rewinds"`
		Refs               map[string]string `mapstructure:"refs"`
	} `mapstructure:"loop"`
}

// loadConfig reads the configuration from file and environment. Every key
// can be overridden through FARMCODE_* environment variables.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("farmcoded")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/farmcode")
	}
	v.SetEnvPrefix("FARMCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("artifacts.driver", "memory")
	v.SetDefault("gateway.driver", "memory")
	v.SetDefault("loop.poll_interval", 5*time.Second)
	v.SetDefault("loop.tick_timeout", 4*time.Second)
	v.SetDefault("loop.signal_poll_interval", 30*time.Second)
	v.SetDefault("loop.phase_timeout", 2*time.Hour)
	v.SetDefault("loop.max_rewinds", 2)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// No file is fine; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
