package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the operator CLI configuration. Precedence, highest first: flags,
// COORDCTL_* environment variables, coordctl.yaml, defaults.
type Config struct {
	DB          string `mapstructure:"db"`
	Tenant      int64  `mapstructure:"tenant"`
	Provider    string `mapstructure:"provider"`
	ParamPrefix string `mapstructure:"param_prefix"`
}

// TenantID returns nil when no tenant is configured.
func (c Config) TenantID() *int64 {
	if c.Tenant <= 0 {
		return nil
	}
	t := c.Tenant
	return &t
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db", "event-coordinator.db")
	v.SetDefault("tenant", 0)
	v.SetDefault("provider", "openai")
	v.SetDefault("param_prefix", "")
}

func loadConfig(v *viper.Viper, cmd *cobra.Command, configFile string) (Config, error) {
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("coordctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("COORDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"db":           "db",
		"tenant":       "tenant",
		"provider":     "provider",
		"param_prefix": "param-prefix",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("binding flag %s: %w", flag, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if strings.TrimSpace(cfg.DB) == "" {
		return Config{}, errors.New("db path must not be empty")
	}
	return cfg, nil
}
