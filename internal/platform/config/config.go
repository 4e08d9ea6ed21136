package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Claims   ClaimsConfig   `mapstructure:"claims"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type GitHubConfig struct {
	// AppSecret verifies installation lifecycle events. Repo-level
	// events are verified with each repository's own secret.
	AppSecret string `mapstructure:"app_secret"`
}

type ChainConfig struct {
	Network      string `mapstructure:"network"`
	TokenAddress string `mapstructure:"token_address"`
	SignerURL    string `mapstructure:"signer_url"`
	RPCURL       string `mapstructure:"rpc_url"`
}

type ClaimsConfig struct {
	// How long a custodial payment stays claimable.
	PendingPaymentTTL time.Duration `mapstructure:"pending_payment_ttl"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("claims.pending_payment_ttl", 365*24*time.Hour)
	viper.SetDefault("claims.sweep_interval", time.Hour)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
