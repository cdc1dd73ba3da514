package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	ConfigPathFlag    = "config"
	DefaultConfigPath = "config.yaml"
	LogLevelFlag      = "level"

	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendKeyring = "keyring"

	ProtectionNone   = "none"
	ProtectionStatic = "static"
	ProtectionAWSKMS = "aws_kms"
	ProtectionGCPKMS = "gcp_kms"

	DefaultCacheSize   = 64
	DefaultMetricsHost = "127.0.0.1"
	DefaultMetricsPort = 9090
)

type (
	ConfigProvider interface {
		GetProviderConfig() ProviderConfig
	}

	// Reloader is implemented by providers backed by a config file.
	Reloader interface {
		Reload() error
		LastLoadTime() time.Time
	}

	ProviderConfig struct {
		Logging   LoggingConfig   `yaml:"logging"`
		Providers ProvidersConfig `yaml:"providers"`
		KeyStore  KeyStoreConfig  `yaml:"keystore"`
		Metrics   MetricsConfig   `yaml:"metrics"`
	}

	LoggingConfig struct {
		Level  string         `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Format string         `yaml:"format" validate:"omitempty,oneof=console json"`
		File   *LogFileConfig `yaml:"file,omitempty"`
	}

	LogFileConfig struct {
		Path       string `yaml:"path" validate:"required"`
		MaxSize    int    `yaml:"max_size" validate:"gte=0"`
		MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
		MaxAge     int    `yaml:"max_age" validate:"gte=0"`
		Compress   bool   `yaml:"compress"`
	}

	ProvidersConfig struct {
		// CacheSize bounds the number of cached provider handles.
		CacheSize int `yaml:"cache_size" validate:"gte=0"`
		// DefaultImplementations maps an algorithm name to the implementation
		// chosen when a caller does not name one.
		DefaultImplementations map[string]string `yaml:"default_implementations"`
	}

	KeyStoreConfig struct {
		Backend    string                 `yaml:"backend" validate:"omitempty,oneof=memory leveldb keyring"`
		Options    map[string]interface{} `yaml:"options"`
		Protection *ProtectionConfig      `yaml:"protection,omitempty"`
	}

	ProtectionConfig struct {
		Type    string                 `yaml:"type" validate:"required,oneof=none static aws_kms gcp_kms"`
		Options map[string]interface{} `yaml:"options"`
		Caching CachingConfig          `yaml:"caching"`
	}

	CachingConfig struct {
		MaxCache int    `yaml:"max_cache,omitempty" validate:"gte=0"`
		MaxAge   string `yaml:"max_age,omitempty"`
		MaxUsage int    `yaml:"max_usage,omitempty" validate:"gte=0"`
	}

	MetricsConfig struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	}

	cliConfigProvider struct {
		ctx           *cli.Context
		configManager *ConfigManager
	}

	staticConfigProvider struct {
		providerConfig ProviderConfig
	}
)

func newConfigProvider(ctx *cli.Context) (ConfigProvider, error) {
	path := ctx.String(ConfigPathFlag)
	if path == "" {
		cfg := DefaultConfig()
		if level := ctx.String(LogLevelFlag); level != "" {
			cfg.Logging.Level = level
		}
		return NewStaticConfigProvider(cfg), nil
	}

	configManager, err := NewConfigManager(path)
	if err != nil {
		return nil, err
	}

	return &cliConfigProvider{
		ctx:           ctx,
		configManager: configManager,
	}, nil
}

func (c *cliConfigProvider) GetProviderConfig() ProviderConfig {
	cfg := *c.configManager.GetConfig()
	if level := c.ctx.String(LogLevelFlag); level != "" {
		cfg.Logging.Level = level
	}
	return cfg
}

func (c *cliConfigProvider) Reload() error {
	return c.configManager.Reload()
}

func (c *cliConfigProvider) LastLoadTime() time.Time {
	return c.configManager.LastLoadTime()
}

// NewStaticConfigProvider serves a fixed configuration.
func NewStaticConfigProvider(cfg ProviderConfig) ConfigProvider {
	return &staticConfigProvider{providerConfig: cfg}
}

func (s *staticConfigProvider) GetProviderConfig() ProviderConfig {
	return s.providerConfig
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() ProviderConfig {
	var cfg ProviderConfig
	cfg.applyDefaults()
	return cfg
}

func (c *ProviderConfig) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Providers.CacheSize == 0 {
		c.Providers.CacheSize = DefaultCacheSize
	}
	if c.KeyStore.Backend == "" {
		c.KeyStore.Backend = BackendMemory
	}
	if c.Metrics.Host == "" {
		c.Metrics.Host = DefaultMetricsHost
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
}

// Validate checks struct tags and the fields tags cannot express.
func (c *ProviderConfig) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.KeyStore.Protection != nil && c.KeyStore.Protection.Caching.MaxAge != "" {
		if _, err := time.ParseDuration(c.KeyStore.Protection.Caching.MaxAge); err != nil {
			return fmt.Errorf("invalid config: keystore.protection.caching.max_age: %w", err)
		}
	}

	return nil
}

func LoadConfig(configFilePath string) (ProviderConfig, error) {
	var config ProviderConfig

	configFile, err := os.ReadFile(configFilePath)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(configFile, &config); err != nil {
		return config, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	config.applyDefaults()
	if err = config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}
