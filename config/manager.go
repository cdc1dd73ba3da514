package config

import (
	"sync"
	"time"
)

// ConfigManager holds the most recently loaded configuration file.
type ConfigManager struct {
	configPath   string
	config       *ProviderConfig
	lastLoadTime time.Time
	mu           sync.RWMutex
}

func NewConfigManager(configPath string) (*ConfigManager, error) {
	cm := &ConfigManager{
		configPath: configPath,
	}

	if err := cm.Reload(); err != nil {
		return nil, err
	}

	return cm, nil
}

func (cm *ConfigManager) GetConfig() *ProviderConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

func (cm *ConfigManager) LastLoadTime() time.Time {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.lastLoadTime
}

// Reload re-reads the file. The previous configuration is kept when loading fails.
func (cm *ConfigManager) Reload() error {
	cfg, err := LoadConfig(cm.configPath)
	if err != nil {
		return err
	}

	cm.mu.Lock()
	cm.config = &cfg
	cm.lastLoadTime = time.Now()
	cm.mu.Unlock()

	return nil
}

func (cm *ConfigManager) Close() error {
	return nil
}
