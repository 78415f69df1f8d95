package config

import (
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the application-level configuration
type AppConfig struct {
	Port          int           `mapstructure:"port"`
	BaseURL       string        `mapstructure:"base_url"`
	StoragePath   string        `mapstructure:"storage_path"`
	MetadataPath  string        `mapstructure:"metadata_path"`
	MaxFileSize   int64         `mapstructure:"max_file_size"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	Compress      bool          `mapstructure:"compress"`
	RateWindow    time.Duration `mapstructure:"rate_window"`
	RateMax       int           `mapstructure:"rate_max"`
	RetentionAge  time.Duration `mapstructure:"retention_age"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Debug         bool          `mapstructure:"debug"`
}

// LoadConfig reads config.yaml from the given directory, falling back to
// environment variables and defaults for anything missing.
func LoadConfig(path string) (*AppConfig, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()

	viper.SetDefault("port", 8000)
	viper.SetDefault("base_url", "http://localhost:8000")
	viper.SetDefault("storage_path", "./storage")
	viper.SetDefault("metadata_path", "./storage-meta")
	viper.SetDefault("max_file_size", int64(2)<<30) // 2 GiB
	viper.SetDefault("chunk_size", 4<<20)           // 4 MiB
	viper.SetDefault("compress", false)
	viper.SetDefault("rate_window", time.Minute)
	viper.SetDefault("rate_max", 10)
	viper.SetDefault("retention_age", 30*24*time.Hour)
	viper.SetDefault("sweep_interval", time.Hour)
	viper.SetDefault("debug", false)

	// A missing config file is fine; defaults and envs cover everything.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var appConfig AppConfig
	if err := viper.Unmarshal(&appConfig); err != nil {
		return nil, err
	}

	return &appConfig, nil
}
