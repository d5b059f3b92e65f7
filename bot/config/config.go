package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// Config wraps viper and provides typed accessors.
type Config struct {
	v *viper.Viper
}

// Load reads an INI config file and prepares defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MUZMOBOT")
	v.AutomaticEnv()

	setDefaults(v)

	if strings.EqualFold(filepath.Ext(path), ".ini") {
		if err := loadINI(v, path); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return &Config{v: v}, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &Config{v: v}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BotAPI", "https://api.telegram.org")
	v.SetDefault("BotDebug", false)
	v.SetDefault("BaseURL", "https://rmr.muzmo.cc")
	v.SetDefault("UserAgent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("FILE_SIZE_LIMIT", 50)
	v.SetDefault("PAGES_SCANNING", 2)
	v.SetDefault("SEARCH_RESULTS", 10)
	v.SetDefault("SearchTimeout", 10)
	v.SetDefault("SearchRetries", 1)
	v.SetDefault("ResolveMaxAttempts", 3)
	v.SetDefault("ResolveRetryDelayMs", 500)
	v.SetDefault("TransferConcurrency", 10)
	v.SetDefault("TransferTimeout", 300)
	v.SetDefault("DirectSendLimitMB", 20)
	v.SetDefault("ChunkSizeKB", 64)
	v.SetDefault("RankPartitions", 4)
	v.SetDefault("WorkerPoolSize", 4)
	v.SetDefault("SessionTTLMinutes", 30)
	v.SetDefault("SessionCapacity", 10000)
	v.SetDefault("MinQueryLength", 3)
	v.SetDefault("CacheDir", "./cache")
	v.SetDefault("Database", "cache.db")
	v.SetDefault("DBMaxOpenConns", 1)
	v.SetDefault("DBMaxIdleConns", 1)
	v.SetDefault("DBConnMaxLifetimeSec", 3600)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "text")
	v.SetDefault("LogSource", false)
	v.SetDefault("GormLogLevel", "warn")
	v.SetDefault("RateLimitPerSecond", 1.0)
	v.SetDefault("RateLimitBurst", 3)
	v.SetDefault("MetricsListen", "")
	v.SetDefault("LogDir", "./log")
	v.SetDefault("MaxConcurrentUpdates", 64)
}

// BotToken returns BOT_TOKEN, falling back to the legacy TOKEN key.
func (c *Config) BotToken() string {
	if token := strings.TrimSpace(c.v.GetString("BOT_TOKEN")); token != "" {
		return token
	}
	return strings.TrimSpace(c.v.GetString("TOKEN"))
}

// GetString returns a string value.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns an int value.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetInt64 returns an int64 value.
func (c *Config) GetInt64(key string) int64 {
	return c.v.GetInt64(key)
}

// GetFloat64 returns a float64 value.
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool returns a bool value.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetIntSlice returns a slice of ints.
func (c *Config) GetIntSlice(key string) []int {
	return c.v.GetIntSlice(key)
}

// GetSeconds reads an integer key as a number of seconds.
func (c *Config) GetSeconds(key string) time.Duration {
	return time.Duration(c.v.GetInt(key)) * time.Second
}

// GetMegabytes reads an integer key as a size in MiB and returns bytes.
func (c *Config) GetMegabytes(key string) int64 {
	return c.v.GetInt64(key) * 1024 * 1024
}

func loadINI(v *viper.Viper, path string) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return err
	}

	// Legacy files keep everything under [Settings]; flat keys win over it.
	for _, section := range []string{"Settings", ini.DefaultSection} {
		if !cfg.HasSection(section) {
			continue
		}
		for _, key := range cfg.Section(section).Keys() {
			v.Set(key.Name(), key.Value())
		}
	}

	return nil
}
