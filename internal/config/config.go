package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Network  NetworkConfig  `mapstructure:"network"`
	History  HistoryConfig  `mapstructure:"history"`
	Advanced AdvancedConfig `mapstructure:"advanced"`
	v        *viper.Viper
	mu       sync.RWMutex
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	DataDir string `mapstructure:"data_dir"`
	LogDir  string `mapstructure:"log_dir"`
}

type PlaybackConfig struct {
	// BufferSeconds sizes the PCM ring buffer shared between the decode
	// goroutine and the audio engine's pull callback.
	BufferSeconds float64 `mapstructure:"buffer_seconds"`
	// SecondsToStartPlaying is how much audio must be buffered before the
	// first audible frame of a fresh entry.
	SecondsToStartPlaying float64 `mapstructure:"seconds_to_start_playing"`
	// SecondsAfterUnderrun is the refill level required to leave rebuffering.
	SecondsAfterUnderrun float64 `mapstructure:"seconds_after_underrun"`
	// FramesAfterSeek is the (small) frame count required to resume after a seek.
	FramesAfterSeek int `mapstructure:"frames_after_seek"`
	// ConsumedSignalFraction: the decode goroutine is woken whenever ring
	// occupancy falls below this fraction of capacity.
	ConsumedSignalFraction float64       `mapstructure:"consumed_signal_fraction"`
	ProcessInterval        time.Duration `mapstructure:"process_interval"`
	Volume                 float64       `mapstructure:"volume"`
	// GaplessPrefetch starts buffering the next queued entry while the
	// current one is still playing. Off, the next entry opens only after
	// the current one finishes.
	GaplessPrefetch bool `mapstructure:"gapless_prefetch"`
}

type NetworkConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	ReadBufferSize int           `mapstructure:"read_buffer_size"`
	StreamBufferKB int           `mapstructure:"stream_buffer_kb"`
}

type HistoryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DatabasePath string `mapstructure:"database_path"`
}

type AdvancedConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

func Get() *Config {
	once.Do(func() {
		instance = &Config{
			v: viper.New(),
		}
		instance.load()
	})
	return instance
}

func (c *Config) load() error {
	c.v.SetConfigName("config")
	c.v.SetConfigType("yaml")

	c.v.AddConfigPath(c.getUserConfigDir())
	c.v.AddConfigPath(".")

	c.setDefaults()

	if err := c.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := c.createDefaultConfig(); err != nil {
				return fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := c.v.Unmarshal(c); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	c.v.WatchConfig()
	c.v.OnConfigChange(func(e fsnotify.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.v.Unmarshal(c); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to reload config: %v\n", err)
		}
	})

	return nil
}

func (c *Config) setDefaults() {
	c.v.SetDefault("app.name", "StreamRamp")
	c.v.SetDefault("app.version", "1.0.0")
	c.v.SetDefault("app.data_dir", c.getDataDir())
	c.v.SetDefault("app.log_dir", filepath.Join(c.getDataDir(), "logs"))

	c.v.SetDefault("playback.buffer_seconds", 10.0)
	c.v.SetDefault("playback.seconds_to_start_playing", 2.0)
	c.v.SetDefault("playback.seconds_after_underrun", 1.0)
	c.v.SetDefault("playback.frames_after_seek", 1024)
	c.v.SetDefault("playback.consumed_signal_fraction", 0.5)
	c.v.SetDefault("playback.process_interval", 300*time.Millisecond)
	c.v.SetDefault("playback.volume", 1.0)
	c.v.SetDefault("playback.gapless_prefetch", true)

	c.v.SetDefault("network.timeout", 30*time.Second)
	c.v.SetDefault("network.user_agent", "StreamRamp/1.0")
	c.v.SetDefault("network.read_buffer_size", 16384)
	c.v.SetDefault("network.stream_buffer_kb", 512)

	c.v.SetDefault("history.enabled", true)
	c.v.SetDefault("history.database_path", filepath.Join(c.getDataDir(), "history.db"))

	c.v.SetDefault("advanced.log_level", "info")
}

func (c *Config) getUserConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "StreamRamp")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "streamramp")
}

func (c *Config) getDataDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "StreamRamp")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "streamramp")
}

func (c *Config) createDefaultConfig() error {
	configDir := c.getUserConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.yaml")
	return c.v.SafeWriteConfigAs(configPath)
}

func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.WriteConfig()
}

func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetString(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetDuration(key)
}

func (c *Config) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Set(key, value)
}
