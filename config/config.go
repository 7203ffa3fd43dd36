package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/lightspeed-pagechat/globals"
)

const envPrefix = "LSPAGECHAT"

// Config is the global configuration object which is filled from the configuration file, the environment
// (LSPAGECHAT_*) and command-line flags.
type Config struct {
	Addr           string          `mapstructure:"addr"`
	SSLCert        string          `mapstructure:"ssl_cert"`
	SSLKey         string          `mapstructure:"ssl_key"`
	LogLevel       string          `mapstructure:"log_level"`
	DefaultRoom    string          `mapstructure:"default_room"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	MaxMessageSize int64           `mapstructure:"max_message_size"`
	SendBuffer     int             `mapstructure:"send_buffer"`
	UrlCacheSize   int             `mapstructure:"url_cache_size"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
	Presence       PresenceConfig  `mapstructure:"presence"`

	// DisablePrivateFallback stops private messages for unknown recipients from being broadcast to the room.
	DisablePrivateFallback bool `mapstructure:"disable_private_fallback"`
}

// RateLimitConfig limits the inbound events per connection. EventsPerSecond <= 0 disables the limit.
type RateLimitConfig struct {
	EventsPerSecond float64 `mapstructure:"events_per_second"`
	Burst           int     `mapstructure:"burst"`
}

// PresenceConfig configures the periodic idle/away demotion of webpage visitors.
type PresenceConfig struct {
	SweepSpec string        `mapstructure:"sweep_spec"` // cron spec, f.e. "@every 30s"; empty disables the sweep
	IdleAfter time.Duration `mapstructure:"idle_after"`
	AwayAfter time.Duration `mapstructure:"away_after"`
}

// defaults also registers every key with viper, AutomaticEnv only resolves keys it knows about.
var defaults = map[string]interface{}{
	"addr":                         "localhost:8000",
	"ssl_cert":                     "",
	"ssl_key":                      "",
	"allowed_origins":              []string{},
	"disable_private_fallback":     false,
	"log_level":                    "INFO",
	"default_room":                 globals.DefaultRoomId,
	"max_message_size":             4096,
	"send_buffer":                  256,
	"url_cache_size":               1024,
	"rate_limit.events_per_second": 20.0,
	"rate_limit.burst":             40,
	"presence.sweep_spec":          "@every 30s",
	"presence.idle_after":          "2m",
	"presence.away_after":          "10m",
}

// GetFlagSet returns the flags that can override configuration values.
func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	flagSet.String("addr", "localhost:8000", "ws service address (including port)")
	flagSet.String("ssl-cert", "", "SSL cert for websocket (optional)")
	flagSet.String("ssl-key", "", "SSL key for websocket (optional)")
	flagSet.StringP("log-level", "l", "INFO", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	flagSet.String("default-room", globals.DefaultRoomId, "id of the room that always exists")
	flagSet.StringSlice("allowed-origins", nil, "origins allowed to open a websocket (default: all)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. Only flags that were
// set explicitly override file and environment values.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if flagSet != nil {
		flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
		flagSet.VisitAll(func(f *pflag.Flag) {
			if !f.Changed {
				return
			}
			if err := v.BindPFlag(f.Name, f); err != nil {
				globals.AppLogger.Error("could not bind flag (ignored)", "flag", f.Name, "error", err)
			}
		})
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		v.SetConfigType("toml")
		err = v.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			return nil, err
		}
	}
	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	globals.AppLogger.Debug("config", "cfg", cfg)
	return &cfg, nil
}
