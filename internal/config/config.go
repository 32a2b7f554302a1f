// Package config loads the CLI configuration.
//
// Values are layered with the following precedence:
//  1. Command-line flags (highest priority)
//  2. Environment variables (RIOTLS_* prefix)
//  3. Configuration file (riotls.yaml)
//  4. Default values (lowest priority)
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/brickingsoft/riotls"
	"github.com/brickingsoft/riotls/pkg/ring"
	"github.com/brickingsoft/riotls/pkg/security"
	"github.com/brickingsoft/riotls/pkg/sys"
	"github.com/brickingsoft/riotls/pkg/tags"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the dial settings shared by every command.
type Config struct {
	Substrate     string        `mapstructure:"substrate"`
	Entries       uint32        `mapstructure:"entries"`
	ReadBuffer    int           `mapstructure:"read_buffer"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Fingerprint   string        `mapstructure:"fingerprint"`
	ALPN          []string      `mapstructure:"alpn"`
	CAFiles       []string      `mapstructure:"ca_files"`
	ServerName    string        `mapstructure:"server_name"`
	VerifyBuffers bool          `mapstructure:"verify_buffers"`
	// Allocator is one of monotonic, fixed, randomized or arena.
	Allocator string `mapstructure:"allocator"`
	ArenaSize int    `mapstructure:"arena_size"`
	NoDelay   bool   `mapstructure:"no_delay"`

	Metrics string `mapstructure:"metrics"`
	Debug   bool   `mapstructure:"debug"`
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"substrate":      "substrate",
	"entries":        "entries",
	"read-buffer":    "read_buffer",
	"timeout":        "timeout",
	"fingerprint":    "fingerprint",
	"alpn":           "alpn",
	"ca-file":        "ca_files",
	"server-name":    "server_name",
	"verify-buffers": "verify_buffers",
	"allocator":      "allocator",
	"arena-size":     "arena_size",
	"no-delay":       "no_delay",
	"metrics":        "metrics",
	"debug":          "debug",
}

// Load reads configPath (or riotls.yaml from the usual locations when empty), then the
// environment, then every flag of flags the user actually set.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("riotls")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.riotls")
		v.AddConfigPath("/etc/riotls")

		// Ignore error if config file not found
		_ = v.ReadInConfig()
	}

	v.SetEnvPrefix("RIOTLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("substrate", ring.KindAuto.String())
	v.SetDefault("entries", ring.DefaultEntries)
	v.SetDefault("read_buffer", riotls.DefaultReadBufferSize)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("fingerprint", "none")
	v.SetDefault("alpn", []string{"http/1.1"})
	v.SetDefault("ca_files", []string{})
	v.SetDefault("allocator", "monotonic")
	v.SetDefault("arena_size", ring.DefaultEntries)
	v.SetDefault("no_delay", true)
}

func (c *Config) validate() error {
	if _, err := ring.ParseKind(c.Substrate); err != nil {
		return fmt.Errorf("invalid substrate %q: %w", c.Substrate, err)
	}
	if c.Entries == 0 || c.Entries > ring.MaxEntries {
		return fmt.Errorf("entries must be between 1 and %d", ring.MaxEntries)
	}
	if c.ReadBuffer <= 0 {
		return fmt.Errorf("read_buffer must be positive")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if _, _, err := security.ParseFingerprint(c.Fingerprint); err != nil {
		return fmt.Errorf("invalid fingerprint %q: %w", c.Fingerprint, err)
	}
	if _, err := c.allocator(); err != nil {
		return err
	}
	return nil
}

func (c *Config) allocator() (func() tags.Allocator, error) {
	switch strings.ToLower(c.Allocator) {
	case "", "monotonic":
		return func() tags.Allocator { return tags.NewMonotonic() }, nil
	case "fixed":
		return func() tags.Allocator { return tags.Fixed{} }, nil
	case "randomized":
		return func() tags.Allocator { return tags.NewRandomized() }, nil
	case "arena":
		if c.ArenaSize <= 0 {
			return nil, fmt.Errorf("arena_size must be positive")
		}
		size := c.ArenaSize
		return func() tags.Allocator { return tags.NewArena(size) }, nil
	default:
		return nil, fmt.Errorf("unknown allocator %q", c.Allocator)
	}
}

// DialOptions translates the configuration into dial options. Logger and registerer are
// left to the caller.
func (c *Config) DialOptions() ([]riotls.Option, error) {
	kind, err := ring.ParseKind(c.Substrate)
	if err != nil {
		return nil, err
	}
	engine, err := security.ParseEngine(c.Fingerprint, c.ALPN...)
	if err != nil {
		return nil, err
	}
	allocator, err := c.allocator()
	if err != nil {
		return nil, err
	}
	options := []riotls.Option{
		riotls.WithSubstrate(kind),
		riotls.WithRingEntries(c.Entries),
		riotls.WithReadBufferSize(c.ReadBuffer),
		riotls.WithTLSEngine(engine),
		riotls.WithTagAllocator(allocator),
		riotls.WithVerifyBuffers(c.VerifyBuffers),
		riotls.WithSocketFactory(sys.Sockets{NoDelay: c.NoDelay}),
	}
	if c.Timeout > 0 {
		options = append(options, riotls.WithTimeout(c.Timeout))
	}
	if len(c.CAFiles) > 0 {
		options = append(options, riotls.WithCAFiles(c.CAFiles...))
	}
	if c.ServerName != "" {
		options = append(options, riotls.WithServerName(c.ServerName))
	}
	return options, nil
}
