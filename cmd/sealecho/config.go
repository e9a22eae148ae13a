package main

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/seal"
)

// Config is the sealecho configuration file.
type Config struct {
	Addr            string        `yaml:"addr"`
	Cipher          string        `yaml:"cipher"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
	MaxFrameLength  int           `yaml:"max_frame_length"`
	BufferSize      int           `yaml:"buffer_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

func defaultConfig() *Config {
	return &Config{
		Addr:            "127.0.0.1:12345",
		Cipher:          seal.AES256GCM.String(),
		Heartbeat:       30 * time.Second,
		MaxFrameLength:  seal.DefaultMaxFrameLength,
		BufferSize:      16,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
	}
}

// loadConfig reads path over the defaults. An empty path or a missing file
// yields the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if _, err := seal.ParseCipher(c.Cipher); err != nil {
		return err
	}
	if c.MaxFrameLength < 0 || c.MaxFrameLength > 1<<16-1 {
		return errors.Errorf("max_frame_length %d out of range", c.MaxFrameLength)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, errors.Errorf("unknown log_level %q", c.LogLevel)
	}
	return level, nil
}

// connOptions translates the configuration into seal options.
func (c *Config) connOptions(logger seal.Logger) ([]seal.Option, error) {
	cipher, err := seal.ParseCipher(c.Cipher)
	if err != nil {
		return nil, err
	}
	return []seal.Option{
		seal.CipherOption(cipher),
		seal.HeartbeatOption(c.Heartbeat),
		seal.MaxFrameLengthOption(c.MaxFrameLength),
		seal.BufferSizeOption(c.BufferSize),
		seal.LoggerOption(logger),
	}, nil
}
