// Command sealecho runs an encrypted echo session over seal.
//
// Both sides exchange X25519 public keys in plaintext hello messages, derive
// per-direction keys and switch the connection to authenticated encryption.
// Every line typed into `sealecho dial` is echoed back by `sealecho serve`.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zereker/seal"
)

type globalFlags struct {
	configPath string
	addr       string
	cipher     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "sealecho",
		Short:         "Encrypted echo over length-prefixed AEAD frames",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.addr, "addr", "", "listen or dial address (overrides config)")
	root.PersistentFlags().StringVar(&flags.cipher, "cipher", "", "aes-256-gcm or chacha20-poly1305 (overrides config)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	root.AddCommand(newServeCmd(flags), newDialCmd(flags))
	return root
}

// load resolves the configuration file and applies flag overrides.
func (f *globalFlags) load() (*Config, seal.Logger, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.cipher != "" {
		cfg.Cipher = f.cipher
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	level, _ := cfg.level()
	return cfg, seal.NewTextLogger(os.Stderr, level), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sealecho:", err)
		os.Exit(1)
	}
}
