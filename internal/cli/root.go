// Package cli implements the appattest command-line tool.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kacy/device-attestation-client/config"
	"github.com/kacy/device-attestation-client/internal/app"
	"github.com/kacy/device-attestation-client/internal/logging"
)

// Options holds the global flags.
type Options struct {
	ConfigFile         string
	Platform           string
	CloudProjectNumber string
	StorageDir         string
	OutputFormat       string
	Timeout            time.Duration
	Verbose            bool
}

// NewRootCommand returns the appattest command tree writing results to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &Options{}
	var application *app.App

	root := &cobra.Command{
		Use:   "appattest",
		Short: "appattest - unified device attestation client",
		Long: `appattest drives the unified attestation API over Apple App Attest,
Google Play Integrity and the web fallback.

Off-device the native services are software stand-ins:
  - ios:     App Attest simulator signing with a development CA
  - android: Play Integrity emulator issuing verdict payloads
  - web:     random handles, attestation unavailable`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
			if opts.Verbose {
				logger.SetLevel(logrus.DebugLevel)
			}

			application, err = app.New(cfg, logger)
			return err
		},
	}

	root.PersistentFlags().StringVar(&opts.ConfigFile, "config", "",
		"config file (YAML)")
	root.PersistentFlags().StringVar(&opts.Platform, "platform", "",
		"platform override (auto, ios, android, web)")
	root.PersistentFlags().StringVar(&opts.CloudProjectNumber, "cloud-project-number", "",
		"default Google Cloud project number")
	root.PersistentFlags().StringVar(&opts.StorageDir, "storage-dir", "",
		"persist the key handle in this directory")
	root.PersistentFlags().StringVarP(&opts.OutputFormat, "output", "o", "text",
		"output format (text, json)")
	root.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second,
		"deadline for dispatching native calls")
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose output")

	env := &environment{
		opts: opts,
		out:  out,
		app:  func() *app.App { return application },
	}

	root.AddCommand(
		newSupportedCommand(env),
		newPrepareCommand(env),
		newAttestCommand(env),
		newAssertCommand(env),
		newStoreCommand(env),
		newGetCommand(env),
		newClearCommand(env),
		newLifecycleCommand(env),
		newRootCACommand(env),
		newLegacyCommand(env),
	)

	return root
}

// Execute runs the command tree against the process arguments.
func Execute() error {
	return NewRootCommand(os.Stdout).Execute()
}

// loadConfig reads the config file and applies flags over it.
func loadConfig(cmd *cobra.Command, opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("platform") {
		cfg.Platform = opts.Platform
	}
	if flags.Changed("cloud-project-number") {
		cfg.CloudProjectNumber = opts.CloudProjectNumber
	}
	if flags.Changed("storage-dir") {
		cfg.Storage.Driver = config.DriverFile
		cfg.Storage.Dir = opts.StorageDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
