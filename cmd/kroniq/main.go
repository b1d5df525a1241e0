package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/config"
)

var version = "dev"

// rootOptions carries the persistent flags and the config they resolve to.
type rootOptions struct {
	configPath string
	envFile    string
	cfg        *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "kroniq",
		Short:         "KroniQ usage metering and generation routing engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd.Flag("config").Changed)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "kroniq.yaml", "path to config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newServeCmd(opts),
		newMCPCmd(opts),
		newUsageCmd(opts),
		newTokensCmd(opts),
		newTierCmd(opts),
		newClassifyCmd(opts),
		newRouteCmd(opts),
		newPolicyCmd(opts),
		newAuditCmd(opts),
	)
	return root
}

// load reads the dotenv file and the config. A missing default config file
// falls back to built-in defaults; an explicitly named one must exist.
func (o *rootOptions) load(explicit bool) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	if !explicit {
		if _, err := os.Stat(o.configPath); errors.Is(err, fs.ErrNotExist) {
			o.cfg = config.Default()
			return nil
		}
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.cfg = cfg
	return nil
}
