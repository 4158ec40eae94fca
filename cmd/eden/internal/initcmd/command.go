// Package initcmd writes a starter configuration file.
package initcmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/eden/cmd/eden/internal"
	"github.com/tinyland-inc/eden/pkg/config"
)

func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		Example: `  eden init
  eden init --force`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return initCmd(internal.GetConfigPath(), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func initCmd(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	fmt.Println("Set keys.secret (or EDEN_KEYS_SECRET) before starting the gateway.")
	return nil
}
