// Eden - authenticated telemetry gateway for CrateDB

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/eden/cmd/eden/internal"
	"github.com/tinyland-inc/eden/cmd/eden/internal/gateway"
	"github.com/tinyland-inc/eden/cmd/eden/internal/initcmd"
	"github.com/tinyland-inc/eden/cmd/eden/internal/version"
)

func NewEdenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "eden",
		Short:   fmt.Sprintf("eden - Telemetry gateway v%s", internal.GetVersion()),
		Example: "eden gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		initcmd.NewInitCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewEdenCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
