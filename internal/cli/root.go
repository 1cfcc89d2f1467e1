// Package cli implements phishctl, an operator client for a running gateway.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultGateway = "http://127.0.0.1:8080"

// ExitError carries a process exit code out of a command.
type ExitError struct {
	code int
	msg  string
}

func (e *ExitError) Error() string { return e.msg }
func (e *ExitError) Code() int     { return e.code }
func (e *ExitError) Message() string {
	return e.msg
}

func NewRoot(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "phishctl",
		Short:         "phishctl: query a PhishGuard gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("phishctl {{.Version}}\n")

	cmd.PersistentFlags().String("gateway", getenvDefault("PHISHGUARD_GATEWAY", defaultGateway), "gateway base URL")
	cmd.PersistentFlags().Duration("timeout", 15*time.Second, "request timeout")
	cmd.PersistentFlags().Bool("json", false, "print raw JSON responses")

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newStatsCmd())

	return cmd
}

func newClientFromCmd(cmd *cobra.Command) *client {
	gateway, _ := cmd.Root().PersistentFlags().GetString("gateway")
	timeout, _ := cmd.Root().PersistentFlags().GetDuration("timeout")
	if gateway == "" {
		gateway = defaultGateway
	}
	return newClient(gateway, timeout)
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Root().PersistentFlags().GetBool("json")
	return v
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
