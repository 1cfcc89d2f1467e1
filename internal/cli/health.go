package cli

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/phishguard/gateway/internal/health"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show composite gateway health; exits 1 when degraded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := newClientFromCmd(cmd).do(cmd.Context(), http.MethodGet, "/health", nil)
			if err != nil {
				return err
			}

			var rep health.Report
			if err := json.Unmarshal(data, &rep); err != nil {
				return err
			}
			if jsonOutput(cmd) {
				printf(cmd, "%s\n", data)
			} else {
				printf(cmd, "status:     %s\n", rep.Status)
				printf(cmd, "cache:      %s\n", rep.Cache)
				printf(cmd, "classifier: %s\n", rep.Classifier)
			}

			if rep.Status != health.Healthy {
				return &ExitError{code: 1}
			}
			return nil
		},
	}
}
