package cli

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/phishguard/gateway/internal/classify"
)

func newCheckCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "check URL",
		Short: "Classify a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := classify.ParseSensitivityMode(mode); err != nil {
				return &ExitError{code: 2, msg: err.Error()}
			}

			c := newClientFromCmd(cmd)
			data, err := c.do(cmd.Context(), http.MethodPost, "/classify", map[string]string{
				"url":              args[0],
				"sensitivity_mode": mode,
			})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				printf(cmd, "%s\n", data)
				return nil
			}

			var res classify.Result
			if err := json.Unmarshal(data, &res); err != nil {
				return err
			}
			verdict := "SAFE"
			if res.IsPhishing {
				verdict = "PHISHING"
			}
			printf(cmd, "%s  %s\n", verdict, res.URL)
			printf(cmd, "  threat level: %s\n", res.ThreatLevel)
			printf(cmd, "  confidence:   %.2f (threshold %.2f, %s)\n", res.Confidence, res.ThresholdUsed, res.SensitivityMode)
			printf(cmd, "  cached:       %t\n", res.Cached)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(classify.Balanced), "sensitivity mode: conservative|balanced|aggressive")
	return cmd
}
