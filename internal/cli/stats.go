package cli

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show result cache hit/miss counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := newClientFromCmd(cmd).do(cmd.Context(), http.MethodGet, "/stats", nil)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				printf(cmd, "%s\n", data)
				return nil
			}

			var s struct {
				Total   int64   `json:"total_requests"`
				Hits    int64   `json:"cache_hits"`
				Misses  int64   `json:"cache_misses"`
				HitRate float64 `json:"cache_hit_rate"`
			}
			if err := json.Unmarshal(data, &s); err != nil {
				return err
			}
			printf(cmd, "lookups: %d  hits: %d  misses: %d  hit rate: %.1f%%\n", s.Total, s.Hits, s.Misses, s.HitRate)
			return nil
		},
	}
}
