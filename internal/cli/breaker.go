package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewBreakerCmd создаёт группу команд для circuit breaker'ов.
func NewBreakerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breaker",
		Short: "Inspect circuit breakers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List circuit breakers",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := clientFn().ListBreakers()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "STATE", "FAILURES", "CALLS", "REJECTED", "LAST_FAILURE"}
			rows := make([][]string, len(stats))
			for i, s := range stats {
				rows[i] = []string{
					s.Name,
					s.State,
					strconv.Itoa(s.ConsecutiveFailures),
					strconv.FormatInt(s.TotalCalls, 10),
					strconv.FormatInt(s.TotalRejected, 10),
					s.LastFailureTime,
				}
			}

			outputFn().Print(headers, rows, stats)
			return nil
		},
	})

	return cmd
}
