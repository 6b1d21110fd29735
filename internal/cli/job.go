package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для job'ов.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Enqueue and inspect jobs",
	}

	cmd.AddCommand(
		newJobShowCmd(clientFn, outputFn),
		newJobCleanupCmd(clientFn, outputFn),
		newJobChannelSyncCmd(clientFn, outputFn),
		newJobLogoSyncCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var wait bool
	var interval, timeout time.Duration

	cmd := &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show job state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			deadline := time.Now().Add(timeout)
			for wait && !job.Finished() {
				if time.Now().After(deadline) {
					return fmt.Errorf("job %s still %s after %s", job.ID, job.State, timeout)
				}
				out.Progress("job %s: %s (attempt %d/%d)", job.ID, job.State, job.Attempts, job.MaxAttempts)
				time.Sleep(interval)
				if job, err = client.GetJob(args[0]); err != nil {
					return err
				}
			}

			headers := []string{"ID", "KIND", "QUEUE", "STATE", "ATTEMPTS", "LAST_ERROR"}
			rows := [][]string{{
				job.ID,
				job.Kind,
				job.Queue,
				job.State,
				strconv.Itoa(job.Attempts) + "/" + strconv.Itoa(job.MaxAttempts),
				job.LastError,
			}}
			out.Print(headers, rows, job)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the job completes or fails")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval for --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up waiting after this long")

	return cmd
}

func newJobCleanupCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var orgID string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Expire attachments past their retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := clientFn().CleanupAttachments(orgID)
			if err != nil {
				return err
			}
			printEnqueued(outputFn(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "system", `Organization ID ("system" for all tenants)`)

	return cmd
}

func newJobChannelSyncCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var orgID string

	cmd := &cobra.Command{
		Use:   "channel-sync CHANNEL_ID",
		Short: "Refresh channel status from the WhatsApp gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := clientFn().SyncChannel(orgID, args[0])
			if err != nil {
				return err
			}
			printEnqueued(outputFn(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&orgID, "org", "", "Organization ID owning the channel")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func newJobLogoSyncCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var logoURL string

	cmd := &cobra.Command{
		Use:   "logo-sync ORGANIZATION_ID",
		Short: "Propagate an organization logo to mirrored contacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := clientFn().SyncLogo(args[0], logoURL)
			if err != nil {
				return err
			}
			printEnqueued(outputFn(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&logoURL, "url", "", "New logo URL")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}
