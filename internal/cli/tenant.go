package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTenantCmd создаёт группу команд для tenant'ов.
func NewTenantCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	cmd.AddCommand(
		newTenantCreateCmd(clientFn, outputFn),
		newTenantHealthCmd(clientFn, outputFn),
	)

	return cmd
}

func newTenantCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var slug, tier string

	cmd := &cobra.Command{
		Use:   "create ORGANIZATION_ID",
		Short: "Provision a tenant database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			res, err := client.CreateTenant(CreateTenantRequest{
				OrganizationID: args[0],
				Slug:           slug,
				Tier:           tier,
			})
			if err != nil {
				return err
			}

			printEnqueued(out, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&slug, "slug", "", "Tenant slug (database name suffix)")
	cmd.Flags().StringVar(&tier, "tier", "", "Tenant tier (default: standard)")
	_ = cmd.MarkFlagRequired("slug")

	return cmd
}

func newTenantHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "health ORGANIZATION_ID",
		Short: "Check a tenant database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			report, err := client.TenantHealth(args[0])
			if err != nil && !errors.Is(err, ErrUnavailable) {
				return err
			}

			headers := []string{"ORGANIZATION", "STATUS", "DB_EXISTS", "CONNECT", "SCHEMA", "ERROR"}
			rows := [][]string{{
				report.OrganizationID,
				report.Status,
				strconv.FormatBool(report.DatabaseExists),
				strconv.FormatBool(report.CanConnect),
				report.SchemaVersion,
				report.Error,
			}}
			out.Print(headers, rows, report)

			if err != nil {
				return fmt.Errorf("tenant %s is %s", args[0], report.Status)
			}
			return nil
		},
	}
}

// printEnqueued выводит результат постановки job'а.
func printEnqueued(out *Output, res *EnqueueResponse) {
	if out.jsonMode {
		out.JSON(res)
		return
	}
	out.Table(
		[]string{"JOB_ID", "KIND", "QUEUE", "STATE"},
		[][]string{{res.Job.ID, res.Job.Kind, res.Job.Queue, res.Job.State}},
	)
	if res.Created {
		out.Success("Job enqueued")
	} else {
		out.Success("Job already in progress, returned existing one")
	}
}
