package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewHostCmd создаёт группу команд для хостов каталога.
func NewHostCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Manage database hosts",
	}

	cmd.AddCommand(
		newHostAddCmd(clientFn, outputFn),
		newHostListCmd(clientFn, outputFn),
		newHostStatusCmd(clientFn, outputFn),
	)

	return cmd
}

func newHostAddCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateHostRequest

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a database host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]

			host, err := clientFn().CreateHost(req)
			if err != nil {
				return err
			}

			out := outputFn()
			printHosts(out, []HostResponse{*host}, host)
			out.Success("Host registered")
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Host, "host", "", "Host name or address of the pooler")
	cmd.Flags().IntVar(&req.Port, "port", 6432, "Port")
	cmd.Flags().StringVar(&req.Region, "region", "", "Region")
	cmd.Flags().StringVar(&req.Tier, "tier", "", "Tier (default: standard)")
	cmd.Flags().IntVar(&req.MaxTenants, "max-tenants", 100, "Tenant capacity")
	cmd.Flags().BoolVar(&req.IsDefault, "default", false, "Prefer this host for new tenants")
	_ = cmd.MarkFlagRequired("host")

	return cmd
}

func newHostListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List database hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, err := clientFn().ListHosts()
			if err != nil {
				return err
			}
			printHosts(outputFn(), hosts, hosts)
			return nil
		},
	}
}

func newHostStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:       "status HOST_ID active|draining|offline",
		Short:     "Change host status",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"active", "draining", "offline"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().SetHostStatus(args[0], args[1]); err != nil {
				return err
			}
			outputFn().Success("Host " + args[0] + " is now " + args[1])
			return nil
		},
	}
}

func printHosts(out *Output, hosts []HostResponse, jsonData any) {
	headers := []string{"ID", "NAME", "ADDRESS", "REGION", "TENANTS", "STATUS", "DEFAULT"}
	rows := make([][]string, len(hosts))
	for i, h := range hosts {
		rows[i] = []string{
			h.ID,
			h.Name,
			h.Host + ":" + strconv.Itoa(h.Port),
			h.Region,
			strconv.Itoa(h.CurrentTenants) + "/" + strconv.Itoa(h.MaxTenants),
			h.Status,
			strconv.FormatBool(h.IsDefault),
		}
	}
	out.Print(headers, rows, jsonData)
}
