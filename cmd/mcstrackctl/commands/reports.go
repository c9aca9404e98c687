package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// connectionReport mirrors the daemon's /api/v1/reports entries.
type connectionReport struct {
	Label  string `json:"label"  yaml:"label"`
	Role   string `json:"role"   yaml:"role"`
	Host   string `json:"host"   yaml:"host"`
	Port   uint16 `json:"port"   yaml:"port"`
	Status string `json:"status" yaml:"status"`
}

// reportsCmd lists every peer with its connection status.
func reportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List peer connection reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var reports []connectionReport
			if err := apiGet("/api/v1/reports", &reports); err != nil {
				return err
			}

			if outputFormat != formatTable {
				out, err := renderStructured(reports, outputFormat)
				if err != nil {
					return err
				}
				cmd.Println(out)
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("LABEL", "ROLE", "HOST", "PORT", "STATUS")
			for _, report := range reports {
				if err := table.Append(
					report.Label,
					report.Role,
					report.Host,
					strconv.Itoa(int(report.Port)),
					colorStatus(report.Status),
				); err != nil {
					return fmt.Errorf("append report row: %w", err)
				}
			}
			if err := table.Render(); err != nil {
				return fmt.Errorf("render report table: %w", err)
			}
			return nil
		},
	}
}
