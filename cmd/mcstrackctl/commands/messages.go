package commands

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// statusMessage mirrors the daemon's /api/v1/statusmessages entries.
type statusMessage struct {
	Severity    string `json:"severity"     yaml:"severity"`
	Message     string `json:"message"      yaml:"message"`
	SourceLabel string `json:"source_label" yaml:"source_label"`
	Timestamp   string `json:"timestamp"    yaml:"timestamp"`
}

// messagesCmd drains and displays accumulated status messages.
func messagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages",
		Short: "Drain accumulated status messages from the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var messages []statusMessage
			if err := apiGet("/api/v1/statusmessages", &messages); err != nil {
				return err
			}

			if outputFormat != formatTable {
				out, err := renderStructured(messages, outputFormat)
				if err != nil {
					return err
				}
				cmd.Println(out)
				return nil
			}

			if len(messages) == 0 {
				cmd.Println("No status messages.")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("TIME", "SEVERITY", "SOURCE", "MESSAGE")
			for _, message := range messages {
				if err := table.Append(
					message.Timestamp,
					colorSeverity(message.Severity),
					message.SourceLabel,
					message.Message,
				); err != nil {
					return fmt.Errorf("append message row: %w", err)
				}
			}
			if err := table.Render(); err != nil {
				return fmt.Errorf("render message table: %w", err)
			}
			return nil
		},
	}
}
