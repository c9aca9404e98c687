package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// frameCmd fetches the latest frame snapshot for one peer.
func frameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "frame <label>",
		Short: "Show the latest frame produced by a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var frame json.RawMessage
			if err := apiGet("/api/v1/frames/"+args[0], &frame); err != nil {
				return err
			}

			format := outputFormat
			if format == formatTable {
				// Frames are nested structures; tables add nothing.
				format = formatJSON
			}
			var decoded any
			if err := json.Unmarshal(frame, &decoded); err != nil {
				return err
			}
			out, err := renderStructured(decoded, format)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}
}
