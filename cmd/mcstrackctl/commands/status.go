package commands

import (
	"github.com/spf13/cobra"
)

// statusReply mirrors the daemon's /api/v1/status body.
type statusReply struct {
	Status      string `json:"status"                 yaml:"status"`
	Version     string `json:"version"                yaml:"version"`
	Peers       int    `json:"peers"                  yaml:"peers"`
	Detectors   int    `json:"connected_detectors"    yaml:"connected_detectors"`
	PoseSolvers int    `json:"connected_pose_solvers" yaml:"connected_pose_solvers"`
}

// statusCmd shows the overall tracking state.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's tracking status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var reply statusReply
			if err := apiGet("/api/v1/status", &reply); err != nil {
				return err
			}

			if outputFormat != formatTable {
				out, err := renderStructured(reply, outputFormat)
				if err != nil {
					return err
				}
				cmd.Println(out)
				return nil
			}

			cmd.Printf("Status:       %s\n", colorStatus(reply.Status))
			cmd.Printf("Version:      %s\n", reply.Version)
			cmd.Printf("Peers:        %d\n", reply.Peers)
			cmd.Printf("Detectors:    %d connected\n", reply.Detectors)
			cmd.Printf("Pose solvers: %d connected\n", reply.PoseSolvers)
			return nil
		},
	}
}
