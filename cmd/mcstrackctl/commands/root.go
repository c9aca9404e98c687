// Package commands implements the mcstrackctl CLI commands.
package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverAddr is the daemon API address (host:port).
	serverAddr string

	// outputFormat controls the output format for all commands.
	outputFormat string

	// httpClient is the shared client for daemon API requests.
	httpClient = &http.Client{Timeout: 10 * time.Second}
)

// rootCmd is the top-level cobra command for mcstrackctl.
var rootCmd = &cobra.Command{
	Use:   "mcstrackctl",
	Short: "CLI client for the mcstrackd daemon",
	Long:  "mcstrackctl queries the mcstrackd daemon's read-only HTTP API to inspect the tracking fleet.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8760",
		"mcstrackd daemon API address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable,
		"output format: table, json, yaml")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(reportsCmd())
	rootCmd.AddCommand(frameCmd())
	rootCmd.AddCommand(messagesCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// apiGet fetches one daemon API endpoint and decodes the JSON body.
func apiGet(path string, into any) error {
	url := "http://" + serverAddr + path
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: daemon returned %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode %s response: %w", url, err)
	}
	return nil
}
