package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// errUnsupportedFormat is returned when the requested output format is not
// supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// renderStructured renders v as JSON or YAML. Table rendering is
// command-specific; callers fall back here for the structured formats.
func renderStructured(v any, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal json: %w", err)
		}
		return string(data), nil
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal yaml: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// colorStatus renders a session or system status with a terminal color:
// green for healthy, yellow for transitional, red for failed.
func colorStatus(status string) string {
	switch status {
	case "connected", "running":
		return color.GreenString(status)
	case "connecting", "disconnecting", "starting", "stopping":
		return color.YellowString(status)
	case "aborted":
		return color.RedString(status)
	default:
		return status
	}
}

// colorSeverity renders a status message severity with a terminal color.
func colorSeverity(severity string) string {
	switch severity {
	case "error":
		return color.RedString(severity)
	case "warning":
		return color.YellowString(severity)
	case "debug":
		return color.HiBlackString(severity)
	default:
		return severity
	}
}
