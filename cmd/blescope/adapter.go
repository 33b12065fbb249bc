package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blescope/blescope/internal/core"
)

var adapterCmd = &cobra.Command{
	Use:   "adapter",
	Short: "Report the Bluetooth adapter state",
	Long: `Probe the host Bluetooth adapter and report its power state.

Exits with a non-zero status when the adapter is off or unavailable, so the
command doubles as a scriptable precondition check.`,
	RunE: runAdapter,
}

func init() {
	adapterCmd.Flags().String("format", "", "Output format: table, json (default from config)")
}

func runAdapter(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	state := app.monitor.Refresh(cmd.Context())

	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = app.cfg.OutputFormat
	}

	if format == "json" {
		out := struct {
			State  string `json:"state"`
			Usable bool   `json:"usable"`
		}{State: state.String(), Usable: app.monitor.Usable()}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		fmt.Printf("Adapter: %s\n", colorizeAdapterState(state))
	}

	if !app.monitor.Usable() {
		return core.ErrAdapterUnavailable
	}
	return nil
}

func colorizeAdapterState(state core.AdapterState) string {
	switch state {
	case core.AdapterOn:
		return color.GreenString(state.String())
	case core.AdapterOff, core.AdapterTurningOff:
		return color.RedString(state.String())
	default:
		return color.YellowString(state.String())
	}
}
