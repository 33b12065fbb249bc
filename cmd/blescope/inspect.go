package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/inspector"
	"github.com/blescope/blescope/internal/session"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <device-id>",
	Short: "Connect to a peripheral and list its GATT services",
	Long: `Connect to a peripheral, discover its GATT database, print the service and
characteristic tree, and disconnect.

Discovery always queries the live device; results are never cached across
connections.

Examples:
  blescope inspect AA:BB:CC:DD:EE:FF
  blescope inspect AA:BB:CC:DD:EE:FF --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().String("format", "", "Output format: table, json (default from config)")
	inspectCmd.Flags().Bool("all", false, "Include characteristics with no supported operations")
	inspectCmd.Flags().Duration("connect-timeout", 0, "Connection timeout (default from config)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = app.cfg.OutputFormat
	}
	showAll, _ := cmd.Flags().GetBool("all")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := NewProgressPrinter("Inspecting "+args[0], "Connecting")
	progress.Start()
	defer progress.Stop()

	tree, err := inspector.WithDevice(ctx, app.sessions, app.engine, args[0],
		inspectorOptions(cmd, app),
		app.logger, progress.Callback(),
		func(_ *session.Session, tree []*core.ServiceDescriptor) ([]*core.ServiceDescriptor, error) {
			return tree, nil
		})
	progress.Stop()
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	}
	printGattTree(tree, showAll)
	return nil
}

func printGattTree(tree []*core.ServiceDescriptor, showAll bool) {
	if len(tree) == 0 {
		fmt.Println("No services discovered")
		return
	}

	for _, svc := range tree {
		label := svc.UUID
		if svc.Name != "" {
			label = fmt.Sprintf("%s (%s)", svc.UUID, svc.Name)
		}
		fmt.Printf("%s %s\n", color.CyanString("service"), label)

		for _, ch := range svc.Characteristics {
			if !showAll && !ch.Capabilities.Actionable() {
				continue
			}
			charLabel := ch.UUID
			if ch.Name != "" {
				charLabel = fmt.Sprintf("%s (%s)", ch.UUID, ch.Name)
			}
			fmt.Printf("  %s  [%s]\n", charLabel, formatCapabilities(ch.Capabilities))
		}
	}
}

func formatCapabilities(c core.Capabilities) string {
	var caps []string
	if c.Readable {
		caps = append(caps, "read")
	}
	if c.Writable {
		caps = append(caps, "write")
	}
	if c.Notifiable {
		caps = append(caps, "notify")
	}
	if len(caps) == 0 {
		return "none"
	}
	return strings.Join(caps, " ")
}
