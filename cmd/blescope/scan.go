package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby BLE peripherals",
	Long: `Scan for nearby BLE peripherals and print the discovered collection.

Filters combine conjunctively: a device must satisfy every filter given to be
included. Repeat advertisements from the same device update its entry in
place; the collection holds one entry per device identity, in discovery
order.

Examples:
  blescope scan
  blescope scan --duration 5s --name sensor
  blescope scan --services 180d,180f --format json
  blescope scan --events`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationP("duration", "d", 0, "Scan duration (default from config, 0 with --events scans until Ctrl+C)")
	scanCmd.Flags().String("name", "", "Keep only devices whose name contains the substring (case-insensitive)")
	scanCmd.Flags().StringSlice("allow", nil, "Keep only devices with these identifiers")
	scanCmd.Flags().StringSlice("services", nil, "Keep only devices advertising at least one of these service UUIDs")
	scanCmd.Flags().Bool("events", false, "Stream discovery events as they happen instead of a final table")
	scanCmd.Flags().String("format", "", "Output format: table, json (default from config)")
}

func runScan(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	duration, _ := cmd.Flags().GetDuration("duration")
	name, _ := cmd.Flags().GetString("name")
	allow, _ := cmd.Flags().GetStringSlice("allow")
	services, _ := cmd.Flags().GetStringSlice("services")
	streamEvents, _ := cmd.Flags().GetBool("events")
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = app.cfg.OutputFormat
	}

	if len(services) > 0 {
		if _, err := core.ValidateUUID(services...); err != nil {
			return err
		}
	}

	opts := scan.DefaultOptions()
	if cmd.Flags().Changed("duration") {
		opts.Timeout = duration
	} else if app.cfg.ScanTimeout > 0 {
		opts.Timeout = app.cfg.ScanTimeout.Std()
	}
	opts.NameContains = name
	opts.AllowedIDs = allow
	opts.ServiceUUIDs = services

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.scanner.Start(ctx, opts); err != nil {
		return err
	}

	if streamEvents {
		return streamScanEvents(ctx, app)
	}

	progress := NewProgressPrinter("Scanning", "Listening for advertisements")
	progress.Start()

	waitScanDone(ctx, app)
	progress.Stop()

	if err := app.scanner.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	devices := app.scanner.Snapshot()
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}
	printScanTable(devices)
	return nil
}

// waitScanDone blocks until the scan ends on its own or the context is
// cancelled; on cancellation it stops the scan and waits for the terminal
// event so the snapshot is final.
func waitScanDone(ctx context.Context, app *app) {
	done := make(chan struct{})
	go func() {
		_ = app.scanner.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		app.scanner.Stop()
		<-done
	}
}

func streamScanEvents(ctx context.Context, app *app) error {
	events := app.scanner.Events()
	for {
		select {
		case <-ctx.Done():
			app.scanner.Stop()
			_ = app.scanner.Wait()
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case scan.EventStopped:
				fmt.Printf("%s scan stopped, %d device(s) found\n",
					color.CyanString("--"), app.scanner.Len())
				return app.scanner.Wait()
			case scan.EventNew:
				fmt.Printf("%s %s\n", color.GreenString("++"), formatPeripheralLine(ev.Peripheral))
			case scan.EventUpdated:
				fmt.Printf("%s %s\n", color.YellowString("~~"), formatPeripheralLine(ev.Peripheral))
			}
		}
	}
}

func formatPeripheralLine(p core.PeripheralInfo) string {
	name := p.Name
	if name == "" {
		name = "(unnamed)"
	}
	line := fmt.Sprintf("%s  %-24s  %4d dBm", p.ID, name, p.RSSI)
	if len(p.AdvertisedServices) > 0 {
		short := make([]string, len(p.AdvertisedServices))
		for i, s := range p.AdvertisedServices {
			short[i] = core.ShortenUUID(s)
		}
		line += "  [" + strings.Join(short, " ") + "]"
	}
	return line
}

func printScanTable(devices []core.PeripheralInfo) {
	if len(devices) == 0 {
		fmt.Println("No devices found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tRSSI\tCONNECTABLE\tSERVICES\tLAST SEEN")
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "-"
		}
		services := "-"
		if len(d.AdvertisedServices) > 0 {
			short := make([]string, len(d.AdvertisedServices))
			for i, s := range d.AdvertisedServices {
				short[i] = core.ShortenUUID(s)
			}
			services = strings.Join(short, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%s\n",
			d.ID, name, d.RSSI, d.Connectable, services,
			d.LastSeen.Format(time.TimeOnly))
	}
	_ = w.Flush()
	fmt.Printf("\n%d device(s) found\n", len(devices))
}
