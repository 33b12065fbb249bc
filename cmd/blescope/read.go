package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/discovery"
	"github.com/blescope/blescope/internal/inspector"
	"github.com/blescope/blescope/internal/session"
)

var readCmd = &cobra.Command{
	Use:   "read <device-id> <characteristic-uuid>",
	Short: "Read a characteristic value",
	Long: `Connect to a peripheral, read one characteristic, print its decoded value,
and disconnect.

The value is printed in every projection that applies: raw hex always, UTF-8
text when the payload decodes cleanly, and a parsed JSON object when the text
is one.

Examples:
  blescope read AA:BB:CC:DD:EE:FF 2a00
  blescope read AA:BB:CC:DD:EE:FF 2a00 --service 1800 --format json
  blescope read AA:BB:CC:DD:EE:FF 2a00 --raw > value.bin`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

func init() {
	readCmd.Flags().StringP("service", "s", "", "Service UUID to disambiguate the characteristic")
	readCmd.Flags().Bool("raw", false, "Write the raw payload bytes to stdout")
	readCmd.Flags().String("format", "", "Output format: table, json (default from config)")
	readCmd.Flags().Duration("connect-timeout", 0, "Connection timeout (default from config)")
}

func runRead(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	deviceID := args[0]
	charUUID := args[1]
	serviceUUID, _ := cmd.Flags().GetString("service")
	raw, _ := cmd.Flags().GetBool("raw")
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = app.cfg.OutputFormat
	}

	if _, err := core.ValidateUUID(charUUID); err != nil {
		return err
	}
	if serviceUUID != "" {
		if _, err := core.ValidateUUID(serviceUUID); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := NewProgressPrinter("Reading "+charUUID, "Connecting")
	progress.Start()
	defer progress.Stop()

	sample, err := inspector.WithDevice(ctx, app.sessions, app.engine, deviceID,
		inspectorOptions(cmd, app),
		app.logger, progress.Callback(),
		func(s *session.Session, tree []*core.ServiceDescriptor) (core.CharacteristicSample, error) {
			char, err := discovery.FindCharacteristic(tree, serviceUUID, charUUID)
			if err != nil {
				return core.CharacteristicSample{}, err
			}
			readCtx := ctx
			if app.cfg.ReadTimeout > 0 {
				var cancel context.CancelFunc
				readCtx, cancel = context.WithTimeout(ctx, app.cfg.ReadTimeout.Std())
				defer cancel()
			}
			return app.subs.ReadOnce(readCtx, s, char)
		})
	progress.Stop()
	if err != nil {
		return err
	}

	if raw {
		_, err := os.Stdout.Write(sample.Data)
		return err
	}

	projection := core.DecodeSample(sample.Data)
	if format == "json" {
		out := struct {
			ServiceUUID        string          `json:"service_uuid"`
			CharacteristicUUID string          `json:"characteristic_uuid"`
			Length             int             `json:"length"`
			Value              core.Projection `json:"value"`
		}{sample.ServiceUUID, sample.CharacteristicUUID, len(sample.Data), projection}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	printProjection(sample, projection)
	return nil
}

func printProjection(sample core.CharacteristicSample, p core.Projection) {
	fmt.Printf("Characteristic: %s (service %s)\n",
		sample.CharacteristicUUID, sample.ServiceUUID)
	fmt.Printf("Length: %d byte(s)\n", len(sample.Data))
	fmt.Printf("Hex:    %s\n", p.Hex)
	if p.TextValid {
		fmt.Printf("Text:   %q\n", p.Text)
	}
	if len(p.JSON) > 0 {
		pretty, err := json.MarshalIndent(p.JSON, "        ", "  ")
		if err == nil {
			fmt.Printf("JSON:   %s\n", pretty)
		}
	}
}
