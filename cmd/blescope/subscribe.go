package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/discovery"
	"github.com/blescope/blescope/internal/inspector"
	"github.com/blescope/blescope/internal/session"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-id> <characteristic-uuid>",
	Short: "Stream notifications from a characteristic",
	Long: `Connect to a peripheral, subscribe to a characteristic, and stream value
updates until the duration elapses or Ctrl+C.

Each update is printed as hex, plus UTF-8 text and a parsed JSON object when
the payload decodes that far.

Examples:
  blescope subscribe AA:BB:CC:DD:EE:FF 2a37
  blescope subscribe AA:BB:CC:DD:EE:FF 2a37 --duration 30s --format json`,
	Args: cobra.ExactArgs(2),
	RunE: runSubscribe,
}

func init() {
	subscribeCmd.Flags().StringP("service", "s", "", "Service UUID to disambiguate the characteristic")
	subscribeCmd.Flags().DurationP("duration", "d", 0, "Stop after this long (default: until Ctrl+C)")
	subscribeCmd.Flags().String("format", "", "Output format: table, json (default from config)")
	subscribeCmd.Flags().Duration("connect-timeout", 0, "Connection timeout (default from config)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	deviceID := args[0]
	charUUID := args[1]
	serviceUUID, _ := cmd.Flags().GetString("service")
	duration, _ := cmd.Flags().GetDuration("duration")
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
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	progress := NewProgressPrinter("Subscribing "+charUUID, "Connecting")
	progress.Start()

	_, err = inspector.WithDevice(ctx, app.sessions, app.engine, deviceID,
		inspectorOptions(cmd, app),
		app.logger, progress.Callback(),
		func(s *session.Session, tree []*core.ServiceDescriptor) (struct{}, error) {
			char, err := discovery.FindCharacteristic(tree, serviceUUID, charUUID)
			if err != nil {
				progress.Stop()
				return struct{}{}, err
			}

			observer, err := app.subs.Subscribe(s, char)
			if err != nil {
				progress.Stop()
				return struct{}{}, err
			}
			defer observer.Cancel()

			progress.Stop()
			fmt.Fprintf(os.Stderr, "Subscribed to %s - press Ctrl+C to stop\n", charUUID)

			return struct{}{}, streamSamples(ctx, s, observer.Samples(), format)
		})
	progress.Stop()

	// Expiry of --duration is the requested outcome, not a failure.
	if duration > 0 && errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// streamSamples prints value updates until the context ends or the
// connection drops.
func streamSamples(ctx context.Context, s *session.Session, samples <-chan core.CharacteristicSample, format string) error {
	enc := json.NewEncoder(os.Stdout)
	count := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "%d update(s) received\n", count)
			return ctx.Err()
		case <-s.Context().Done():
			fmt.Fprintf(os.Stderr, "%d update(s) received\n", count)
			return ErrConnectionLost
		case sample, ok := <-samples:
			if !ok {
				fmt.Fprintf(os.Stderr, "%d update(s) received\n", count)
				return ErrConnectionLost
			}
			count++
			printSample(enc, sample, format)
		}
	}
}

func printSample(enc *json.Encoder, sample core.CharacteristicSample, format string) {
	projection := core.DecodeSample(sample.Data)

	if format == "json" {
		out := struct {
			CapturedAt         time.Time       `json:"captured_at"`
			CharacteristicUUID string          `json:"characteristic_uuid"`
			Value              core.Projection `json:"value"`
		}{sample.CapturedAt, sample.CharacteristicUUID, projection}
		_ = enc.Encode(out)
		return
	}

	line := fmt.Sprintf("%s  %s  %s",
		color.HiBlackString(sample.CapturedAt.Format("15:04:05.000")),
		sample.CharacteristicUUID,
		projection.Hex)
	if projection.TextValid && projection.Text != "" {
		line += fmt.Sprintf("  %q", projection.Text)
	}
	fmt.Println(line)
}
