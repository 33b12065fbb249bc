package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/discovery"
	"github.com/blescope/blescope/internal/inspector"
	"github.com/blescope/blescope/internal/session"
)

var writeCmd = &cobra.Command{
	Use:   "write <device-id> <characteristic-uuid> <value>",
	Short: "Write a value to a characteristic",
	Long: `Connect to a peripheral, write one characteristic, and disconnect.

The value is UTF-8 text by default; pass --hex to give the payload as a hex
string instead (spaces, commas, and 0x prefixes are tolerated).

Examples:
  blescope write AA:BB:CC:DD:EE:FF 2a00 "new name"
  blescope write AA:BB:CC:DD:EE:FF ff01 --hex "01 02 0a"
  blescope write AA:BB:CC:DD:EE:FF ff01 --hex 01020a --no-response`,
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().StringP("service", "s", "", "Service UUID to disambiguate the characteristic")
	writeCmd.Flags().Bool("hex", false, "Interpret the value as a hex byte string")
	writeCmd.Flags().Bool("no-response", false, "Use write-without-response")
	writeCmd.Flags().Duration("connect-timeout", 0, "Connection timeout (default from config)")
}

// parseHexValue decodes a hex payload given in any of the common spellings:
// "01020a", "01 02 0a", "01,02,0a", "0x01 0x02".
func parseHexValue(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ",", "", "0x", "", "0X", "").Replace(s)
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	return data, nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	deviceID := args[0]
	charUUID := args[1]
	serviceUUID, _ := cmd.Flags().GetString("service")
	asHex, _ := cmd.Flags().GetBool("hex")
	noResponse, _ := cmd.Flags().GetBool("no-response")

	if _, err := core.ValidateUUID(charUUID); err != nil {
		return err
	}
	if serviceUUID != "" {
		if _, err := core.ValidateUUID(serviceUUID); err != nil {
			return err
		}
	}

	data := []byte(args[2])
	if asHex {
		if data, err = parseHexValue(args[2]); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := NewProgressPrinter("Writing "+charUUID, "Connecting")
	progress.Start()
	defer progress.Stop()

	_, err = inspector.WithDevice(ctx, app.sessions, app.engine, deviceID,
		inspectorOptions(cmd, app),
		app.logger, progress.Callback(),
		func(s *session.Session, tree []*core.ServiceDescriptor) (struct{}, error) {
			char, err := discovery.FindCharacteristic(tree, serviceUUID, charUUID)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, app.subs.Write(ctx, s, char, data, !noResponse)
		})
	progress.Stop()
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d byte(s) to %s\n", len(data), charUUID)
	return nil
}
