package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var (
	portName string
	baudRate int
)

var rootCmd = &cobra.Command{
	Use:   "feederctl",
	Short: "Fish feeder serial console",
	Long: `Feederctl talks to a fish feeder controller over its serial port.

Commands accept both syntaxes the controller understands: legacy tokens
(FEED:100, R:3, STATUS, STOP:all) and structured JSON objects. Use "watch"
to stream telemetry lines as they arrive.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "/dev/ttyUSB0", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func openPort() (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", portName, err)
	}
	return port, nil
}
