package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var watchPretty bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream telemetry lines from the controller",
	Long: `Watch prints every line the controller emits until interrupted.
With --pretty, JSON telemetry is re-indented for reading; non-JSON lines
pass through untouched.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchPretty, "pretty", false, "Indent JSON telemetry")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	port, err := openPort()
	if err != nil {
		return err
	}
	defer port.Close()

	fmt.Printf("Watching %s, press Ctrl+C to exit\n\n", portName)

	scanner := bufio.NewScanner(port)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if watchPretty && json.Valid(line) {
			var buf bytes.Buffer
			if err := json.Indent(&buf, line, "", "  "); err == nil {
				fmt.Println(buf.String())
				continue
			}
		}
		fmt.Println(string(line))
	}
	return scanner.Err()
}
