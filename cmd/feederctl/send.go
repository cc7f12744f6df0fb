package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var sendWait time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <command>",
	Short: "Send one command line to the controller",
	Long: `Send writes a single command line to the controller and prints any
response arriving within the wait window. The argument is passed through
verbatim, so both legacy tokens and JSON objects work:

  feederctl send FEED:100
  feederctl send 'R:3'
  feederctl send '{"controls":{"relays":{"led_pond_light":true}}}'`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().DurationVar(&sendWait, "wait", 3*time.Second, "How long to wait for a response")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	port, err := openPort()
	if err != nil {
		return err
	}
	defer port.Close()

	line := strings.TrimSpace(args[0]) + "\n"
	if _, err := port.Write([]byte(line)); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	done := time.After(sendWait)
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(port)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			fmt.Println(l)
		case <-done:
			return nil
		}
	}
}
