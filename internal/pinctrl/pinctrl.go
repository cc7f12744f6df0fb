package pinctrl

import (
	"fmt"
	"os/exec"
	"strings"
)

// Thin wrapper around the Raspberry Pi `pinctrl` utility. Kept exec-based so
// the controller needs no cgo or /dev/gpiomem access and the same binary
// runs on any Pi OS image that ships the tool.

// SetPin applies one or more pinctrl set options to the specified GPIO pin.
// Example: SetPin(10, "op", "pn", "dh") sets pin 10 as output, no pull,
// drive high.
func SetPin(pin int, opts ...string) error {
	args := []string{"set", fmt.Sprint(pin)}
	args = append(args, opts...)
	cmd := exec.Command("pinctrl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pinctrl set failed: %s (output: %s)", err, string(out))
	}
	return nil
}

// ReadLevel reads the logic level of a pin using `pinctrl lev <pin>`.
func ReadLevel(pin int) (bool, error) {
	cmd := exec.Command("pinctrl", "lev", fmt.Sprint(pin))
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("failed to read level for pin %d: %w", pin, err)
	}
	level, err := parseLevel(string(out))
	if err != nil {
		return false, fmt.Errorf("pin %d: %w", pin, err)
	}
	return level, nil
}

func parseLevel(output string) (bool, error) {
	switch strings.TrimSpace(output) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected output from pinctrl lev: %q", strings.TrimSpace(output))
	}
}
