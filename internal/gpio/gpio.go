package gpio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iamotakugot/fish-feeder-controller/internal/model"
	"github.com/iamotakugot/fish-feeder-controller/internal/pinctrl"
	"github.com/iamotakugot/fish-feeder-controller/system/shutdown"
)

var safeMode bool

// SetSafeMode disables all hardware writes system-wide. Reads still work.
func SetSafeMode(enabled bool) {
	safeMode = enabled
}

// Activate drives the pin to its active level, honoring polarity. Package
// var so tests can substitute a fake.
var Activate = func(pin model.GPIOPin) {
	if safeMode {
		return
	}

	drive := "dh"
	if !pin.ActiveHigh {
		drive = "dl"
	}
	if err := pinctrl.SetPin(pin.Number, "op", "pn", drive); err != nil {
		shutdown.ShutdownWithError(err, fmt.Sprintf("Failed to activate pin %d", pin.Number))
	}
}

// Deactivate drives the pin to its inactive level.
var Deactivate = func(pin model.GPIOPin) {
	if safeMode {
		return
	}

	drive := "dl"
	if !pin.ActiveHigh {
		drive = "dh"
	}
	if err := pinctrl.SetPin(pin.Number, "op", "pn", drive); err != nil {
		shutdown.ShutdownWithError(err, fmt.Sprintf("Failed to deactivate pin %d", pin.Number))
	}
}

func Read(pin model.GPIOPin) bool {
	level, err := pinctrl.ReadLevel(pin.Number)
	if err != nil {
		shutdown.ShutdownWithError(err, fmt.Sprintf("Failed to read pin level for pin %d", pin.Number))
	}
	return level
}

var CurrentlyActive = func(pin model.GPIOPin) bool {
	return pin.ActiveHigh == Read(pin)
}

// pwmPeriodNS is the PWM period used for all motor channels: 25 kHz, above
// the audible range of the drive electronics.
const pwmPeriodNS = 40000

// SetPWMDuty writes an 8-bit duty value to a sysfs PWM channel. Package var
// so tests can substitute a fake.
var SetPWMDuty = func(ch model.PWMChannel, duty uint8) {
	if safeMode {
		return
	}

	dutyNS := int64(duty) * pwmPeriodNS / 255
	path := pwmPath(ch, "duty_cycle")
	if err := os.WriteFile(path, []byte(fmt.Sprint(dutyNS)), 0644); err != nil {
		shutdown.ShutdownWithError(err, fmt.Sprintf("Failed to write PWM duty to %s", path))
	}
}

// ExportPWM makes a sysfs PWM channel available, sets its period, and
// enables it at zero duty. Must be called once per channel at boot.
func ExportPWM(ch model.PWMChannel) error {
	chipDir := fmt.Sprintf("/sys/class/pwm/pwmchip%d", ch.Chip)
	pwmDir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", ch.Channel))

	if _, err := os.Stat(pwmDir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(chipDir, "export"), []byte(fmt.Sprint(ch.Channel)), 0644); err != nil {
			return fmt.Errorf("failed to export pwmchip%d/pwm%d: %w", ch.Chip, ch.Channel, err)
		}
	}

	if err := os.WriteFile(filepath.Join(pwmDir, "period"), []byte(fmt.Sprint(pwmPeriodNS)), 0644); err != nil {
		return fmt.Errorf("failed to set PWM period: %w", err)
	}
	if err := os.WriteFile(filepath.Join(pwmDir, "duty_cycle"), []byte("0"), 0644); err != nil {
		return fmt.Errorf("failed to zero PWM duty: %w", err)
	}
	if err := os.WriteFile(filepath.Join(pwmDir, "enable"), []byte("1"), 0644); err != nil {
		return fmt.Errorf("failed to enable PWM channel: %w", err)
	}
	return nil
}

func pwmPath(ch model.PWMChannel, file string) string {
	return fmt.Sprintf("/sys/class/pwm/pwmchip%d/pwm%d/%s", ch.Chip, ch.Channel, file)
}

// ValidateStartupPins confirms every managed digital output is inactive
// before the controller takes over. A pin found active at boot means a
// previous run died mid-cycle or the wiring is wrong; either way, refusing
// to start is safer than assuming.
func ValidateStartupPins(pins map[string]model.GPIOPin) error {
	for name, pin := range pins {
		if CurrentlyActive(pin) {
			return fmt.Errorf("pin %d (%s) is active at startup, expected inactive", pin.Number, name)
		}
	}
	return nil
}
