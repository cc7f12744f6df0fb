package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/iamotakugot/fish-feeder-controller/internal/config"
	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

// WriteStartupScript emits a boot script that drives every managed pin to
// its inactive level before this daemon (or anything else) runs. Feeder
// outputs have no safe "on" state: relays open, motor direction pins low.
func WriteStartupScript(cfg *config.Config) error {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Fish feeder GPIO pin configuration at boot", "")

	write := func(label string, pin model.GPIOPin) {
		drive := "dh"
		if pin.ActiveHigh {
			drive = "dl"
		}
		lines = append(lines, fmt.Sprintf("# %s", label))
		lines = append(lines, fmt.Sprintf("pinctrl set %d op pn %s", pin.Number, drive))
		lines = append(lines, "")
	}

	write("led pond light relay", *cfg.GPIO.LEDRelay)
	write("control box fan relay", *cfg.GPIO.FanRelay)
	write("auger in1", *cfg.GPIO.AugerIn1)
	write("auger in2", *cfg.GPIO.AugerIn2)
	write("actuator in1", *cfg.GPIO.ActuatorIn1)
	write("actuator in2", *cfg.GPIO.ActuatorIn2)
	write("blower direction", *cfg.GPIO.BlowerDir)

	path := cfg.StartupScriptPath
	if path == "" {
		path = "/usr/local/bin/feeder-gpio-setup.sh"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create startup script directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o755); err != nil {
		return fmt.Errorf("failed to write startup script: %w", err)
	}

	log.Info().Str("path", path).Msg("Startup pin script written")
	return nil
}

// RunStartupScript executes the boot script immediately, used on daemon
// start to guarantee safe levels even before the next reboot.
func RunStartupScript(cfg *config.Config) error {
	path := cfg.StartupScriptPath
	if path == "" {
		path = "/usr/local/bin/feeder-gpio-setup.sh"
	}
	out, err := exec.Command("/bin/bash", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("startup script failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
