package startup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamotakugot/fish-feeder-controller/internal/config"
	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

func TestWriteStartupScriptDrivesInactiveLevels(t *testing.T) {
	pin := func(n int, activeHigh bool) *model.GPIOPin {
		return &model.GPIOPin{Number: n, ActiveHigh: activeHigh}
	}

	cfg := &config.Config{
		StartupScriptPath: filepath.Join(t.TempDir(), "feeder-gpio-setup.sh"),
		GPIO: config.GPIO{
			LEDRelay:    pin(24, false), // active-low relay board
			FanRelay:    pin(25, false),
			AugerIn1:    pin(5, true),
			AugerIn2:    pin(6, true),
			ActuatorIn1: pin(13, true),
			ActuatorIn2: pin(19, true),
			BlowerDir:   pin(26, true),
		},
	}

	require.NoError(t, WriteStartupScript(cfg))

	data, err := os.ReadFile(cfg.StartupScriptPath)
	require.NoError(t, err)
	script := string(data)

	assert.True(t, strings.HasPrefix(script, "#!/bin/bash"))
	// Active-low relay is inactive when driven high.
	assert.Contains(t, script, "pinctrl set 24 op pn dh")
	// Active-high H-bridge input is inactive when driven low.
	assert.Contains(t, script, "pinctrl set 5 op pn dl")
	assert.Contains(t, script, "pinctrl set 26 op pn dl")

	info, err := os.Stat(cfg.StartupScriptPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}
