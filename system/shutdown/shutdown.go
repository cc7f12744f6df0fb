package shutdown

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var stopAll func()

// stopping guards against recursion: if stopAll itself hits a hardware
// failure and ends up back here, we must not re-enter it.
var stopping atomic.Bool

// RegisterStopAll installs the hook that drives every actuator to its safe
// state. main wires this to the actuator controller's emergency stop once
// hardware is initialized.
func RegisterStopAll(fn func()) {
	stopAll = fn
}

// Shutdown stops all actuators and exits. Safe to call before
// RegisterStopAll; in that window there is nothing energized to stop.
func Shutdown() {
	safeStop()
	os.Exit(1)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown()
}

func safeStop() {
	if stopAll == nil || !stopping.CompareAndSwap(false, true) {
		return
	}
	stopAll()
	log.Info().Msg("All actuators commanded to safe state")
}
