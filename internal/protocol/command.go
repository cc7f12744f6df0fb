package protocol

import "time"

// Command is the canonical representation every inbound message is reduced
// to before dispatch. Both protocol surfaces (structured JSON and the legacy
// flat tokens) converge here, so business logic never sees raw message syntax.
type Command interface {
	isCommand()
}

type RelayTarget string

const (
	RelayLED RelayTarget = "led_pond_light"
	RelayFan RelayTarget = "control_box_fan"
)

// SetRelay switches one relay.
type SetRelay struct {
	Target RelayTarget
	On     bool
}

// AllRelaysOff de-energizes both relays (legacy R:0).
type AllRelaysOff struct{}

// SetBlower sets blower PWM, [0, 255].
type SetBlower struct {
	PWM int
}

// SetAuger sets auger PWM, signed: positive dispenses, negative reverses.
type SetAuger struct {
	PWM int
}

// SetActuator sets linear actuator PWM, signed: positive extends.
type SetActuator struct {
	PWM int
}

// Feed triggers the automated feeding sequence. Either AmountGrams > 0 or
// Preset ("small", "medium", "large") is set; with neither, the configured
// auger duration applies.
type Feed struct {
	AmountGrams float64
	Preset      string
}

// StopFeed aborts a running feeding sequence and hard-stops its motors.
type StopFeed struct{}

// EmergencyStop stops everything (legacy STOP:all).
type EmergencyStop struct{}

// StatusRequest asks for an immediate telemetry emission.
type StatusRequest struct{}

// Tare zeroes the load cell.
type Tare struct{}

// Calibrate recomputes the scale factor from a known mass on the cell.
type Calibrate struct {
	KnownKg float64
}

// SetIntervals updates the send and/or read interval. Nil means unchanged.
type SetIntervals struct {
	Send *time.Duration
	Read *time.Duration
}

// SetProfile selects a named performance profile, replacing both intervals
// atomically.
type SetProfile struct {
	Name string
}

// SetTiming updates feeding stage durations, in seconds. Nil means
// unchanged; values are clamped to the safe range on apply.
type SetTiming struct {
	ActuatorUpSec     *int
	ActuatorDownSec   *int
	AugerDurationSec  *int
	BlowerDurationSec *int
}

func (SetRelay) isCommand()      {}
func (AllRelaysOff) isCommand()  {}
func (SetBlower) isCommand()     {}
func (SetAuger) isCommand()      {}
func (SetActuator) isCommand()   {}
func (Feed) isCommand()          {}
func (StopFeed) isCommand()      {}
func (EmergencyStop) isCommand() {}
func (StatusRequest) isCommand() {}
func (Tare) isCommand()          {}
func (Calibrate) isCommand()     {}
func (SetIntervals) isCommand()  {}
func (SetProfile) isCommand()    {}
func (SetTiming) isCommand()     {}
