package model

import "strconv"

// GPIOPin identifies a digital output and its polarity. The relay board in
// the feeder is active-low, so polarity lives here rather than in every
// call site.
type GPIOPin struct {
	Number     int  `json:"number"`
	ActiveHigh bool `json:"active_high"`
}

// PWMChannel identifies a hardware PWM output via the kernel sysfs interface
// (/sys/class/pwm/pwmchip<Chip>/pwm<Channel>).
type PWMChannel struct {
	Chip    int `json:"chip"`
	Channel int `json:"channel"`
}

// TempHumidity is one DHT22 reading pair.
type TempHumidity struct {
	Temperature float64
	Humidity    float64
}

// PowerRail is a voltage/current pair for one supply rail.
type PowerRail struct {
	Voltage float64
	Current float64
}

type BatteryState string

const (
	BatteryCharging    BatteryState = "charging"
	BatteryDischarging BatteryState = "discharging"
	BatteryUnknown     BatteryState = "unknown"
)

// BatteryStatus is a tri-state: while the solar rail is charging the pack,
// the percentage is not meaningful and is replaced by a charging indicator.
type BatteryStatus struct {
	State   BatteryState
	Percent int // valid only when State == BatteryDischarging
}

// Wire renders the status the way the host bridge expects it: a bare
// percentage string, "charging", or "unknown".
func (b BatteryStatus) Wire() string {
	switch b.State {
	case BatteryCharging:
		return "charging"
	case BatteryDischarging:
		return strconv.Itoa(b.Percent)
	default:
		return "unknown"
	}
}

// MotorState tracks the PWM a caller asked for alongside the value actually
// driven to the pin. The two differ when the minimum effective duty clamp
// kicks in.
type MotorState struct {
	Requested int
	Applied   int
}

// SystemState is the single mutable snapshot of the whole device. It is
// owned exclusively by the scheduler loop; no other component may retain a
// reference across ticks.
type SystemState struct {
	FeedTank   TempHumidity
	ControlBox TempHumidity

	WeightKg            float64
	SoilMoisturePercent int

	Solar   PowerRail
	Load    PowerRail
	Battery BatteryStatus

	LEDPondLight  bool
	ControlBoxFan bool

	Auger    MotorState // signed, [-255, 255]
	Actuator MotorState // signed, [-255, 255]
	Blower   MotorState // unsigned, [0, 255]

	// DataChanged gates telemetry emission: set by sensor reads and by any
	// accepted command, cleared after a successful send.
	DataChanged bool
}

// Calibration converts raw HX711 counts to kilograms:
// weight = (raw - Offset) / ScaleFactor.
type Calibration struct {
	ScaleFactor float64 `json:"scale_factor"`
	Offset      int64   `json:"offset"`
}

// IdentityCalibration is the fallback applied when the persisted blob is
// missing or corrupt. It reports raw counts as kilograms, which is obviously
// wrong but never divides by zero.
func IdentityCalibration() Calibration {
	return Calibration{ScaleFactor: 1.0, Offset: 0}
}

// FeedingStage is one phase of the automated feeding state machine.
type FeedingStage string

const (
	StageIdle            FeedingStage = "idle"
	StageActuatorOpening FeedingStage = "actuator_opening"
	StageDispensing      FeedingStage = "auger_running"
	StagePurging         FeedingStage = "blower_running"
	StageActuatorClosing FeedingStage = "actuator_closing"
)
