package actuator

import (
	"github.com/rs/zerolog/log"

	"github.com/iamotakugot/fish-feeder-controller/internal/gpio"
	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

// Minimum effective duty per motor. Below these values the motor hums
// without overcoming static friction, so any nonzero request is raised to
// the floor. The caller's requested value is still tracked separately in
// SystemState.
const (
	MinAugerDuty    = 180
	MinActuatorDuty = 180
	MinBlowerDuty   = 150
)

// Relay is a binary output behind the active-low relay board.
type Relay struct {
	Name string
	Pin  model.GPIOPin
}

func (r Relay) Set(on bool) {
	if on {
		gpio.Activate(r.Pin)
	} else {
		gpio.Deactivate(r.Pin)
	}
	log.Debug().Str("relay", r.Name).Bool("on", on).Msg("Relay switched")
}

// BiMotor is a bidirectional DC motor on an H-bridge: two direction pins
// and one PWM enable channel.
type BiMotor struct {
	Name    string
	In1     model.GPIOPin
	In2     model.GPIOPin
	PWM     model.PWMChannel
	MinDuty int
}

// Set drives the motor from a signed PWM value. Zero is a hard stop: duty
// zero and both direction pins low, not merely zero duty. Nonzero values
// pick direction from the sign and clamp magnitude to [MinDuty, 255].
// Returns the applied magnitude with the request's sign.
func (m BiMotor) Set(pwm int) int {
	if pwm == 0 {
		gpio.SetPWMDuty(m.PWM, 0)
		gpio.Deactivate(m.In1)
		gpio.Deactivate(m.In2)
		log.Debug().Str("motor", m.Name).Msg("Motor hard stop")
		return 0
	}

	mag := pwm
	if mag < 0 {
		mag = -mag
	}
	if mag < m.MinDuty {
		mag = m.MinDuty
	}
	if mag > 255 {
		mag = 255
	}

	if pwm > 0 {
		gpio.Activate(m.In1)
		gpio.Deactivate(m.In2)
	} else {
		gpio.Deactivate(m.In1)
		gpio.Activate(m.In2)
	}
	gpio.SetPWMDuty(m.PWM, uint8(mag))

	applied := mag
	if pwm < 0 {
		applied = -mag
	}
	log.Debug().Str("motor", m.Name).Int("requested", pwm).Int("applied", applied).Msg("Motor set")
	return applied
}

// UniMotor is a single-direction motor: one PWM channel plus a direction
// pin held inactive (the blower's LPWM leg).
type UniMotor struct {
	Name    string
	Dir     model.GPIOPin
	PWM     model.PWMChannel
	MinDuty int
}

func (m UniMotor) Set(pwm int) int {
	if pwm <= 0 {
		gpio.SetPWMDuty(m.PWM, 0)
		gpio.Deactivate(m.Dir)
		log.Debug().Str("motor", m.Name).Msg("Motor hard stop")
		return 0
	}

	if pwm < m.MinDuty {
		pwm = m.MinDuty
	}
	if pwm > 255 {
		pwm = 255
	}
	gpio.Deactivate(m.Dir)
	gpio.SetPWMDuty(m.PWM, uint8(pwm))
	log.Debug().Str("motor", m.Name).Int("applied", pwm).Msg("Motor set")
	return pwm
}

// Controller owns the five logical outputs and mirrors every change into
// SystemState. All mutation of relay and motor fields goes through here.
type Controller struct {
	state *model.SystemState

	led    Relay
	fan    Relay
	auger  BiMotor
	act    BiMotor
	blower UniMotor
}

type Pins struct {
	LEDRelay    model.GPIOPin
	FanRelay    model.GPIOPin
	AugerIn1    model.GPIOPin
	AugerIn2    model.GPIOPin
	ActuatorIn1 model.GPIOPin
	ActuatorIn2 model.GPIOPin
	BlowerDir   model.GPIOPin
	AugerPWM    model.PWMChannel
	ActuatorPWM model.PWMChannel
	BlowerPWM   model.PWMChannel
}

func NewController(state *model.SystemState, pins Pins) *Controller {
	return &Controller{
		state: state,
		led:   Relay{Name: "led_pond_light", Pin: pins.LEDRelay},
		fan:   Relay{Name: "control_box_fan", Pin: pins.FanRelay},
		auger: BiMotor{
			Name: "auger_food_dispenser", In1: pins.AugerIn1, In2: pins.AugerIn2,
			PWM: pins.AugerPWM, MinDuty: MinAugerDuty,
		},
		act: BiMotor{
			Name: "actuator_feeder", In1: pins.ActuatorIn1, In2: pins.ActuatorIn2,
			PWM: pins.ActuatorPWM, MinDuty: MinActuatorDuty,
		},
		blower: UniMotor{
			Name: "blower_ventilation", Dir: pins.BlowerDir,
			PWM: pins.BlowerPWM, MinDuty: MinBlowerDuty,
		},
	}
}

func clampSigned(pwm int) int {
	if pwm > 255 {
		return 255
	}
	if pwm < -255 {
		return -255
	}
	return pwm
}

func clampUnsigned(pwm int) int {
	if pwm > 255 {
		return 255
	}
	if pwm < 0 {
		return 0
	}
	return pwm
}

func (c *Controller) SetLED(on bool) {
	c.led.Set(on)
	c.state.LEDPondLight = on
	c.state.DataChanged = true
}

func (c *Controller) SetFan(on bool) {
	c.fan.Set(on)
	c.state.ControlBoxFan = on
	c.state.DataChanged = true
}

func (c *Controller) AllRelaysOff() {
	c.SetLED(false)
	c.SetFan(false)
}

// SetAuger drives the food dispenser. pwm is signed: positive feeds,
// negative reverses to clear a jam.
func (c *Controller) SetAuger(pwm int) {
	pwm = clampSigned(pwm)
	c.state.Auger = model.MotorState{Requested: pwm, Applied: c.auger.Set(pwm)}
	c.state.DataChanged = true
}

// SetActuator drives the feed-hatch linear actuator: positive extends
// (opens), negative retracts (closes).
func (c *Controller) SetActuator(pwm int) {
	pwm = clampSigned(pwm)
	c.state.Actuator = model.MotorState{Requested: pwm, Applied: c.act.Set(pwm)}
	c.state.DataChanged = true
}

func (c *Controller) SetBlower(pwm int) {
	pwm = clampUnsigned(pwm)
	c.state.Blower = model.MotorState{Requested: pwm, Applied: c.blower.Set(pwm)}
	c.state.DataChanged = true
}

// StopMotors halts all three motors in food-safety order: the dispensing
// auger first so no more food enters the chute, then the hatch actuator,
// then the blower.
func (c *Controller) StopMotors() {
	c.SetAuger(0)
	c.SetActuator(0)
	c.SetBlower(0)
}

// EmergencyStop stops every motor and de-energizes both relays. It cannot
// fail and is safe to call from any context, including during shutdown.
func (c *Controller) EmergencyStop() {
	log.Warn().Msg("Emergency stop initiated")
	c.StopMotors()
	c.AllRelaysOff()
	log.Info().Msg("Emergency stop completed, all outputs safe")
}
