package actuator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamotakugot/fish-feeder-controller/internal/gpio"
	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

// fakeGPIO captures pin and duty writes so tests can assert on hardware
// effects without a pinctrl binary.
type fakeGPIO struct {
	pins   map[int]bool
	duties map[model.PWMChannel]uint8
	log    []string
}

func installFakeGPIO(t *testing.T) *fakeGPIO {
	t.Helper()
	f := &fakeGPIO{
		pins:   map[int]bool{},
		duties: map[model.PWMChannel]uint8{},
	}

	origActivate := gpio.Activate
	origDeactivate := gpio.Deactivate
	origSetDuty := gpio.SetPWMDuty
	t.Cleanup(func() {
		gpio.Activate = origActivate
		gpio.Deactivate = origDeactivate
		gpio.SetPWMDuty = origSetDuty
	})

	gpio.Activate = func(pin model.GPIOPin) {
		f.pins[pin.Number] = true
	}
	gpio.Deactivate = func(pin model.GPIOPin) {
		f.pins[pin.Number] = false
	}
	gpio.SetPWMDuty = func(ch model.PWMChannel, duty uint8) {
		f.duties[ch] = duty
		if duty == 0 {
			f.log = append(f.log, chanName(ch)+":stop")
		} else {
			f.log = append(f.log, chanName(ch)+":run")
		}
	}
	return f
}

var (
	augerCh    = model.PWMChannel{Chip: 0, Channel: 0}
	actuatorCh = model.PWMChannel{Chip: 0, Channel: 1}
	blowerCh   = model.PWMChannel{Chip: 2, Channel: 0}
)

func chanName(ch model.PWMChannel) string {
	switch ch {
	case augerCh:
		return "auger"
	case actuatorCh:
		return "actuator"
	case blowerCh:
		return "blower"
	}
	return "unknown"
}

func testPins() Pins {
	return Pins{
		LEDRelay:    model.GPIOPin{Number: 24, ActiveHigh: false},
		FanRelay:    model.GPIOPin{Number: 25, ActiveHigh: false},
		AugerIn1:    model.GPIOPin{Number: 5, ActiveHigh: true},
		AugerIn2:    model.GPIOPin{Number: 6, ActiveHigh: true},
		ActuatorIn1: model.GPIOPin{Number: 13, ActiveHigh: true},
		ActuatorIn2: model.GPIOPin{Number: 19, ActiveHigh: true},
		BlowerDir:   model.GPIOPin{Number: 26, ActiveHigh: true},
		AugerPWM:    augerCh,
		ActuatorPWM: actuatorCh,
		BlowerPWM:   blowerCh,
	}
}

func TestMotorDutyClamping(t *testing.T) {
	f := installFakeGPIO(t)
	state := &model.SystemState{}
	c := NewController(state, testPins())

	cases := []struct {
		name      string
		requested int
		applied   int
	}{
		{"below minimum raised to floor", 50, MinAugerDuty},
		{"at minimum unchanged", 180, 180},
		{"normal value unchanged", 220, 220},
		{"above range capped", 400, 255},
		{"negative below minimum", -50, -MinAugerDuty},
		{"negative above range", -500, -255},
		{"zero is hard stop", 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c.SetAuger(tc.requested)
			assert.Equal(t, tc.applied, state.Auger.Applied)

			mag := tc.applied
			if mag < 0 {
				mag = -mag
			}
			assert.Equal(t, uint8(mag), f.duties[augerCh])

			// Invariant: applied magnitude is 0 or within [min, 255].
			if state.Auger.Applied != 0 {
				assert.GreaterOrEqual(t, mag, MinAugerDuty)
				assert.LessOrEqual(t, mag, 255)
			}
		})
	}
}

func TestRequestedVersusApplied(t *testing.T) {
	installFakeGPIO(t)
	state := &model.SystemState{}
	c := NewController(state, testPins())

	c.SetBlower(100)
	assert.Equal(t, 100, state.Blower.Requested)
	assert.Equal(t, MinBlowerDuty, state.Blower.Applied)

	c.SetBlower(999)
	assert.Equal(t, 255, state.Blower.Requested) // pre-clamped to range
	assert.Equal(t, 255, state.Blower.Applied)
}

func TestHardStopReleasesDirectionPins(t *testing.T) {
	f := installFakeGPIO(t)
	state := &model.SystemState{}
	c := NewController(state, testPins())
	pins := testPins()

	c.SetAuger(200)
	require.True(t, f.pins[pins.AugerIn1.Number])

	c.SetAuger(0)
	assert.False(t, f.pins[pins.AugerIn1.Number])
	assert.False(t, f.pins[pins.AugerIn2.Number])
	assert.Equal(t, uint8(0), f.duties[augerCh])
}

func TestBiMotorDirectionPins(t *testing.T) {
	f := installFakeGPIO(t)
	state := &model.SystemState{}
	c := NewController(state, testPins())
	pins := testPins()

	c.SetActuator(255)
	assert.True(t, f.pins[pins.ActuatorIn1.Number])
	assert.False(t, f.pins[pins.ActuatorIn2.Number])

	c.SetActuator(-255)
	assert.False(t, f.pins[pins.ActuatorIn1.Number])
	assert.True(t, f.pins[pins.ActuatorIn2.Number])
}

func TestStopMotorsOrder(t *testing.T) {
	f := installFakeGPIO(t)
	state := &model.SystemState{}
	c := NewController(state, testPins())

	c.SetAuger(200)
	c.SetActuator(255)
	c.SetBlower(250)
	f.log = nil

	c.StopMotors()

	// Auger must stop before anything else so no more food enters the
	// chute, then the hatch, then the blower.
	assert.Equal(t, []string{"auger:stop", "actuator:stop", "blower:stop"}, f.log)
	assert.Equal(t, 0, state.Auger.Applied)
	assert.Equal(t, 0, state.Actuator.Applied)
	assert.Equal(t, 0, state.Blower.Applied)
}

func TestEmergencyStopKillsEverything(t *testing.T) {
	f := installFakeGPIO(t)
	state := &model.SystemState{}
	c := NewController(state, testPins())
	pins := testPins()

	c.SetLED(true)
	c.SetFan(true)
	c.SetAuger(200)
	c.SetBlower(250)

	c.EmergencyStop()

	assert.False(t, state.LEDPondLight)
	assert.False(t, state.ControlBoxFan)
	assert.False(t, f.pins[pins.LEDRelay.Number])
	assert.False(t, f.pins[pins.FanRelay.Number])
	for _, ch := range []model.PWMChannel{augerCh, actuatorCh, blowerCh} {
		assert.Equal(t, uint8(0), f.duties[ch])
	}
}

func TestRelayOffIdempotent(t *testing.T) {
	f := installFakeGPIO(t)
	state := &model.SystemState{}
	c := NewController(state, testPins())
	pins := testPins()

	c.SetLED(false)
	first := f.pins[pins.LEDRelay.Number]
	firstState := state.LEDPondLight

	c.SetLED(false)
	assert.Equal(t, first, f.pins[pins.LEDRelay.Number])
	assert.Equal(t, firstState, state.LEDPondLight)
	assert.False(t, state.LEDPondLight)
}
