package telemetry

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamotakugot/fish-feeder-controller/internal/config"
	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

type fakeWriter struct {
	lines  [][]byte
	refuse bool
}

func (w *fakeWriter) TrySend(line []byte) bool {
	if w.refuse {
		return false
	}
	w.lines = append(w.lines, line)
	return true
}

type fakeFeeding struct {
	inProgress bool
	status     string
	elapsed    time.Duration
}

func (f fakeFeeding) InProgress() bool       { return f.inProgress }
func (f fakeFeeding) Status() string         { return f.status }
func (f fakeFeeding) Elapsed() time.Duration { return f.elapsed }

func testState() *model.SystemState {
	return &model.SystemState{
		FeedTank:            model.TempHumidity{Temperature: 26.5, Humidity: 60},
		ControlBox:          model.TempHumidity{Temperature: 31.2, Humidity: 45},
		WeightKg:            2.5,
		SoilMoisturePercent: 42,
		Solar:               model.PowerRail{Voltage: 13.2, Current: 1.5},
		Load:                model.PowerRail{Voltage: 12.3, Current: 0.8},
		Battery:             model.BatteryStatus{State: model.BatteryCharging},
		LEDPondLight:        true,
		Auger:               model.MotorState{Requested: 150, Applied: 180},
		DataChanged:         true,
	}
}

func testReporterConfig() *config.Config {
	return &config.Config{
		PerformanceMode: "NORMAL",
		Timing: config.FeedTiming{
			ActuatorUpSec:     3,
			ActuatorDownSec:   2,
			AugerDurationSec:  5,
			BlowerDurationSec: 10,
		},
	}
}

func decode(t *testing.T, line []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(line, &m))
	return m
}

func TestSnapshotWireFormat(t *testing.T) {
	out := &fakeWriter{}
	r := NewReporter(testReporterConfig(), testState(), fakeFeeding{status: "idle"}, out)

	r.Send(true)
	require.Len(t, out.lines, 1)

	m := decode(t, out.lines[0])
	assert.Equal(t, "ok", m["status"])

	sensors, ok := m["sensors"].(map[string]any)
	require.True(t, ok)
	feedTank := sensors["feed_tank"].(map[string]any)
	assert.Equal(t, 26.5, feedTank["temperature"])
	assert.Equal(t, 60.0, feedTank["humidity"])
	assert.Equal(t, 2.5, sensors["weight_kg"])
	assert.Equal(t, 42.0, sensors["soil_moisture_percent"])

	power := sensors["power"].(map[string]any)
	assert.Equal(t, 13.2, power["solar_voltage"])
	assert.Equal(t, "charging", power["battery_status"])

	controls := m["controls"].(map[string]any)
	relays := controls["relays"].(map[string]any)
	assert.Equal(t, true, relays["led_pond_light"])
	assert.Equal(t, false, relays["control_box_fan"])

	motors := controls["motors"].(map[string]any)
	assert.Equal(t, 180.0, motors["auger_food_dispenser"], "wire carries the applied value")
	assert.Equal(t, 0.0, motors["blower_ventilation"])

	timing := m["timing_settings"].(map[string]any)
	assert.Equal(t, 3.0, timing["actuator_up_sec"])
	assert.Equal(t, 5.0, timing["feed_duration_sec"])

	feeding := m["feeding"].(map[string]any)
	assert.Equal(t, false, feeding["in_progress"])
	assert.Equal(t, "idle", feeding["status"])
	_, hasDuration := feeding["duration_sec"]
	assert.False(t, hasDuration, "duration only present mid-cycle")
}

func TestSnapshotFeedingDuration(t *testing.T) {
	out := &fakeWriter{}
	feeding := fakeFeeding{inProgress: true, status: "auger_running", elapsed: 7 * time.Second}
	r := NewReporter(testReporterConfig(), testState(), feeding, out)

	r.Send(true)
	require.Len(t, out.lines, 1)

	m := decode(t, out.lines[0])
	f := m["feeding"].(map[string]any)
	assert.Equal(t, true, f["in_progress"])
	assert.Equal(t, "auger_running", f["status"])
	assert.Equal(t, 7.0, f["duration_sec"])
}

func TestSnapshotScrubsNaN(t *testing.T) {
	state := testState()
	state.FeedTank.Temperature = math.NaN()
	state.Solar.Voltage = math.Inf(1)

	out := &fakeWriter{}
	r := NewReporter(testReporterConfig(), state, fakeFeeding{status: "idle"}, out)
	r.Send(true)
	require.Len(t, out.lines, 1)

	m := decode(t, out.lines[0])
	sensors := m["sensors"].(map[string]any)
	assert.Equal(t, 0.0, sensors["feed_tank"].(map[string]any)["temperature"])
	assert.Equal(t, 0.0, sensors["power"].(map[string]any)["solar_voltage"])
}

func TestSendSuppressedWhenNothingChanged(t *testing.T) {
	out := &fakeWriter{}
	state := testState()
	state.DataChanged = false
	r := NewReporter(testReporterConfig(), state, fakeFeeding{status: "idle"}, out)

	r.Send(false)
	assert.Empty(t, out.lines)
}

func TestRealTimeModeAlwaysStreams(t *testing.T) {
	out := &fakeWriter{}
	state := testState()
	state.DataChanged = false
	cfg := testReporterConfig()
	cfg.PerformanceMode = "REAL_TIME"
	r := NewReporter(cfg, state, fakeFeeding{status: "idle"}, out)

	r.Send(false)
	assert.Len(t, out.lines, 1)
}

func TestDroppedLineKeepsDataChanged(t *testing.T) {
	out := &fakeWriter{refuse: true}
	state := testState()
	r := NewReporter(testReporterConfig(), state, fakeFeeding{status: "idle"}, out)

	r.Send(true)
	assert.True(t, state.DataChanged, "a dropped line must not count as delivered")

	out.refuse = false
	r.Send(false)
	assert.Len(t, out.lines, 1)
	assert.False(t, state.DataChanged)
}

func TestLinesAreNewlineTerminated(t *testing.T) {
	out := &fakeWriter{}
	r := NewReporter(testReporterConfig(), testState(), fakeFeeding{status: "idle"}, out)
	r.Send(true)
	require.Len(t, out.lines, 1)
	line := out.lines[0]
	assert.Equal(t, byte('\n'), line[len(line)-1])
}
