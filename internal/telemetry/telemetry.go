package telemetry

import (
	"encoding/json"
	"math"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iamotakugot/fish-feeder-controller/internal/config"
	"github.com/iamotakugot/fish-feeder-controller/internal/datadog"
	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

// Field names below are a wire contract with the host bridge and must not
// change.

type climate struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

type power struct {
	SolarVoltage  float64 `json:"solar_voltage"`
	SolarCurrent  float64 `json:"solar_current"`
	LoadVoltage   float64 `json:"load_voltage"`
	LoadCurrent   float64 `json:"load_current"`
	BatteryStatus string  `json:"battery_status"`
}

type sensorBlock struct {
	FeedTank            climate `json:"feed_tank"`
	ControlBox          climate `json:"control_box"`
	WeightKg            float64 `json:"weight_kg"`
	SoilMoisturePercent int     `json:"soil_moisture_percent"`
	Power               power   `json:"power"`
}

type relayBlock struct {
	LEDPondLight  bool `json:"led_pond_light"`
	ControlBoxFan bool `json:"control_box_fan"`
}

type motorBlock struct {
	BlowerVentilation int `json:"blower_ventilation"`
	AugerDispenser    int `json:"auger_food_dispenser"`
	ActuatorFeeder    int `json:"actuator_feeder"`
}

type controlBlock struct {
	Relays relayBlock `json:"relays"`
	Motors motorBlock `json:"motors"`
}

type timingBlock struct {
	ActuatorUpSec     int `json:"actuator_up_sec"`
	ActuatorDownSec   int `json:"actuator_down_sec"`
	FeedDurationSec   int `json:"feed_duration_sec"`
	BlowerDurationSec int `json:"blower_duration_sec"`
}

type feedingBlock struct {
	InProgress  bool   `json:"in_progress"`
	Status      string `json:"status"`
	DurationSec int64  `json:"duration_sec,omitempty"`
}

type snapshot struct {
	Timestamp       int64        `json:"timestamp"`
	Status          string       `json:"status"`
	Sensors         sensorBlock  `json:"sensors"`
	Controls        controlBlock `json:"controls"`
	FreeMemoryBytes uint64       `json:"free_memory_bytes"`
	TimingSettings  timingBlock  `json:"timing_settings"`
	Feeding         feedingBlock `json:"feeding"`
}

// FeedingStatus is what the reporter needs from the sequencer.
type FeedingStatus interface {
	InProgress() bool
	Status() string
	Elapsed() time.Duration
}

// Writer posts one encoded line to the host. A false return means the line
// was dropped because the link was busy; the next interval supersedes it.
type Writer interface {
	TrySend(line []byte) bool
}

type Reporter struct {
	cfg     *config.Config
	state   *model.SystemState
	feeding FeedingStatus
	out     Writer
	now     func() time.Time
	start   time.Time
}

func NewReporter(cfg *config.Config, state *model.SystemState, feeding FeedingStatus, out Writer) *Reporter {
	return &Reporter{
		cfg:     cfg,
		state:   state,
		feeding: feeding,
		out:     out,
		now:     time.Now,
		start:   time.Now(),
	}
}

// Send serializes the current state and hands it to the transport. When
// force is false the line is suppressed if nothing changed since the last
// send, except in REAL_TIME mode which always streams.
func (r *Reporter) Send(force bool) {
	if !force && !r.state.DataChanged && r.cfg.PerformanceMode != "REAL_TIME" {
		return
	}

	line, err := json.Marshal(r.build())
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode telemetry snapshot")
		return
	}
	line = append(line, '\n')

	if !r.out.TrySend(line) {
		log.Debug().Msg("Telemetry line dropped, transport busy")
		return
	}
	r.state.DataChanged = false
	r.gauges()
}

func (r *Reporter) build() snapshot {
	s := r.state
	t := r.cfg.Timing

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	snap := snapshot{
		Timestamp: r.now().Sub(r.start).Milliseconds(),
		Status:    "ok",
		Sensors: sensorBlock{
			FeedTank: climate{
				Temperature: scrub(s.FeedTank.Temperature),
				Humidity:    scrub(s.FeedTank.Humidity),
			},
			ControlBox: climate{
				Temperature: scrub(s.ControlBox.Temperature),
				Humidity:    scrub(s.ControlBox.Humidity),
			},
			WeightKg:            scrub(s.WeightKg),
			SoilMoisturePercent: s.SoilMoisturePercent,
			Power: power{
				SolarVoltage:  scrub(s.Solar.Voltage),
				SolarCurrent:  scrub(s.Solar.Current),
				LoadVoltage:   scrub(s.Load.Voltage),
				LoadCurrent:   scrub(s.Load.Current),
				BatteryStatus: s.Battery.Wire(),
			},
		},
		Controls: controlBlock{
			Relays: relayBlock{
				LEDPondLight:  s.LEDPondLight,
				ControlBoxFan: s.ControlBoxFan,
			},
			Motors: motorBlock{
				BlowerVentilation: s.Blower.Applied,
				AugerDispenser:    s.Auger.Applied,
				ActuatorFeeder:    s.Actuator.Applied,
			},
		},
		FreeMemoryBytes: mem.HeapIdle,
		TimingSettings: timingBlock{
			ActuatorUpSec:     t.ActuatorUpSec,
			ActuatorDownSec:   t.ActuatorDownSec,
			FeedDurationSec:   t.AugerDurationSec,
			BlowerDurationSec: t.BlowerDurationSec,
		},
		Feeding: feedingBlock{
			InProgress: r.feeding.InProgress(),
			Status:     r.feeding.Status(),
		},
	}
	if snap.Feeding.InProgress {
		snap.Feeding.DurationSec = int64(r.feeding.Elapsed().Seconds())
	}
	return snap
}

func (r *Reporter) gauges() {
	s := r.state
	datadog.Gauge("feed_tank_temp", scrub(s.FeedTank.Temperature))
	datadog.Gauge("feed_tank_humidity", scrub(s.FeedTank.Humidity))
	datadog.Gauge("control_box_temp", scrub(s.ControlBox.Temperature))
	datadog.Gauge("weight_kg", scrub(s.WeightKg))
	datadog.Gauge("soil_moisture_percent", float64(s.SoilMoisturePercent))
	datadog.Gauge("solar_voltage", scrub(s.Solar.Voltage))
	datadog.Gauge("load_voltage", scrub(s.Load.Voltage))
	datadog.Gauge("battery_percent", float64(s.Battery.Percent))
	datadog.Gauge("blower_pwm", float64(s.Blower.Applied))
	datadog.Gauge("auger_pwm", float64(s.Auger.Applied))
	datadog.Gauge("actuator_pwm", float64(s.Actuator.Applied))
}

// scrub keeps NaN and Inf off the wire; the host treats 0 as "no reading".
func scrub(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
