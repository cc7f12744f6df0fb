package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

// GPIO maps every digital output the controller manages. All pins are
// required; boot fails loudly on a missing or doubly-assigned pin rather
// than energizing the wrong device.
type GPIO struct {
	LEDRelay    *model.GPIOPin `json:"led_relay"`
	FanRelay    *model.GPIOPin `json:"fan_relay"`
	AugerIn1    *model.GPIOPin `json:"auger_in1"`
	AugerIn2    *model.GPIOPin `json:"auger_in2"`
	ActuatorIn1 *model.GPIOPin `json:"actuator_in1"`
	ActuatorIn2 *model.GPIOPin `json:"actuator_in2"`
	BlowerDir   *model.GPIOPin `json:"blower_dir"`
}

// PWM maps the three motor drive channels.
type PWM struct {
	Auger    *model.PWMChannel `json:"auger"`
	Actuator *model.PWMChannel `json:"actuator"`
	Blower   *model.PWMChannel `json:"blower"`
}

// Sensors holds the sysfs/iio device paths the acquisition service reads.
type Sensors struct {
	FeedTankDevice   string `json:"feed_tank_device"`
	ControlBoxDevice string `json:"control_box_device"`
	ADCDevice        string `json:"adc_device"`
	LoadCellDevice   string `json:"load_cell_device"`

	SoilChannel         int `json:"soil_channel"`
	SolarVoltageChannel int `json:"solar_voltage_channel"`
	SolarCurrentChannel int `json:"solar_current_channel"`
	LoadVoltageChannel  int `json:"load_voltage_channel"`
	LoadCurrentChannel  int `json:"load_current_channel"`

	// Rail readings are averaged over this many ADC samples per tick.
	RailSampleCount int `json:"rail_sample_count"`
}

// FeedTiming is the per-stage duration set for the automated feeding cycle,
// in seconds. Mutated only by validated configuration commands.
type FeedTiming struct {
	ActuatorUpSec     int `json:"actuator_up_sec"`
	ActuatorDownSec   int `json:"actuator_down_sec"`
	AugerDurationSec  int `json:"feed_duration_sec"`
	BlowerDurationSec int `json:"blower_duration_sec"`
}

// Clamp forces every stage duration into its safe range. Returns true if
// anything was adjusted.
func (t *FeedTiming) Clamp() bool {
	changed := false
	clamp := func(v *int, lo, hi int) {
		if *v < lo {
			*v = lo
			changed = true
		}
		if *v > hi {
			*v = hi
			changed = true
		}
	}
	clamp(&t.ActuatorUpSec, 1, 10)
	clamp(&t.ActuatorDownSec, 1, 10)
	clamp(&t.AugerDurationSec, 1, 30)
	clamp(&t.BlowerDurationSec, 1, 30)
	return changed
}

// Profile is a named (send, read) interval pair. Selecting a profile
// replaces both intervals as a unit; there is never a mixed state.
type Profile struct {
	SendInterval time.Duration
	ReadInterval time.Duration
}

// Profiles is the full lookup table for performance modes. Conditional
// interval logic lives here and nowhere else.
var Profiles = map[string]Profile{
	"REAL_TIME":  {SendInterval: 500 * time.Millisecond, ReadInterval: 250 * time.Millisecond},
	"FAST":       {SendInterval: 1 * time.Second, ReadInterval: 500 * time.Millisecond},
	"NORMAL":     {SendInterval: 2 * time.Second, ReadInterval: 1 * time.Second},
	"POWER_SAVE": {SendInterval: 5 * time.Second, ReadInterval: 2 * time.Second},
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string `json:"log_file"`

	SafeMode bool `json:"safe_mode"`

	SerialPort string `json:"serial_port"`
	BaudRate   int    `json:"baud_rate"`

	SendIntervalMS  int    `json:"send_interval_ms"`
	ReadIntervalMS  int    `json:"read_interval_ms"`
	PerformanceMode string `json:"performance_mode"`

	TickIntervalMS  int `json:"tick_interval_ms"`
	WatchdogSeconds int `json:"watchdog_seconds"`

	Timing FeedTiming `json:"feed_timing"`

	// Grams dispensed per second of auger runtime, used to turn a numeric
	// FEED amount into a stage duration.
	FeedRateGramsPerSec float64 `json:"feed_rate_grams_per_sec"`

	CalibrationStore string `json:"calibration_store"` // "file" or "sqlite"
	CalibrationFile  string `json:"calibration_file"`
	DatabaseFile     string `json:"database_file"`

	StartupScriptPath string `json:"startup_script_path"`

	GPIO    GPIO    `json:"gpio"`
	PWM     PWM     `json:"pwm"`
	Sensors Sensors `json:"sensors"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyTopic string `json:"ntfy_topic"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.SafeMode, "safe-mode", false, "Disable all hardware writes")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.TickIntervalMS == 0 {
		cfg.TickIntervalMS = 10
	}
	if cfg.PerformanceMode == "" {
		cfg.PerformanceMode = "NORMAL"
	}
	if cfg.SendIntervalMS == 0 || cfg.ReadIntervalMS == 0 {
		if err := cfg.ApplyProfile(cfg.PerformanceMode); err != nil {
			panic("Unknown performance mode in config: " + cfg.PerformanceMode)
		}
	}
	if cfg.Timing == (FeedTiming{}) {
		cfg.Timing = FeedTiming{
			ActuatorUpSec:     3,
			ActuatorDownSec:   2,
			AugerDurationSec:  5,
			BlowerDurationSec: 10,
		}
	}
	cfg.Timing.Clamp()
	if cfg.FeedRateGramsPerSec == 0 {
		cfg.FeedRateGramsPerSec = 20
	}
	if cfg.Sensors.RailSampleCount == 0 {
		cfg.Sensors.RailSampleCount = 50
	}
	if cfg.CalibrationStore == "" {
		cfg.CalibrationStore = "file"
	}
	if cfg.CalibrationFile == "" {
		cfg.CalibrationFile = "data/calibration.json"
	}
	if cfg.DatabaseFile == "" {
		cfg.DatabaseFile = "data/feeder.db"
	}
	if cfg.WatchdogSeconds == 0 {
		cfg.WatchdogSeconds = 60
	}
}

// ApplyProfile atomically replaces both intervals from the named profile.
func (cfg *Config) ApplyProfile(name string) error {
	p, ok := Profiles[name]
	if !ok {
		return fmt.Errorf("unknown performance mode %q", name)
	}
	cfg.SendIntervalMS = int(p.SendInterval / time.Millisecond)
	cfg.ReadIntervalMS = int(p.ReadInterval / time.Millisecond)
	cfg.PerformanceMode = name
	return nil
}

func (cfg *Config) SendInterval() time.Duration {
	return time.Duration(cfg.SendIntervalMS) * time.Millisecond
}

func (cfg *Config) ReadInterval() time.Duration {
	return time.Duration(cfg.ReadIntervalMS) * time.Millisecond
}

func (cfg *Config) TickInterval() time.Duration {
	return time.Duration(cfg.TickIntervalMS) * time.Millisecond
}

func (cfg *Config) WatchdogWindow() time.Duration {
	return time.Duration(cfg.WatchdogSeconds) * time.Second
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var (
		missingFields []string
		usedPins      = map[int]string{}
		conflicts     []string
	)

	pins := map[string]*model.GPIOPin{
		"gpio.led_relay":    cfg.GPIO.LEDRelay,
		"gpio.fan_relay":    cfg.GPIO.FanRelay,
		"gpio.auger_in1":    cfg.GPIO.AugerIn1,
		"gpio.auger_in2":    cfg.GPIO.AugerIn2,
		"gpio.actuator_in1": cfg.GPIO.ActuatorIn1,
		"gpio.actuator_in2": cfg.GPIO.ActuatorIn2,
		"gpio.blower_dir":   cfg.GPIO.BlowerDir,
	}
	for name, pin := range pins {
		if pin == nil {
			missingFields = append(missingFields, name)
			continue
		}
		if other, exists := usedPins[pin.Number]; exists {
			conflicts = append(conflicts, fmt.Sprintf("%s and %s both use pin %d", name, other, pin.Number))
		} else {
			usedPins[pin.Number] = name
		}
	}

	channels := map[string]*model.PWMChannel{
		"pwm.auger":    cfg.PWM.Auger,
		"pwm.actuator": cfg.PWM.Actuator,
		"pwm.blower":   cfg.PWM.Blower,
	}
	usedChannels := map[model.PWMChannel]string{}
	for name, ch := range channels {
		if ch == nil {
			missingFields = append(missingFields, name)
			continue
		}
		if other, exists := usedChannels[*ch]; exists {
			conflicts = append(conflicts, fmt.Sprintf("%s and %s both use pwmchip%d/pwm%d", name, other, ch.Chip, ch.Channel))
		} else {
			usedChannels[*ch] = name
		}
	}

	if len(missingFields) > 0 {
		panic("Missing required pin config fields: " + strings.Join(missingFields, ", "))
	}
	if len(conflicts) > 0 {
		panic("Conflicting pin assignments: " + strings.Join(conflicts, ", "))
	}

	if cfg.SerialPort == "" {
		panic("Missing required config field: serial_port")
	}
	if _, ok := Profiles[cfg.PerformanceMode]; !ok {
		panic("Unknown performance mode: " + cfg.PerformanceMode)
	}
	if cfg.CalibrationStore != "file" && cfg.CalibrationStore != "sqlite" {
		panic("calibration_store must be \"file\" or \"sqlite\", got: " + cfg.CalibrationStore)
	}
}
