package sensors

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/iamotakugot/fish-feeder-controller/internal/config"
	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

// ADC front-end constants for the solar charge monitor: a 10-bit ADC behind
// a 4.5:1 divider, and ACS712-30A hall sensors (66 mV/A, 2.5 V at zero
// current).
const (
	adcMax             = 1023.0
	vRef               = 5.0
	voltageDividerGain = 4.50
	currentSensitivity = 0.066
	zeroCurrentVoltage = 2.500

	// Solar rail above this voltage means the panel is charging the pack
	// and the discharge curve does not apply.
	chargingThreshold = 5.0
)

// Plausible ranges per sensor. Readings outside these are rejected and the
// previous valid value retained.
const (
	tempMin, tempMax         = -40.0, 80.0
	humidityMin, humidityMax = 0.0, 100.0
	voltageMin, voltageMax   = 0.0, 30.0
	currentMin, currentMax   = -50.0, 50.0
)

// Hardware read funcs are package vars so tests can substitute fakes, same
// as the gpio package does for pin writes.

// ReadTempHumidity reads an iio DHT22 device directory: in_temp_input is
// millidegrees C, in_humidityrelative_input is milli-percent.
var ReadTempHumidity = func(device string) (float64, float64, error) {
	t, err := readIIOValue(filepath.Join(device, "in_temp_input"))
	if err != nil {
		return 0, 0, err
	}
	h, err := readIIOValue(filepath.Join(device, "in_humidityrelative_input"))
	if err != nil {
		return 0, 0, err
	}
	return t / 1000.0, h / 1000.0, nil
}

// ReadADCRaw reads one raw channel from an iio ADC device directory.
var ReadADCRaw = func(device string, channel int) (int, error) {
	v, err := readIIOValue(filepath.Join(device, fmt.Sprintf("in_voltage%d_raw", channel)))
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// ReadLoadCellRaw reads one raw sample from the HX711 iio driver.
var ReadLoadCellRaw = func(device string) (int64, error) {
	v, err := readIIOValue(filepath.Join(device, "in_voltage0_raw"))
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func readIIOValue(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed sensor value in %s: %w", path, err)
	}
	return v, nil
}

// CalibrationSource yields the current load-cell calibration. Implemented
// by the calibration service.
type CalibrationSource interface {
	Current() model.Calibration
}

// Service reads every physical sensor on each scheduled tick and folds the
// validated results into SystemState. Invalid readings are logged and the
// last known good value retained.
type Service struct {
	cfg   *config.Sensors
	state *model.SystemState
	cal   CalibrationSource
}

func NewService(cfg *config.Sensors, state *model.SystemState, cal CalibrationSource) *Service {
	return &Service{cfg: cfg, state: state, cal: cal}
}

// ReadAll performs one acquisition pass. It never returns an error; sensor
// failures are local events that degrade to stale data, not faults that can
// stop the loop.
func (s *Service) ReadAll() {
	s.readClimate()
	s.readWeight()
	s.readSoil()
	s.readPower()
	s.state.DataChanged = true
}

func (s *Service) readClimate() {
	if t, h, err := ReadTempHumidity(s.cfg.FeedTankDevice); err != nil {
		log.Warn().Err(err).Str("sensor", "feed_tank").Msg("Sensor read failed, retaining previous value")
	} else {
		s.state.FeedTank = validateClimate(s.state.FeedTank, t, h, "feed_tank")
	}

	if t, h, err := ReadTempHumidity(s.cfg.ControlBoxDevice); err != nil {
		log.Warn().Err(err).Str("sensor", "control_box").Msg("Sensor read failed, retaining previous value")
	} else {
		s.state.ControlBox = validateClimate(s.state.ControlBox, t, h, "control_box")
	}
}

func validateClimate(prev model.TempHumidity, t, h float64, name string) model.TempHumidity {
	next := prev
	if math.IsNaN(t) || t < tempMin || t > tempMax {
		log.Warn().Str("sensor", name).Float64("temperature", t).Msg("Temperature out of range, retaining previous value")
	} else {
		next.Temperature = t
	}
	if math.IsNaN(h) || h < humidityMin || h > humidityMax {
		log.Warn().Str("sensor", name).Float64("humidity", h).Msg("Humidity out of range, retaining previous value")
	} else {
		next.Humidity = h
	}
	return next
}

func (s *Service) readWeight() {
	raw, err := ReadLoadCellRaw(s.cfg.LoadCellDevice)
	if err != nil {
		log.Warn().Err(err).Str("sensor", "load_cell").Msg("Sensor read failed, retaining previous value")
		return
	}
	cal := s.cal.Current()
	weight := float64(raw-cal.Offset) / cal.ScaleFactor
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		log.Warn().Int64("raw", raw).Msg("Weight computation invalid, retaining previous value")
		return
	}
	s.state.WeightKg = weight
}

func (s *Service) readSoil() {
	raw, err := ReadADCRaw(s.cfg.ADCDevice, s.cfg.SoilChannel)
	if err != nil {
		log.Warn().Err(err).Str("sensor", "soil").Msg("Sensor read failed, retaining previous value")
		return
	}
	s.state.SoilMoisturePercent = SoilPercent(raw)
}

// SoilPercent maps the capacitive probe's raw range [300, 1023] onto
// [100%, 0%]: lower counts mean wetter soil.
func SoilPercent(raw int) int {
	pct := (1023 - raw) * 100 / (1023 - 300)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (s *Service) readPower() {
	samples := s.cfg.RailSampleCount
	if samples < 1 {
		samples = 1
	}

	var sumSV, sumSC, sumLV, sumLC int
	for i := 0; i < samples; i++ {
		for _, ch := range []struct {
			channel int
			sum     *int
		}{
			{s.cfg.SolarVoltageChannel, &sumSV},
			{s.cfg.SolarCurrentChannel, &sumSC},
			{s.cfg.LoadVoltageChannel, &sumLV},
			{s.cfg.LoadCurrentChannel, &sumLC},
		} {
			v, err := ReadADCRaw(s.cfg.ADCDevice, ch.channel)
			if err != nil {
				log.Warn().Err(err).Str("sensor", "power").Msg("Sensor read failed, retaining previous value")
				return
			}
			*ch.sum += v
		}
	}

	n := float64(samples)
	solarV := (float64(sumSV) / n / adcMax) * vRef * voltageDividerGain
	loadV := (float64(sumLV) / n / adcMax) * vRef * voltageDividerGain
	solarC := ((float64(sumSC)/n/adcMax)*vRef - zeroCurrentVoltage) / currentSensitivity
	loadC := ((float64(sumLC)/n/adcMax)*vRef - zeroCurrentVoltage) / currentSensitivity

	// The panel floats near zero when dark; kill the noise floor.
	if solarV < 1.0 {
		solarV = 0.0
	}
	if math.Abs(solarC) < 0.5 || solarV < 1.0 {
		solarC = 0.0
	}
	if loadC < 0 {
		loadC = -loadC
	}

	s.state.Solar = validateRail(s.state.Solar, solarV, solarC, "solar")
	s.state.Load = validateRail(s.state.Load, loadV, loadC, "load")
	s.state.Battery = BatteryFromRails(s.state.Load.Voltage, s.state.Solar.Voltage)
}

func validateRail(prev model.PowerRail, v, c float64, name string) model.PowerRail {
	next := prev
	if math.IsNaN(v) || v < voltageMin || v > voltageMax {
		log.Warn().Str("rail", name).Float64("voltage", v).Msg("Rail voltage out of range, retaining previous value")
	} else {
		next.Voltage = v
	}
	if math.IsNaN(c) || c < currentMin || c > currentMax {
		log.Warn().Str("rail", name).Float64("current", c).Msg("Rail current out of range, retaining previous value")
	} else {
		next.Current = c
	}
	return next
}

// BatteryFromRails derives the pack status from the two rail voltages.
// While the solar rail is above the charging threshold, the discharge curve
// is meaningless, so the status reports charging instead of a percentage.
func BatteryFromRails(loadV, solarV float64) model.BatteryStatus {
	if solarV > chargingThreshold {
		return model.BatteryStatus{State: model.BatteryCharging}
	}
	if loadV <= 0 {
		return model.BatteryStatus{State: model.BatteryUnknown}
	}
	return model.BatteryStatus{State: model.BatteryDischarging, Percent: batteryPercent(loadV)}
}

// batteryPercent maps load voltage to charge percentage along a
// piecewise-linear 3S lithium discharge curve between 8.4 V and 12.6 V,
// saturating at 0 and 100.
func batteryPercent(v float64) int {
	var pct float64
	switch {
	case v >= 12.6:
		pct = 100
	case v >= 12.4:
		pct = 90 + (v-12.4)/0.2*10
	case v >= 12.0:
		pct = 70 + (v-12.0)/0.4*20
	case v >= 11.5:
		pct = 40 + (v-11.5)/0.5*30
	case v >= 10.5:
		pct = 15 + (v-10.5)/1.0*25
	case v >= 9.0:
		pct = 5 + (v-9.0)/1.5*10
	case v >= 8.4:
		pct = (v - 8.4) / 0.6 * 5
	default:
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return int(math.Round(pct))
}

// SampleRaw averages n raw load-cell samples; used by tare and calibrate.
func SampleRaw(device string, n int) (float64, error) {
	if n < 1 {
		n = 1
	}
	var sum int64
	for i := 0; i < n; i++ {
		raw, err := ReadLoadCellRaw(device)
		if err != nil {
			return 0, err
		}
		sum += raw
	}
	return float64(sum) / float64(n), nil
}
