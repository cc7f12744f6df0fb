package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Parse classifies one inbound line and reduces it to canonical commands.
// A structured message may carry several mutations (settings plus controls);
// they are returned in apply order. A malformed message yields an error and
// no commands, never a partial application.
func Parse(line string) ([]Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if strings.HasPrefix(line, "{") {
		return parseStructured(line)
	}
	cmd, err := parseLegacy(line)
	if err != nil {
		return nil, err
	}
	return []Command{cmd}, nil
}

// structuredMessage mirrors the JSON command surface. Pointer fields
// distinguish "absent" from zero values.
type structuredMessage struct {
	Settings *struct {
		SendIntervalMS  *int    `json:"send_interval"`
		ReadIntervalMS  *int    `json:"read_interval"`
		PerformanceMode *string `json:"performance_mode"`
		Timing          *struct {
			ActuatorUpSec     *int `json:"actuator_up_sec"`
			ActuatorDownSec   *int `json:"actuator_down_sec"`
			AugerDurationSec  *int `json:"feed_duration_sec"`
			BlowerDurationSec *int `json:"blower_duration_sec"`
		} `json:"timing"`
	} `json:"settings"`
	Controls *struct {
		Relays *struct {
			LEDPondLight  *bool `json:"led_pond_light"`
			ControlBoxFan *bool `json:"control_box_fan"`
		} `json:"relays"`
		Motors *struct {
			Blower   *int `json:"blower_ventilation"`
			Auger    *int `json:"auger_food_dispenser"`
			Actuator *int `json:"actuator_feeder"`
		} `json:"motors"`
	} `json:"controls"`
	Command string  `json:"command"`
	Value   float64 `json:"value"`
}

// warnUnknownFields logs JSON keys the firmware does not understand. Unknown
// fields are ignored rather than rejected, so newer hosts keep working
// against older firmware.
func warnUnknownFields(line string) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.DisallowUnknownFields()
	var strict structuredMessage
	if err := dec.Decode(&strict); err != nil {
		log.Warn().Str("line", line).Err(err).Msg("Ignoring unknown fields in command message")
	}
}

func parseStructured(line string) ([]Command, error) {
	var msg structuredMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return nil, fmt.Errorf("malformed JSON command: %w", err)
	}
	warnUnknownFields(line)

	var cmds []Command

	if s := msg.Settings; s != nil {
		if s.PerformanceMode != nil {
			cmds = append(cmds, SetProfile{Name: *s.PerformanceMode})
		}
		if s.SendIntervalMS != nil || s.ReadIntervalMS != nil {
			var iv SetIntervals
			if s.SendIntervalMS != nil {
				d := time.Duration(*s.SendIntervalMS) * time.Millisecond
				iv.Send = &d
			}
			if s.ReadIntervalMS != nil {
				d := time.Duration(*s.ReadIntervalMS) * time.Millisecond
				iv.Read = &d
			}
			cmds = append(cmds, iv)
		}
		if t := s.Timing; t != nil {
			cmds = append(cmds, SetTiming{
				ActuatorUpSec:     t.ActuatorUpSec,
				ActuatorDownSec:   t.ActuatorDownSec,
				AugerDurationSec:  t.AugerDurationSec,
				BlowerDurationSec: t.BlowerDurationSec,
			})
		}
	}

	if c := msg.Controls; c != nil {
		if r := c.Relays; r != nil {
			if r.LEDPondLight != nil {
				cmds = append(cmds, SetRelay{Target: RelayLED, On: *r.LEDPondLight})
			}
			if r.ControlBoxFan != nil {
				cmds = append(cmds, SetRelay{Target: RelayFan, On: *r.ControlBoxFan})
			}
		}
		if m := c.Motors; m != nil {
			if m.Blower != nil {
				cmds = append(cmds, SetBlower{PWM: *m.Blower})
			}
			if m.Auger != nil {
				cmds = append(cmds, SetAuger{PWM: *m.Auger})
			}
			if m.Actuator != nil {
				cmds = append(cmds, SetActuator{PWM: *m.Actuator})
			}
		}
	}

	switch msg.Command {
	case "":
		// settings/controls-only message
	case "feed":
		if msg.Value < 0 {
			return nil, fmt.Errorf("bad feed amount %v", msg.Value)
		}
		cmds = append(cmds, Feed{AmountGrams: msg.Value})
	case "stop":
		cmds = append(cmds, EmergencyStop{})
	case "status":
		cmds = append(cmds, StatusRequest{})
	case "tare":
		cmds = append(cmds, Tare{})
	case "calibrate":
		cmds = append(cmds, Calibrate{KnownKg: msg.Value})
	default:
		return nil, fmt.Errorf("unknown command %q", msg.Command)
	}

	if len(cmds) == 0 {
		return nil, fmt.Errorf("message carries no recognized fields")
	}
	return cmds, nil
}
