package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Legacy flat tokens remain byte-compatible with the external host that
// still emits them: "R:1", "FEED:100", "CAL:weight:2.0" and friends. Each
// token maps onto the same Command the structured parser produces.
func parseLegacy(line string) (Command, error) {
	switch line {
	case "R:0":
		return AllRelaysOff{}, nil
	case "R:1":
		return SetRelay{Target: RelayFan, On: true}, nil
	case "R:2":
		return SetRelay{Target: RelayFan, On: false}, nil
	case "R:3":
		return SetRelay{Target: RelayLED, On: true}, nil
	case "R:4":
		return SetRelay{Target: RelayLED, On: false}, nil
	case "B:0":
		return SetBlower{PWM: 0}, nil
	case "B:1":
		return SetBlower{PWM: 255}, nil
	case "A:0":
		return SetActuator{PWM: 0}, nil
	case "A:1":
		return SetActuator{PWM: 255}, nil
	case "A:2":
		return SetActuator{PWM: -255}, nil
	case "G:0":
		return SetAuger{PWM: 0}, nil
	case "G:1":
		return SetAuger{PWM: defaultAugerPWM}, nil
	case "G:2":
		return SetAuger{PWM: -defaultAugerPWM}, nil
	case "TAR:weight":
		return Tare{}, nil
	case "STATUS", "GET:sensors":
		return StatusRequest{}, nil
	case "STOP:all":
		return EmergencyStop{}, nil
	case "STOP:feed":
		return StopFeed{}, nil
	}

	switch {
	case strings.HasPrefix(line, "B:1:"):
		return parseSpeedToken(line, "B:1:", func(v int) Command { return SetBlower{PWM: v} })
	case strings.HasPrefix(line, "B:SPD:"):
		return parseSpeedToken(line, "B:SPD:", func(v int) Command { return SetBlower{PWM: v} })
	case strings.HasPrefix(line, "G:SPD:"):
		return parseSpeedToken(line, "G:SPD:", func(v int) Command { return SetAuger{PWM: v} })
	case strings.HasPrefix(line, "FEED:"):
		return parseFeedToken(strings.TrimPrefix(line, "FEED:"))
	case strings.HasPrefix(line, "CAL:weight:"):
		kg, err := strconv.ParseFloat(strings.TrimPrefix(line, "CAL:weight:"), 64)
		if err != nil || kg <= 0 {
			return nil, fmt.Errorf("bad calibration weight in %q", line)
		}
		return Calibrate{KnownKg: kg}, nil
	}

	return nil, fmt.Errorf("unrecognized legacy token %q", line)
}

// defaultAugerPWM matches the speed the legacy host expects from a bare
// G:1/G:2 token.
const defaultAugerPWM = 200

func parseSpeedToken(line, prefix string, build func(int) Command) (Command, error) {
	v, err := strconv.Atoi(strings.TrimPrefix(line, prefix))
	if err != nil {
		return nil, fmt.Errorf("bad speed value in %q", line)
	}
	return build(v), nil
}

func parseFeedToken(arg string) (Command, error) {
	switch arg {
	case "small", "medium", "large":
		return Feed{Preset: arg}, nil
	}
	amount, err := strconv.ParseFloat(arg, 64)
	if err != nil || amount <= 0 {
		return nil, fmt.Errorf("bad feed amount %q", arg)
	}
	return Feed{AmountGrams: amount}, nil
}
