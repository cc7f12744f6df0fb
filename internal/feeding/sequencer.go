package feeding

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iamotakugot/fish-feeder-controller/internal/config"
	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

// Stage drive levels. The actuator is driven at full scale in both
// directions; the auger default matches the legacy host's expectation and
// presets override it.
const (
	actuatorOpenPWM  = 255
	actuatorClosePWM = -255
	defaultAugerPWM  = 200
	blowerPWM        = 250
)

// ErrFeedInProgress is returned when a start request arrives while a
// session is active. At most one session exists at any time; requests are
// rejected, never queued.
var ErrFeedInProgress = errors.New("feeding already in progress")

// Actuators is the slice of the actuator controller the sequencer drives.
type Actuators interface {
	SetAuger(pwm int)
	SetActuator(pwm int)
	SetBlower(pwm int)
	StopMotors()
}

// session is the transient state of one feeding cycle. It exists only
// while a cycle runs.
type session struct {
	stage       model.FeedingStage
	stageStart  time.Time
	stageTarget time.Duration
	augerRun    time.Duration
	augerPWM    int
}

// Sequencer walks the fixed five-stage feeding cycle:
// Idle -> ActuatorOpening -> Dispensing -> Purging -> ActuatorClosing -> Idle.
// It never sleeps; Advance is called from the scheduler tick and moves the
// machine forward on monotonic elapsed-time comparisons, so the serial link
// and sensors keep running during a cycle.
type Sequencer struct {
	acts   Actuators
	timing func() config.FeedTiming
	rate   float64 // grams per second of auger runtime
	now    func() time.Time

	// onStatus fires on every stage transition with the wire status string.
	onStatus func(status string)

	sess   *session
	status string
}

func NewSequencer(acts Actuators, timing func() config.FeedTiming, gramsPerSec float64, now func() time.Time, onStatus func(string)) *Sequencer {
	return &Sequencer{
		acts:     acts,
		timing:   timing,
		rate:     gramsPerSec,
		now:      now,
		onStatus: onStatus,
		status:   string(model.StageIdle),
	}
}

func (s *Sequencer) InProgress() bool {
	return s.sess != nil
}

// Status returns the wire status string: the current stage while running,
// otherwise the outcome of the last cycle ("completed", "stopped", "idle").
func (s *Sequencer) Status() string {
	return s.status
}

// Elapsed returns time since the session started, zero when idle.
func (s *Sequencer) Elapsed() time.Duration {
	if s.sess == nil {
		return 0
	}
	return s.now().Sub(s.sess.stageStart) + s.elapsedBefore()
}

func (s *Sequencer) elapsedBefore() time.Duration {
	// Stage durations already completed; approximated from configured
	// targets, good enough for the telemetry duration_sec field.
	t := s.timing()
	switch s.sess.stage {
	case model.StageActuatorOpening:
		return 0
	case model.StageDispensing:
		return time.Duration(t.ActuatorUpSec) * time.Second
	case model.StagePurging:
		return time.Duration(t.ActuatorUpSec)*time.Second + s.sess.augerRun
	case model.StageActuatorClosing:
		return time.Duration(t.ActuatorUpSec)*time.Second + s.sess.augerRun +
			time.Duration(t.BlowerDurationSec)*time.Second
	}
	return 0
}

// Start begins a feeding cycle. amountGrams scales the auger stage against
// the configured dispense rate; preset picks one of the legacy host's
// fixed sizes. With neither, the configured auger duration applies.
func (s *Sequencer) Start(amountGrams float64, preset string) error {
	if s.sess != nil {
		log.Warn().Str("stage", string(s.sess.stage)).Msg("Feed request rejected, cycle already running")
		return ErrFeedInProgress
	}

	run, pwm := s.augerPlan(amountGrams, preset)
	s.sess = &session{
		augerRun: run,
		augerPWM: pwm,
	}
	log.Info().
		Float64("amount_grams", amountGrams).
		Str("preset", preset).
		Dur("auger_run", run).
		Msg("Starting feeding cycle")

	s.enterStage(model.StageActuatorOpening)
	return nil
}

func (s *Sequencer) augerPlan(amountGrams float64, preset string) (time.Duration, int) {
	switch preset {
	case "small":
		return 2 * time.Second, 180
	case "medium":
		return 4 * time.Second, 200
	case "large":
		return 6 * time.Second, 220
	}
	if amountGrams > 0 && s.rate > 0 {
		secs := amountGrams / s.rate
		if secs < 1 {
			secs = 1
		}
		if secs > 30 {
			secs = 30
		}
		return time.Duration(secs * float64(time.Second)), defaultAugerPWM
	}
	return time.Duration(s.timing().AugerDurationSec) * time.Second, defaultAugerPWM
}

// Advance evaluates at most one stage transition. Called once per
// scheduler tick.
func (s *Sequencer) Advance() {
	if s.sess == nil {
		return
	}
	if s.now().Sub(s.sess.stageStart) < s.sess.stageTarget {
		return
	}

	switch s.sess.stage {
	case model.StageActuatorOpening:
		s.acts.SetActuator(0)
		s.enterStage(model.StageDispensing)
	case model.StageDispensing:
		s.acts.SetAuger(0)
		s.enterStage(model.StagePurging)
	case model.StagePurging:
		s.acts.SetBlower(0)
		s.enterStage(model.StageActuatorClosing)
	case model.StageActuatorClosing:
		s.acts.SetActuator(0)
		s.finish("completed")
	}
}

func (s *Sequencer) enterStage(stage model.FeedingStage) {
	t := s.timing()
	s.sess.stage = stage
	s.sess.stageStart = s.now()

	switch stage {
	case model.StageActuatorOpening:
		s.sess.stageTarget = time.Duration(t.ActuatorUpSec) * time.Second
		s.acts.SetActuator(actuatorOpenPWM)
	case model.StageDispensing:
		s.sess.stageTarget = s.sess.augerRun
		s.acts.SetAuger(s.sess.augerPWM)
	case model.StagePurging:
		s.sess.stageTarget = time.Duration(t.BlowerDurationSec) * time.Second
		s.acts.SetBlower(blowerPWM)
	case model.StageActuatorClosing:
		s.sess.stageTarget = time.Duration(t.ActuatorDownSec) * time.Second
		s.acts.SetActuator(actuatorClosePWM)
	}

	s.setStatus(string(stage))
	log.Info().Str("stage", string(stage)).Dur("target", s.sess.stageTarget).Msg("Feeding stage started")
}

// Abort stops a running cycle immediately. Every motor the sequence uses
// is hard-stopped before Abort returns, regardless of the current stage;
// the device must never be left powered mid-cycle.
func (s *Sequencer) Abort() {
	if s.sess == nil {
		return
	}
	log.Warn().Str("stage", string(s.sess.stage)).Msg("Feeding cycle aborted")
	s.acts.StopMotors()
	s.finish("stopped")
}

func (s *Sequencer) finish(status string) {
	s.sess = nil
	s.setStatus(status)
	log.Info().Str("status", status).Msg("Feeding cycle ended")
}

func (s *Sequencer) setStatus(status string) {
	s.status = status
	if s.onStatus != nil {
		s.onStatus(status)
	}
}
