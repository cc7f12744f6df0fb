package scheduler

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iamotakugot/fish-feeder-controller/db"
	"github.com/iamotakugot/fish-feeder-controller/internal/actuator"
	"github.com/iamotakugot/fish-feeder-controller/internal/calibration"
	"github.com/iamotakugot/fish-feeder-controller/internal/config"
	"github.com/iamotakugot/fish-feeder-controller/internal/datadog"
	"github.com/iamotakugot/fish-feeder-controller/internal/feeding"
	"github.com/iamotakugot/fish-feeder-controller/internal/model"
	"github.com/iamotakugot/fish-feeder-controller/internal/notifications"
	"github.com/iamotakugot/fish-feeder-controller/internal/protocol"
	"github.com/iamotakugot/fish-feeder-controller/internal/sensors"
	"github.com/iamotakugot/fish-feeder-controller/internal/telemetry"
)

// Scheduler owns every mutable piece of controller state and runs the
// single-threaded tick loop. Per tick it handles at most one inbound
// message, at most one feeding transition, and the interval-driven sensor
// and telemetry work. Nothing here blocks; stage waits are elapsed-time
// comparisons.
type Scheduler struct {
	cfg      *config.Config
	state    *model.SystemState
	sensors  *sensors.Service
	acts     *actuator.Controller
	seq      *feeding.Sequencer
	reporter *telemetry.Reporter
	cal      *calibration.Service
	inbound  <-chan string
	events   *sql.DB // nil when event logging is off

	now func() time.Time

	lastRead    time.Time
	lastSend    time.Time
	lastInbound time.Time
	wdTripped   bool

	feedEventID int64
}

type Deps struct {
	Config      *config.Config
	State       *model.SystemState
	Sensors     *sensors.Service
	Actuators   *actuator.Controller
	Sequencer   *feeding.Sequencer
	Reporter    *telemetry.Reporter
	Calibration *calibration.Service
	Inbound     <-chan string
	EventDB     *sql.DB
}

func New(d Deps) *Scheduler {
	now := time.Now()
	return &Scheduler{
		cfg:         d.Config,
		state:       d.State,
		sensors:     d.Sensors,
		acts:        d.Actuators,
		seq:         d.Sequencer,
		reporter:    d.Reporter,
		cal:         d.Calibration,
		inbound:     d.Inbound,
		events:      d.EventDB,
		now:         time.Now,
		lastRead:    now,
		lastSend:    now,
		lastInbound: now,
	}
}

// Run ticks until the context is cancelled. On exit every motor is
// stopped before returning.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()

	log.Info().
		Dur("tick", s.cfg.TickInterval()).
		Str("mode", s.cfg.PerformanceMode).
		Msg("Control loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Control loop stopping")
			s.seq.Abort()
			s.acts.EmergencyStop()
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	now := s.now()

	forceSend := s.handleOneMessage()
	s.seq.Advance()
	s.checkWatchdog(now)

	if now.Sub(s.lastRead) >= s.cfg.ReadInterval() {
		s.lastRead = now
		s.sensors.ReadAll()
	}

	if forceSend || now.Sub(s.lastSend) >= s.cfg.SendInterval() {
		s.lastSend = now
		s.reporter.Send(forceSend)
	}
}

// handleOneMessage drains at most one line from the host per tick and
// reports whether a telemetry send should follow.
func (s *Scheduler) handleOneMessage() bool {
	var line string
	select {
	case l, ok := <-s.inbound:
		if !ok {
			return false
		}
		line = l
	default:
		return false
	}

	s.lastInbound = s.now()
	s.wdTripped = false

	cmds, err := protocol.Parse(line)
	if err != nil {
		log.Warn().Err(err).Str("line", line).Msg("Dropping unparseable command")
		datadog.Count("commands_rejected", 1)
		return false
	}

	for _, cmd := range cmds {
		s.dispatch(cmd)
	}
	datadog.Count("commands_accepted", int64(len(cmds)))
	return true
}

func (s *Scheduler) dispatch(cmd protocol.Command) {
	switch c := cmd.(type) {
	case protocol.SetRelay:
		switch c.Target {
		case protocol.RelayLED:
			s.acts.SetLED(c.On)
		case protocol.RelayFan:
			s.acts.SetFan(c.On)
		}

	case protocol.AllRelaysOff:
		s.acts.AllRelaysOff()

	case protocol.SetBlower:
		if s.rejectManualMotor("blower") {
			return
		}
		s.acts.SetBlower(c.PWM)

	case protocol.SetAuger:
		if s.rejectManualMotor("auger") {
			return
		}
		s.acts.SetAuger(c.PWM)

	case protocol.SetActuator:
		if s.rejectManualMotor("actuator") {
			return
		}
		s.acts.SetActuator(c.PWM)

	case protocol.Feed:
		s.startFeed(c)

	case protocol.StopFeed:
		s.seq.Abort()

	case protocol.EmergencyStop:
		log.Warn().Msg("Emergency stop commanded")
		s.seq.Abort()
		s.acts.EmergencyStop()
		datadog.Count("emergency_stops", 1)

	case protocol.StatusRequest:
		s.state.DataChanged = true

	case protocol.Tare:
		if err := s.cal.Tare(); err != nil {
			log.Error().Err(err).Msg("Tare failed")
		}

	case protocol.Calibrate:
		if err := s.cal.Calibrate(c.KnownKg); err != nil {
			log.Error().Err(err).Float64("known_kg", c.KnownKg).Msg("Calibration failed")
		}

	case protocol.SetProfile:
		if err := s.cfg.ApplyProfile(c.Name); err != nil {
			log.Warn().Err(err).Msg("Rejecting performance mode change")
			return
		}
		log.Info().Str("mode", c.Name).Msg("Performance mode changed")

	case protocol.SetIntervals:
		if c.Send != nil {
			s.cfg.SendIntervalMS = clampIntervalMS(int(c.Send.Milliseconds()))
		}
		if c.Read != nil {
			s.cfg.ReadIntervalMS = clampIntervalMS(int(c.Read.Milliseconds()))
		}
		log.Info().
			Dur("send", s.cfg.SendInterval()).
			Dur("read", s.cfg.ReadInterval()).
			Msg("Intervals updated")

	case protocol.SetTiming:
		s.applyTiming(c)
	}
}

// clampIntervalMS bounds host-requested intervals: faster than 100 ms would
// saturate the link, slower than a minute makes the feeder look dead.
func clampIntervalMS(ms int) int {
	if ms < 100 {
		return 100
	}
	if ms > 60000 {
		return 60000
	}
	return ms
}

func (s *Scheduler) rejectManualMotor(name string) bool {
	if s.seq.InProgress() {
		log.Warn().Str("motor", name).Msg("Ignoring manual motor command during feeding cycle")
		return true
	}
	return false
}

func (s *Scheduler) startFeed(c protocol.Feed) {
	if err := s.seq.Start(c.AmountGrams, c.Preset); err != nil {
		return
	}
	if s.events != nil {
		id, err := db.InsertFeedEvent(s.events, s.now(), c.AmountGrams)
		if err != nil {
			log.Error().Err(err).Msg("Failed to record feed event")
			return
		}
		s.feedEventID = id
	}
}

// OnFeedingStatus is wired as the sequencer's status hook. Terminal
// statuses close the open feed-event row.
func (s *Scheduler) OnFeedingStatus(status string) {
	s.state.DataChanged = true
	if status != "completed" && status != "stopped" {
		return
	}
	datadog.Count("feed_cycles", 1, "status:"+status)
	if s.events == nil || s.feedEventID == 0 {
		return
	}
	if err := db.CloseFeedEvent(s.events, s.feedEventID, s.now(), status); err != nil {
		log.Error().Err(err).Int64("event_id", s.feedEventID).Msg("Failed to close feed event")
	}
	s.feedEventID = 0
}

func (s *Scheduler) applyTiming(c protocol.SetTiming) {
	t := s.cfg.Timing
	if c.ActuatorUpSec != nil {
		t.ActuatorUpSec = *c.ActuatorUpSec
	}
	if c.ActuatorDownSec != nil {
		t.ActuatorDownSec = *c.ActuatorDownSec
	}
	if c.AugerDurationSec != nil {
		t.AugerDurationSec = *c.AugerDurationSec
	}
	if c.BlowerDurationSec != nil {
		t.BlowerDurationSec = *c.BlowerDurationSec
	}
	if t.Clamp() {
		log.Warn().Msg("Requested stage durations clamped to safe range")
	}
	s.cfg.Timing = t
	log.Info().
		Int("actuator_up_sec", t.ActuatorUpSec).
		Int("actuator_down_sec", t.ActuatorDownSec).
		Int("feed_duration_sec", t.AugerDurationSec).
		Int("blower_duration_sec", t.BlowerDurationSec).
		Msg("Feed timing updated")
}

// checkWatchdog stops all motion when the host has gone silent longer
// than the configured window while anything is moving. A silent host
// cannot issue a stop, so the controller issues its own.
func (s *Scheduler) checkWatchdog(now time.Time) {
	window := s.cfg.WatchdogWindow()
	if window <= 0 || s.wdTripped {
		return
	}
	if now.Sub(s.lastInbound) < window {
		return
	}
	if !s.motionActive() {
		return
	}

	log.Warn().
		Dur("silence", now.Sub(s.lastInbound)).
		Msg("Host silent with motors running, stopping all motion")
	s.seq.Abort()
	s.acts.StopMotors()
	s.wdTripped = true
	datadog.Count("watchdog_trips", 1)
	if err := notifications.Send("Fish feeder watchdog", "Host link silent; all motors stopped"); err != nil {
		log.Debug().Err(err).Msg("Watchdog notification not sent")
	}
}

func (s *Scheduler) motionActive() bool {
	if s.seq.InProgress() {
		return true
	}
	return s.state.Auger.Applied != 0 ||
		s.state.Actuator.Applied != 0 ||
		s.state.Blower.Applied != 0
}
