package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iamotakugot/fish-feeder-controller/db"
	"github.com/iamotakugot/fish-feeder-controller/internal/actuator"
	"github.com/iamotakugot/fish-feeder-controller/internal/calibration"
	"github.com/iamotakugot/fish-feeder-controller/internal/config"
	"github.com/iamotakugot/fish-feeder-controller/internal/datadog"
	"github.com/iamotakugot/fish-feeder-controller/internal/feeding"
	"github.com/iamotakugot/fish-feeder-controller/internal/gpio"
	"github.com/iamotakugot/fish-feeder-controller/internal/logging"
	"github.com/iamotakugot/fish-feeder-controller/internal/model"
	"github.com/iamotakugot/fish-feeder-controller/internal/notifications"
	"github.com/iamotakugot/fish-feeder-controller/internal/scheduler"
	"github.com/iamotakugot/fish-feeder-controller/internal/sensors"
	"github.com/iamotakugot/fish-feeder-controller/internal/telemetry"
	"github.com/iamotakugot/fish-feeder-controller/internal/transport"
	"github.com/iamotakugot/fish-feeder-controller/system/shutdown"
	"github.com/iamotakugot/fish-feeder-controller/system/startup"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("serial_port", cfg.SerialPort).
		Str("mode", cfg.PerformanceMode).
		Msg("Starting fish feeder controller")

	gpio.SetSafeMode(cfg.SafeMode)
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED — GPIO Set() is disabled system-wide")
	}

	datadog.InitMetrics(&cfg)
	notifications.Init(cfg.NtfyTopic)

	if err := startup.WriteStartupScript(&cfg); err != nil {
		log.Warn().Err(err).Msg("Could not write startup pin script")
	}

	if err := gpio.ValidateStartupPins(managedPins(&cfg)); err != nil {
		log.Fatal().Err(err).Msg("Refusing to start with outputs already energized")
	}
	for _, ch := range []model.PWMChannel{*cfg.PWM.Auger, *cfg.PWM.Actuator, *cfg.PWM.Blower} {
		if err := gpio.ExportPWM(ch); err != nil {
			log.Fatal().Err(err).Int("chip", ch.Chip).Int("channel", ch.Channel).Msg("Failed to export PWM channel")
		}
	}

	state := &model.SystemState{}
	acts := actuator.NewController(state, pinsFromConfig(&cfg))
	shutdown.RegisterStopAll(acts.EmergencyStop)

	conn, err := db.Open(cfg.DatabaseFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabaseFile).Msg("Failed to open database")
	}
	defer conn.Close()

	var calStore calibration.Store
	if cfg.CalibrationStore == "sqlite" {
		calStore = db.NewCalibrationStore(conn)
	} else {
		calStore = calibration.NewFileStore(cfg.CalibrationFile)
	}

	cal := calibration.NewService(calStore, func(samples int) (float64, error) {
		return sensors.SampleRaw(cfg.Sensors.LoadCellDevice, samples)
	}, notifyOrLog)
	cal.Load()

	sens := sensors.NewService(&cfg.Sensors, state, cal)

	link, err := transport.Open(cfg.SerialPort, cfg.BaudRate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open host serial link")
	}
	defer link.Close()

	var sched *scheduler.Scheduler
	seq := feeding.NewSequencer(acts, func() config.FeedTiming { return cfg.Timing },
		cfg.FeedRateGramsPerSec, time.Now, func(status string) {
			sched.OnFeedingStatus(status)
		})
	reporter := telemetry.NewReporter(&cfg, state, seq, link)
	sched = scheduler.New(scheduler.Deps{
		Config:      &cfg,
		State:       state,
		Sensors:     sens,
		Actuators:   acts,
		Sequencer:   seq,
		Reporter:    reporter,
		Calibration: cal,
		Inbound:     link.Lines(),
		EventDB:     conn,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Info().Str("signal", s.String()).Msg("Shutting down")
		cancel()
	}()

	sched.Run(ctx)
}

func notifyOrLog(title, message string) {
	if err := notifications.Send(title, message); err != nil {
		log.Debug().Err(err).Str("title", title).Msg("Notification not sent")
	}
}

func pinsFromConfig(cfg *config.Config) actuator.Pins {
	return actuator.Pins{
		LEDRelay:    *cfg.GPIO.LEDRelay,
		FanRelay:    *cfg.GPIO.FanRelay,
		AugerIn1:    *cfg.GPIO.AugerIn1,
		AugerIn2:    *cfg.GPIO.AugerIn2,
		ActuatorIn1: *cfg.GPIO.ActuatorIn1,
		ActuatorIn2: *cfg.GPIO.ActuatorIn2,
		BlowerDir:   *cfg.GPIO.BlowerDir,
		AugerPWM:    *cfg.PWM.Auger,
		ActuatorPWM: *cfg.PWM.Actuator,
		BlowerPWM:   *cfg.PWM.Blower,
	}
}

func managedPins(cfg *config.Config) map[string]model.GPIOPin {
	return map[string]model.GPIOPin{
		"led_relay":    *cfg.GPIO.LEDRelay,
		"fan_relay":    *cfg.GPIO.FanRelay,
		"auger_in1":    *cfg.GPIO.AugerIn1,
		"auger_in2":    *cfg.GPIO.AugerIn2,
		"actuator_in1": *cfg.GPIO.ActuatorIn1,
		"actuator_in2": *cfg.GPIO.ActuatorIn2,
		"blower_dir":   *cfg.GPIO.BlowerDir,
	}
}
