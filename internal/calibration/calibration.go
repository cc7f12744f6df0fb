package calibration

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

// Scale factors outside (0, 1e5] cannot come from a real load cell; a
// persisted value out of this range means the blob is corrupt.
const maxScaleFactor = 1e5

var (
	ErrCorruptCalibration = errors.New("persisted calibration out of range")
	ErrZeroSample         = errors.New("load cell returned a zero raw sample")
)

// Store abstracts the non-volatile medium so the calibration logic never
// cares whether it lands in a file or a database row. Save must be atomic:
// both fields committed or neither.
type Store interface {
	Load() (model.Calibration, error)
	Save(model.Calibration) error
}

// Notifier lets the service raise an out-of-band alert on corruption
// without depending on the notifications package directly.
type Notifier func(title, message string)

// Service owns the live calibration value and the tare/calibrate
// operations. sampleRaw averages raw load-cell counts; it is injected so
// tests and the sensors package share one implementation.
type Service struct {
	store     Store
	sampleRaw func(samples int) (float64, error)
	notify    Notifier
	cal       model.Calibration
}

func NewService(store Store, sampleRaw func(samples int) (float64, error), notify Notifier) *Service {
	return &Service{
		store:     store,
		sampleRaw: sampleRaw,
		notify:    notify,
		cal:       model.IdentityCalibration(),
	}
}

// Current returns the live calibration. Implements sensors.CalibrationSource.
func (s *Service) Current() model.Calibration {
	return s.cal
}

// Load reads the persisted calibration and validates it. Corrupt or missing
// data falls back to identity defaults with a warning; the feeder must never
// silently report wrong weights from a bad scale factor.
func (s *Service) Load() {
	cal, err := s.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No usable calibration found, using identity defaults")
		s.cal = model.IdentityCalibration()
		return
	}
	if err := Validate(cal); err != nil {
		log.Warn().
			Err(err).
			Float64("scale_factor", cal.ScaleFactor).
			Int64("offset", cal.Offset).
			Msg("Persisted calibration is corrupt, using identity defaults")
		if s.notify != nil {
			s.notify("Calibration corrupt", fmt.Sprintf("scale_factor=%g rejected, running uncalibrated", cal.ScaleFactor))
		}
		s.cal = model.IdentityCalibration()
		return
	}
	s.cal = cal
	log.Info().
		Float64("scale_factor", cal.ScaleFactor).
		Int64("offset", cal.Offset).
		Msg("Loaded load-cell calibration")
}

// Validate rejects scale factors a real load cell cannot produce.
func Validate(cal model.Calibration) error {
	if cal.ScaleFactor <= 0 || cal.ScaleFactor > maxScaleFactor {
		return ErrCorruptCalibration
	}
	return nil
}

// Tare sets the zero offset to the current raw reading and persists it.
func (s *Service) Tare() error {
	raw, err := s.sampleRaw(10)
	if err != nil {
		return fmt.Errorf("tare: %w", err)
	}

	next := s.cal
	next.Offset = int64(raw)
	if err := s.store.Save(next); err != nil {
		return fmt.Errorf("tare: persist: %w", err)
	}
	s.cal = next
	log.Info().Int64("offset", next.Offset).Msg("Tare complete, zero point set")
	return nil
}

// Calibrate computes the scale factor from a known reference mass sitting
// on the cell and persists both fields atomically.
func (s *Service) Calibrate(knownKg float64) error {
	if knownKg <= 0 {
		return fmt.Errorf("calibrate: known weight must be positive, got %g", knownKg)
	}

	raw, err := s.sampleRaw(10)
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	delta := raw - float64(s.cal.Offset)
	if delta == 0 {
		return ErrZeroSample
	}

	next := model.Calibration{
		ScaleFactor: delta / knownKg,
		Offset:      s.cal.Offset,
	}
	if err := Validate(next); err != nil {
		return fmt.Errorf("calibrate: computed scale factor %g out of range", next.ScaleFactor)
	}
	if err := s.store.Save(next); err != nil {
		return fmt.Errorf("calibrate: persist: %w", err)
	}
	s.cal = next
	log.Info().
		Float64("scale_factor", next.ScaleFactor).
		Float64("known_kg", knownKg).
		Msg("Calibration complete")
	return nil
}
