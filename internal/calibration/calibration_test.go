package calibration

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

type memStore struct {
	cal     model.Calibration
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) Load() (model.Calibration, error) {
	return m.cal, m.loadErr
}

func (m *memStore) Save(cal model.Calibration) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cal = cal
	m.saves++
	return nil
}

// fakeCell simulates an HX711: raw counts are a linear function of the mass
// on the cell, so tare and calibrate behave like hardware.
type fakeCell struct {
	countsPerKg float64
	zeroCounts  float64
	massKg      float64
}

func (f *fakeCell) sample(samples int) (float64, error) {
	return f.zeroCounts + f.massKg*f.countsPerKg, nil
}

func TestLoadValidCalibration(t *testing.T) {
	store := &memStore{cal: model.Calibration{ScaleFactor: 420.5, Offset: 8123}}
	s := NewService(store, nil, nil)
	s.Load()
	assert.Equal(t, store.cal, s.Current())
}

func TestLoadErrorFallsBackToIdentity(t *testing.T) {
	store := &memStore{loadErr: errors.New("no such file")}
	s := NewService(store, nil, nil)
	s.Load()
	assert.Equal(t, model.IdentityCalibration(), s.Current())
}

func TestLoadCorruptBlobFallsBackAndNotifies(t *testing.T) {
	var notified bool
	store := &memStore{cal: model.Calibration{ScaleFactor: -3, Offset: 1}}
	s := NewService(store, nil, func(title, message string) {
		notified = true
	})
	s.Load()
	assert.Equal(t, model.IdentityCalibration(), s.Current())
	assert.True(t, notified, "corruption must raise an alert")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(model.Calibration{ScaleFactor: 500}))
	assert.ErrorIs(t, Validate(model.Calibration{ScaleFactor: 0}), ErrCorruptCalibration)
	assert.ErrorIs(t, Validate(model.Calibration{ScaleFactor: -1}), ErrCorruptCalibration)
	assert.ErrorIs(t, Validate(model.Calibration{ScaleFactor: 2e5}), ErrCorruptCalibration)
}

// The property the whole scale feature rests on: after tare the empty cell
// reads zero, and after calibrate a known mass reads back within tolerance.
func TestTareAndCalibrateRoundTrip(t *testing.T) {
	cell := &fakeCell{countsPerKg: 1250, zeroCounts: 8000}
	store := &memStore{}
	s := NewService(store, cell.sample, nil)

	// Tare with an empty cell.
	require.NoError(t, s.Tare())
	assert.Equal(t, int64(8000), s.Current().Offset)

	// Put a 2 kg reference mass on and calibrate.
	cell.massKg = 2.0
	require.NoError(t, s.Calibrate(2.0))

	// Weigh a fresh 1.5 kg mass through the resulting calibration.
	cell.massKg = 1.5
	raw, err := cell.sample(1)
	require.NoError(t, err)
	cal := s.Current()
	weight := (raw - float64(cal.Offset)) / cal.ScaleFactor
	assert.InDelta(t, 1.5, weight, 1.5*0.02)

	assert.Equal(t, 2, store.saves, "tare and calibrate each persist once")
}

func TestCalibrateRejectsZeroDelta(t *testing.T) {
	cell := &fakeCell{countsPerKg: 1250, zeroCounts: 8000}
	store := &memStore{}
	s := NewService(store, cell.sample, nil)
	require.NoError(t, s.Tare())

	// Nothing on the cell: raw equals the offset, no delta to scale from.
	err := s.Calibrate(2.0)
	assert.ErrorIs(t, err, ErrZeroSample)
}

func TestCalibrateRejectsNonPositiveWeight(t *testing.T) {
	s := NewService(&memStore{}, nil, nil)
	assert.Error(t, s.Calibrate(0))
	assert.Error(t, s.Calibrate(-2))
}

func TestTarePersistFailureKeepsOldCalibration(t *testing.T) {
	cell := &fakeCell{countsPerKg: 1250, zeroCounts: 8000}
	store := &memStore{saveErr: errors.New("disk full")}
	s := NewService(store, cell.sample, nil)

	before := s.Current()
	assert.Error(t, s.Tare())
	assert.Equal(t, before, s.Current(), "failed persist must not change live calibration")
}
