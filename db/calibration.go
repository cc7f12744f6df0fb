package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

// CalibrationStore is the sqlite-backed calibration.Store implementation.
// The save runs in a transaction so scale factor and offset commit as a
// unit.
type CalibrationStore struct {
	conn *sql.DB
}

func NewCalibrationStore(conn *sql.DB) *CalibrationStore {
	return &CalibrationStore{conn: conn}
}

func (s *CalibrationStore) Load() (model.Calibration, error) {
	var cal model.Calibration
	err := s.conn.QueryRow(`SELECT scale_factor, offset FROM calibration WHERE id = 1`).
		Scan(&cal.ScaleFactor, &cal.Offset)
	if err != nil {
		return cal, fmt.Errorf("failed to load calibration: %w", err)
	}
	return cal, nil
}

func (s *CalibrationStore) Save(cal model.Calibration) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO calibration (id, scale_factor, offset, updated_at) VALUES (1, ?, ?, ?)`,
		cal.ScaleFactor, cal.Offset, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save calibration: %w", err)
	}

	return tx.Commit()
}
