package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/teds/internal/teds"
	"github.com/banshee-data/teds/internal/teds/bitcursor"
)

// ErrSensorNotFound is returned when no sensor has the requested id.
var ErrSensorNotFound = errors.New("sensor not found")

// Sensor is a stored TEDS record. Raw holds the exact encoded bitstream;
// Document is always decoded from Raw so the two cannot drift.
type Sensor struct {
	ID             string         `json:"id"`
	ManufacturerID uint64         `json:"manufacturer_id"`
	ModelNumber    uint64         `json:"model_number"`
	SerialNumber   uint64         `json:"serial_number"`
	TemplateID     uint64         `json:"template_id"`
	HasPreamble    bool           `json:"has_preamble"`
	BitLength      int            `json:"bit_length"`
	Raw            []byte         `json:"-"`
	Document       *teds.Document `json:"document"`
	CreatedAt      time.Time      `json:"created_at"`
}

// InsertSensor encodes doc and stores it under a new id. The returned
// record carries the document decoded back from the stored bits, so scaled
// values are already snapped to their quantization grid.
func (db *DB) InsertSensor(ctx context.Context, doc *teds.Document) (*Sensor, error) {
	buf, err := teds.EncodeBuffer(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sensor: %w", err)
	}
	stored, err := teds.DecodeBuffer(buf, doc.HasPreamble())
	if err != nil {
		return nil, fmt.Errorf("failed to decode encoded sensor: %w", err)
	}

	s := &Sensor{
		ID:          uuid.NewString(),
		HasPreamble: doc.HasPreamble(),
		BitLength:   buf.Len(),
		Raw:         buf.Bytes(),
		Document:    stored,
		CreatedAt:   db.clock.Now().UTC(),
	}
	if err := s.fillIdentity(); err != nil {
		return nil, err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sensors (
			id, manufacturer_id, model_number, serial_number, template_id,
			has_preamble, bit_length, raw, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, int64(s.ManufacturerID), int64(s.ModelNumber), int64(s.SerialNumber), int64(s.TemplateID),
		s.HasPreamble, s.BitLength, s.Raw, s.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sensor: %w", err)
	}
	return s, nil
}

// GetSensor loads one sensor by id.
func (db *DB) GetSensor(ctx context.Context, id string) (*Sensor, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, has_preamble, bit_length, raw, created_at
		FROM sensors WHERE id = ?`, id)
	s, err := scanSensor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSensorNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSensors returns all sensors, oldest first.
func (db *DB) ListSensors(ctx context.Context) ([]Sensor, error) {
	return db.querySensors(ctx, `
		SELECT id, has_preamble, bit_length, raw, created_at
		FROM sensors ORDER BY created_at, id`)
}

// FindSensors returns every stored record for one physical sensor.
func (db *DB) FindSensors(ctx context.Context, manufacturerID, modelNumber, serialNumber uint64) ([]Sensor, error) {
	return db.querySensors(ctx, `
		SELECT id, has_preamble, bit_length, raw, created_at
		FROM sensors
		WHERE manufacturer_id = ? AND model_number = ? AND serial_number = ?
		ORDER BY created_at, id`,
		int64(manufacturerID), int64(modelNumber), int64(serialNumber))
}

// DeleteSensor removes a sensor.
func (db *DB) DeleteSensor(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM sensors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sensor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete sensor: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSensorNotFound, id)
	}
	return nil
}

func (db *DB) querySensors(ctx context.Context, query string, args ...any) ([]Sensor, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	sensors := []Sensor{}
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensors: %w", err)
	}
	return sensors, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSensor(row scanner) (*Sensor, error) {
	var (
		s       Sensor
		created int64
	)
	if err := row.Scan(&s.ID, &s.HasPreamble, &s.BitLength, &s.Raw, &created); err != nil {
		return nil, err
	}
	s.CreatedAt = time.Unix(0, created).UTC()

	doc, err := teds.DecodeBuffer(bitcursor.NewBufferBits(s.Raw, s.BitLength), s.HasPreamble)
	if err != nil {
		return nil, fmt.Errorf("sensor %s: stored TEDS no longer decodes: %w", s.ID, err)
	}
	s.Document = doc
	if err := s.fillIdentity(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Sensor) fillIdentity() error {
	var err error
	if s.ManufacturerID, err = s.Document.Uint("manufacturer_id"); err != nil {
		return err
	}
	if s.ModelNumber, err = s.Document.Uint("model_number"); err != nil {
		return err
	}
	if s.SerialNumber, err = s.Document.Uint("serial_number"); err != nil {
		return err
	}
	s.TemplateID, err = s.Document.TemplateID()
	return err
}
