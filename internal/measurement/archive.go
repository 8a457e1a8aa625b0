package measurement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExportRecord is an archived export.
type ExportRecord struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"session_id"`
	TourID           string          `json:"tour_id"`
	SceneID          string          `json:"scene_id"`
	MeasurementCount int             `json:"measurement_count"`
	TotalMeters      float64         `json:"total_meters"`
	Document         json.RawMessage `json:"document"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Archive stores exports that were downloaded from sessions.
type Archive interface {
	Save(ctx context.Context, rec *ExportRecord) error
	GetByID(ctx context.Context, id string) (*ExportRecord, error)
	ListByTour(ctx context.Context, tourID string, limit int) ([]ExportRecord, error)
}

// NewExportRecord prepares an archive record for doc.
func NewExportRecord(sessionID, tourID, sceneID string, e *Engine, doc ExportDocument) (*ExportRecord, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return &ExportRecord{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		TourID:           tourID,
		SceneID:          sceneID,
		MeasurementCount: len(doc.Measurements),
		TotalMeters:      e.TotalMeters(),
		Document:         data,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// SQLiteArchive implements Archive on the measurement_exports table.
type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive creates an archive backed by db.
func NewSQLiteArchive(db *sql.DB) *SQLiteArchive {
	return &SQLiteArchive{db: db}
}

// Save inserts rec.
func (a *SQLiteArchive) Save(ctx context.Context, rec *ExportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO measurement_exports (
			id, session_id, tour_id, scene_id, measurement_count, total_meters, document, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.SessionID,
		rec.TourID,
		rec.SceneID,
		rec.MeasurementCount,
		rec.TotalMeters,
		string(rec.Document),
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting measurement export: %w", err)
	}
	return nil
}

// GetByID returns one archived export.
func (a *SQLiteArchive) GetByID(ctx context.Context, id string) (*ExportRecord, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, session_id, tour_id, scene_id, measurement_count, total_meters, document, created_at
		FROM measurement_exports WHERE id = ?`, id)
	rec, err := scanExport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExportNotFound
		}
		return nil, fmt.Errorf("querying measurement export: %w", err)
	}
	return rec, nil
}

// ListByTour returns the newest exports for a tour, at most limit.
func (a *SQLiteArchive) ListByTour(ctx context.Context, tourID string, limit int) ([]ExportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, session_id, tour_id, scene_id, measurement_count, total_meters, document, created_at
		FROM measurement_exports WHERE tour_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, tourID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying measurement exports: %w", err)
	}
	defer rows.Close()

	var out []ExportRecord
	for rows.Next() {
		rec, scanErr := scanExport(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning measurement export: %w", scanErr)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating measurement exports: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExport(s rowScanner) (*ExportRecord, error) {
	var rec ExportRecord
	var doc, createdAt string
	if err := s.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.TourID,
		&rec.SceneID,
		&rec.MeasurementCount,
		&rec.TotalMeters,
		&doc,
		&createdAt,
	); err != nil {
		return nil, err
	}
	rec.Document = json.RawMessage(doc)
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = ts
	}
	return &rec, nil
}
