package tour

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists tours.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Tour, error)
	GetBySlug(ctx context.Context, slug string) (*Tour, error)
	List(ctx context.Context) ([]Tour, error)
	Create(ctx context.Context, t *Tour) error
	Update(ctx context.Context, t *Tour) error
	Delete(ctx context.Context, id string) error
}

const tourColumns = `id, name, slug, property_id, floor_area_sqm, scenes, neighborhood, created_at, updated_at`

// SQLiteRepository implements Repository on the tours table. Scenes and the
// neighbourhood layout are stored as JSON documents.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a tour by id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Tour, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tourColumns+` FROM tours WHERE id = ?`, id)
	t, err := scanTour(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTourNotFound
		}
		return nil, fmt.Errorf("querying tour by id: %w", err)
	}
	return t, nil
}

// GetBySlug retrieves a tour by slug.
func (r *SQLiteRepository) GetBySlug(ctx context.Context, slug string) (*Tour, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tourColumns+` FROM tours WHERE slug = ?`, slug)
	t, err := scanTour(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTourNotFound
		}
		return nil, fmt.Errorf("querying tour by slug: %w", err)
	}
	return t, nil
}

// List returns all tours ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Tour, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tourColumns+` FROM tours ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying tours: %w", err)
	}
	defer rows.Close()

	var tours []Tour
	for rows.Next() {
		t, scanErr := scanTour(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning tour: %w", scanErr)
		}
		tours = append(tours, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tours: %w", err)
	}
	return tours, nil
}

// Create inserts a new tour.
func (r *SQLiteRepository) Create(ctx context.Context, t *Tour) error {
	scenesJSON, neighborhoodJSON, err := marshalDocuments(t)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tours (`+tourColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Name,
		t.Slug,
		nullableString(t.PropertyID),
		nullableFloat(t.FloorAreaSqm),
		scenesJSON,
		neighborhoodJSON,
		t.CreatedAt.Format(time.RFC3339),
		t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrTourExists
		}
		return fmt.Errorf("inserting tour: %w", err)
	}
	return nil
}

// Update replaces an existing tour.
func (r *SQLiteRepository) Update(ctx context.Context, t *Tour) error {
	scenesJSON, neighborhoodJSON, err := marshalDocuments(t)
	if err != nil {
		return err
	}

	t.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE tours SET
			name = ?, slug = ?, property_id = ?, floor_area_sqm = ?,
			scenes = ?, neighborhood = ?, updated_at = ?
		WHERE id = ?`,
		t.Name,
		t.Slug,
		nullableString(t.PropertyID),
		nullableFloat(t.FloorAreaSqm),
		scenesJSON,
		neighborhoodJSON,
		t.UpdatedAt.Format(time.RFC3339),
		t.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrTourExists
		}
		return fmt.Errorf("updating tour: %w", err)
	}
	return expectOneRow(result)
}

// Delete removes a tour by id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM tours WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting tour: %w", err)
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrTourNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTour(scanner rowScanner) (*Tour, error) {
	var t Tour
	var propertyID, neighborhoodJSON sql.NullString
	var floorArea sql.NullFloat64
	var scenesJSON, createdAt, updatedAt string

	err := scanner.Scan(
		&t.ID,
		&t.Name,
		&t.Slug,
		&propertyID,
		&floorArea,
		&scenesJSON,
		&neighborhoodJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if propertyID.Valid {
		t.PropertyID = &propertyID.String
	}
	if floorArea.Valid {
		t.FloorAreaSqm = &floorArea.Float64
	}
	if ts, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		t.CreatedAt = ts
	}
	if ts, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		t.UpdatedAt = ts
	}

	if err := json.Unmarshal([]byte(scenesJSON), &t.Scenes); err != nil {
		return nil, fmt.Errorf("unmarshalling scenes: %w", err)
	}
	if t.Scenes == nil {
		t.Scenes = []Scene{}
	}
	if neighborhoodJSON.Valid && neighborhoodJSON.String != "" {
		var layout WorldLayout
		if err := json.Unmarshal([]byte(neighborhoodJSON.String), &layout); err != nil {
			return nil, fmt.Errorf("unmarshalling neighborhood: %w", err)
		}
		t.Neighborhood = &layout
	}

	return &t, nil
}

func marshalDocuments(t *Tour) (scenes string, neighborhood sql.NullString, err error) {
	scenesJSON, err := json.Marshal(t.Scenes)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("marshalling scenes: %w", err)
	}
	if t.Neighborhood != nil {
		data, err := json.Marshal(t.Neighborhood)
		if err != nil {
			return "", sql.NullString{}, fmt.Errorf("marshalling neighborhood: %w", err)
		}
		neighborhood = sql.NullString{String: string(data), Valid: true}
	}
	return string(scenesJSON), neighborhood, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
