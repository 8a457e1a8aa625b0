package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteRepository implements Repository on the staging_requests table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const requestColumns = `id, session_id, tour_id, scene_id, style, room_type, remove_existing,
	status, staged_image_url, error_message, requested_at, completed_at, duration_ms`

// CreateRequest inserts a new request record.
func (r *SQLiteRepository) CreateRequest(ctx context.Context, req *Request) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO staging_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.SessionID,
		req.TourID,
		req.SceneID,
		string(req.Style),
		string(req.RoomType),
		boolToInt(req.RemoveExisting),
		string(req.Status),
		nullableString(req.StagedImageURL),
		nullableString(req.ErrorMessage),
		req.RequestedAt.Format(time.RFC3339Nano),
		nullableTime(req.CompletedAt),
		req.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting staging request: %w", err)
	}
	return nil
}

// UpdateRequest records the outcome of a request.
func (r *SQLiteRepository) UpdateRequest(ctx context.Context, req *Request) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE staging_requests SET
			status = ?, staged_image_url = ?, error_message = ?,
			completed_at = ?, duration_ms = ?
		WHERE id = ?`,
		string(req.Status),
		nullableString(req.StagedImageURL),
		nullableString(req.ErrorMessage),
		nullableTime(req.CompletedAt),
		req.DurationMS,
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("updating staging request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// GetRequest retrieves a request by id.
func (r *SQLiteRepository) GetRequest(ctx context.Context, id string) (*Request, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM staging_requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("querying staging request: %w", err)
	}
	return req, nil
}

// ListRequests returns recent requests for a scene, newest first.
func (r *SQLiteRepository) ListRequests(ctx context.Context, tourID, sceneID string, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM staging_requests
		WHERE tour_id = ? AND scene_id = ?
		ORDER BY requested_at DESC
		LIMIT ?`, tourID, sceneID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying staging requests: %w", err)
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		req, scanErr := scanRequest(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning staging request: %w", scanErr)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating staging requests: %w", err)
	}
	return requests, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(scanner rowScanner) (*Request, error) {
	var req Request
	var style, roomType, status, requestedAt string
	var removeExisting int
	var stagedURL, errMsg, completedAt sql.NullString
	var duration sql.NullInt64

	err := scanner.Scan(
		&req.ID,
		&req.SessionID,
		&req.TourID,
		&req.SceneID,
		&style,
		&roomType,
		&removeExisting,
		&status,
		&stagedURL,
		&errMsg,
		&requestedAt,
		&completedAt,
		&duration,
	)
	if err != nil {
		return nil, err
	}

	req.Style = Style(style)
	req.RoomType = RoomType(roomType)
	req.RemoveExisting = removeExisting != 0
	req.Status = RequestStatus(status)
	if stagedURL.Valid {
		req.StagedImageURL = &stagedURL.String
	}
	if errMsg.Valid {
		req.ErrorMessage = &errMsg.String
	}
	if t, parseErr := time.Parse(time.RFC3339Nano, requestedAt); parseErr == nil {
		req.RequestedAt = t
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339Nano, completedAt.String); parseErr == nil {
			req.CompletedAt = &t
		}
	}
	if duration.Valid {
		d := int(duration.Int64)
		req.DurationMS = &d
	}
	return &req, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
