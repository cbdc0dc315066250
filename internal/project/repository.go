package project

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/timelinecraft/studio/internal/segment"
)

type Repository interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListSummaries(ctx context.Context) ([]*Summary, error)
	UpdateProject(ctx context.Context, p *Project) error
	DeleteProject(ctx context.Context, id string) error

	LoadSegments(ctx context.Context, projectID string) ([]segment.Segment, error)
	SaveSegments(ctx context.Context, projectID string, segments []segment.Segment) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateProject(ctx context.Context, p *Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, zoom, video_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Zoom, nullString(p.VideoRef), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return err
}

// GetProject returns nil, nil when no project has the id.
func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, zoom, video_ref, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)

	var p Project
	var videoRef sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.Zoom, &videoRef, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.VideoRef = videoRef.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// ListSummaries returns every project, most recently updated first, with
// segment counts, total duration and the first segment's start frame.
func (r *SQLiteRepository) ListSummaries(ctx context.Context) ([]*Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.zoom, p.video_ref, p.created_at, p.updated_at,
			COUNT(s.id),
			COALESCE(SUM(s.end_time - s.start_time), 0),
			COALESCE((SELECT f.start_frame FROM segments f
				WHERE f.project_id = p.id ORDER BY f.position LIMIT 1), '')
		FROM projects p
		LEFT JOIN segments s ON s.project_id = p.id
		GROUP BY p.id
		ORDER BY p.updated_at DESC, p.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var s Summary
		var videoRef sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&s.ID, &s.Name, &s.Zoom, &videoRef, &createdAt, &updatedAt,
			&s.SegmentCount, &s.TotalDuration, &s.Thumbnail); err != nil {
			return nil, err
		}
		s.VideoRef = videoRef.String
		s.CreatedAt = parseTime(createdAt)
		s.UpdatedAt = parseTime(updatedAt)
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateProject(ctx context.Context, p *Project) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, zoom = ?, video_ref = ?, updated_at = ? WHERE id = ?
	`, p.Name, p.Zoom, nullString(p.VideoRef), formatTime(p.UpdatedAt), p.ID)
	return err
}

func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) LoadSegments(ctx context.Context, projectID string) ([]segment.Segment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, start_time, end_time, description, status,
			start_frame, end_frame, reference_image, last_generated_description
		FROM segments WHERE project_id = ? ORDER BY position
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []segment.Segment
	for rows.Next() {
		var s segment.Segment
		var status string
		var startFrame, endFrame, ref, lastGenerated sql.NullString
		if err := rows.Scan(&s.ID, &s.StartTime, &s.EndTime, &s.Description, &status,
			&startFrame, &endFrame, &ref, &lastGenerated); err != nil {
			return nil, err
		}
		s.Status = segment.Status(status)
		s.StartFrame = startFrame.String
		s.EndFrame = endFrame.String
		s.ReferenceImage = ref.String
		s.LastGeneratedDescription = lastGenerated.String
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

// SaveSegments replaces the project's stored segments with segments, in
// order, and bumps the project's updated_at.
func (r *SQLiteRepository) SaveSegments(ctx context.Context, projectID string, segments []segment.Segment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM segments WHERE project_id = ?", projectID); err != nil {
		return fmt.Errorf("clear segments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (id, project_id, position, start_time, end_time, description, status,
			start_frame, end_frame, reference_image, last_generated_description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range segments {
		if _, err := stmt.ExecContext(ctx, s.ID, projectID, i, s.StartTime, s.EndTime, s.Description, string(s.Status),
			nullString(s.StartFrame), nullString(s.EndFrame), nullString(s.ReferenceImage),
			nullString(s.LastGeneratedDescription)); err != nil {
			return fmt.Errorf("insert segment %s: %w", s.ID, err)
		}
	}

	res, err := tx.ExecContext(ctx, "UPDATE projects SET updated_at = ? WHERE id = ?", formatTime(time.Now()), projectID)
	if err != nil {
		return fmt.Errorf("touch project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// GetConfig returns "" when the key is unset.
func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
