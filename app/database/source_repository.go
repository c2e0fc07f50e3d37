package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lysyi3m/rss-harvest/app/content"
)

// SourceRepository handles database operations for sources
type SourceRepository struct {
	db Store
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db Store) *SourceRepository {
	return &SourceRepository{db: db}
}

const sourceColumns = `id, url, name, category, content_mode, is_active, sort_order,
       error_count, last_error, last_fetch_at, article_count, unread_count, created_at, updated_at`

// UpsertSource inserts a source or updates the one with the same URL, returning its id
func (r *SourceRepository) UpsertSource(ctx context.Context, s Source) (int64, error) {
	now := time.Now().UTC()
	mode := s.ContentMode
	if mode == "" {
		mode = content.ModeImageText
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sources (url, name, category, content_mode, is_active, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			content_mode = excluded.content_mode,
			is_active = excluded.is_active,
			sort_order = excluded.sort_order,
			updated_at = excluded.updated_at
	`, s.URL, s.Name, s.Category, string(mode), s.IsActive, s.SortOrder, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert source: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM sources WHERE url = ?`, s.URL).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read source id: %w", err)
	}
	return id, nil
}

// GetSource returns nil when no source has the given id
func (r *SourceRepository) GetSource(ctx context.Context, id int64) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return s, nil
}

func (r *SourceRepository) GetSourceByURL(ctx context.Context, url string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE url = ?`, url)
	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source by URL: %w", err)
	}
	return s, nil
}

// ListSources returns sources in display order
func (r *SourceRepository) ListSources(ctx context.Context, activeOnly bool) ([]Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY sort_order, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

func (r *SourceRepository) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sources SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update source state: %w", err)
	}
	return nil
}

// DeleteSource removes a source; its articles go with it
func (r *SourceRepository) DeleteSource(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

// RecordFetch stamps the fetch time and recomputes article counters
func (r *SourceRepository) RecordFetch(ctx context.Context, id int64, fetchedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources SET
			last_fetch_at = ?,
			article_count = (SELECT COUNT(*) FROM articles WHERE source_id = sources.id),
			unread_count = (SELECT COUNT(*) FROM articles WHERE source_id = sources.id AND is_read = 0),
			updated_at = ?
		WHERE id = ?
	`, fetchedAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}
	return nil
}

func (r *SourceRepository) RecordSuccess(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sources SET error_count = 0, last_error = '' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to reset source errors: %w", err)
	}
	return nil
}

func (r *SourceRepository) RecordFailure(ctx context.Context, id int64, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources SET error_count = error_count + 1, last_error = ?, updated_at = ? WHERE id = ?
	`, message, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record source failure: %w", err)
	}
	return nil
}

func (r *SourceRepository) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sources),
			(SELECT COUNT(*) FROM sources WHERE is_active = 1),
			(SELECT COUNT(*) FROM articles),
			(SELECT COUNT(*) FROM articles WHERE is_read = 0)
	`).Scan(&s.Sources, &s.ActiveSources, &s.Articles, &s.Unread)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*Source, error) {
	var (
		s           Source
		mode        string
		lastFetchAt sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.URL, &s.Name, &s.Category, &mode, &s.IsActive, &s.SortOrder,
		&s.ErrorCount, &s.LastError, &lastFetchAt, &s.ArticleCount, &s.UnreadCount,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.ContentMode = content.ParseMode(mode)
	if lastFetchAt.Valid {
		t := lastFetchAt.Time
		s.LastFetchAt = &t
	}
	return &s, nil
}
