package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lysyi3m/rss-harvest/app/diff"
)

// ArticleRepository handles database operations for articles
type ArticleRepository struct {
	db Store
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(db Store) *ArticleRepository {
	return &ArticleRepository{db: db}
}

const articleColumns = `id, source_id, source_name, guid, title, url, author, content_html, summary,
       word_count, reading_time_minutes, published_at, image_url, image_caption, image_credit,
       is_read, is_favorite, read_progress, tags, created_at`

// ArticleExists checks if an article with the given URL was already stored for the source
func (r *ArticleRepository) ArticleExists(ctx context.Context, sourceID int64, url string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM articles WHERE source_id = ? AND url = ?)`, sourceID, url,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check article existence: %w", err)
	}
	return exists, nil
}

// InsertArticle stores a new article. A concurrent insert of the same
// (source_id, url) pair returns ErrDuplicate instead of a second row.
func (r *ArticleRepository) InsertArticle(ctx context.Context, a *Article) (int64, error) {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return 0, fmt.Errorf("failed to encode tags: %w", err)
	}

	createdAt := time.Now().UTC()
	id, err := Insert(ctx, r.db, `
		INSERT INTO articles (
			source_id, source_name, guid, title, url, author, content_html, summary,
			word_count, reading_time_minutes, published_at, image_url, image_caption, image_credit,
			is_read, is_favorite, read_progress, tags, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, url) DO NOTHING
	`, a.SourceID, a.SourceName, a.GUID, a.Title, a.URL, a.Author, a.ContentHTML, a.Summary,
		a.WordCount, a.ReadingTimeMinutes, a.PublishedAt.UTC(), a.ImageURL, a.ImageCaption, a.ImageCredit,
		a.IsRead, a.IsFavorite, a.ReadProgress, string(tagsJSON), createdAt)
	if errors.Is(err, ErrDuplicate) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert article: %w", err)
	}

	a.ID = id
	a.CreatedAt = createdAt
	return id, nil
}

// RecentProjections returns url/title/date of the newest stored articles of a source
func (r *ArticleRepository) RecentProjections(ctx context.Context, sourceID int64, limit int) ([]diff.Projection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT url, title, published_at
		FROM articles
		WHERE source_id = ?
		ORDER BY published_at DESC, id DESC
		LIMIT ?
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent articles: %w", err)
	}
	defer rows.Close()

	var out []diff.Projection
	for rows.Next() {
		var p diff.Projection
		if err := rows.Scan(&p.URL, &p.Title, &p.PublishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return out, nil
}

// GetArticles returns a page of a source's articles, newest first
func (r *ArticleRepository) GetArticles(ctx context.Context, sourceID int64, limit, offset int) ([]Article, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+articleColumns+`
		FROM articles
		WHERE source_id = ?
		ORDER BY published_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, sourceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var (
			a    Article
			tags string
		)
		err := rows.Scan(
			&a.ID, &a.SourceID, &a.SourceName, &a.GUID, &a.Title, &a.URL, &a.Author, &a.ContentHTML, &a.Summary,
			&a.WordCount, &a.ReadingTimeMinutes, &a.PublishedAt, &a.ImageURL, &a.ImageCaption, &a.ImageCredit,
			&a.IsRead, &a.IsFavorite, &a.ReadProgress, &tags, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, nil
}

// CountArticles returns how many articles are stored for a (source_id, url) pair,
// or for the whole source when url is empty
func (r *ArticleRepository) CountArticles(ctx context.Context, sourceID int64, url string) (int, error) {
	query := `SELECT COUNT(*) FROM articles WHERE source_id = ?`
	args := []any{sourceID}
	if url != "" {
		query += ` AND url = ?`
		args = append(args, url)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return n, nil
}
